package leviton

// Permission is one entry of an account's residential permissions. A
// permission names either a residence directly (admin/shared access) or a
// residential account that resolves to residences (owner access).
type Permission struct {
	ResidenceID          *int `json:"residenceId"`
	ResidentialAccountID *int `json:"residentialAccountId"`
}

// loginRequest is the body of the session login call.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse carries the session token and its owner.
// The token doubles as the Authorization header value for all later calls.
type loginResponse struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	TTL    int    `json:"ttl"`
}

// Notification is one push message from the socket. Data holds only the
// changed fields; hub and panel notifications may additionally nest child
// update arrays under the "ResidentialBreaker" and "IotCt" keys.
type Notification struct {
	ModelName string         `json:"modelName"`
	ModelID   any            `json:"modelId"`
	Data      map[string]any `json:"data"`
}

// socketMessage is the envelope framing on the push channel.
type socketMessage struct {
	Type         string        `json:"type"`
	ID           string        `json:"id,omitempty"`
	Status       string        `json:"status,omitempty"`
	Token        string        `json:"token,omitempty"`
	Subscription *subscription `json:"subscription,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

// subscription identifies one model instance to receive push updates for.
type subscription struct {
	ModelName string `json:"modelName"`
	ModelID   string `json:"modelId"`
}

// Socket message types.
const (
	msgTypeAuth         = "auth"
	msgTypeSubscribe    = "subscribe"
	msgTypeUnsubscribe  = "unsubscribe"
	msgTypeNotification = "notification"
	msgTypeStatus       = "status"
)
