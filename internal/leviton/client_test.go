package leviton

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient("user@example.com", "secret", WithBaseURL(srv.URL))
	return client, srv
}

func loginHandler(token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":     token,
			"userId": "user-1",
			"ttl":    3600,
		})
	}
}

func TestLogin_Success(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /Person/login", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding login body: %v", err)
		}
		if req["email"] != "user@example.com" || req["password"] != "secret" {
			t.Errorf("unexpected credentials: %v", req)
		}
		loginHandler("tok-abc")(w, r)
	})

	client, _ := newTestClient(t, mux)
	if err := client.Login(context.Background()); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if got := client.UserID(); got != "user-1" {
		t.Errorf("UserID() = %q, want %q", got, "user-1")
	}
}

func TestLogin_RejectedCredentials(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	err := client.Login(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Errorf("Login() error = %v, want ErrAuth", err)
	}
}

func TestLogin_ServerError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	err := client.Login(context.Background())
	if !errors.Is(err, ErrConnection) {
		t.Errorf("Login() error = %v, want ErrConnection", err)
	}
}

func TestLogin_TransportFailure(t *testing.T) {
	client := NewClient("u", "p", WithBaseURL("http://127.0.0.1:1"))

	err := client.Login(context.Background())
	if !errors.Is(err, ErrConnection) {
		t.Errorf("Login() error = %v, want ErrConnection", err)
	}
}

func TestDo_ReauthenticatesOnceOn401(t *testing.T) {
	var logins atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /Person/login", func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		loginHandler("tok-" + string(rune('0'+logins.Load())))(w, r)
	})
	mux.HandleFunc("GET /Person/user-1/residentialPermissions", func(w http.ResponseWriter, r *http.Request) {
		// Reject the first token only.
		if r.Header.Get("Authorization") == "tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode([]map[string]any{{"residenceId": 42}})
	})

	client, _ := newTestClient(t, mux)
	perms, err := client.GetPermissions(context.Background())
	if err != nil {
		t.Fatalf("GetPermissions() error = %v", err)
	}
	if logins.Load() != 2 {
		t.Errorf("login count = %d, want 2 (initial + re-auth)", logins.Load())
	}
	if len(perms) != 1 || perms[0].ResidenceID == nil || *perms[0].ResidenceID != 42 {
		t.Errorf("unexpected permissions: %+v", perms)
	}
}

func TestDo_AuthFailurePersistsAfterRetry(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /Person/login", loginHandler("tok"))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	client, _ := newTestClient(t, mux)
	_, err := client.GetPermissions(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Errorf("GetPermissions() error = %v, want ErrAuth", err)
	}
}

func TestGetWhemBreakers(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /Person/login", loginHandler("tok"))
	mux.HandleFunc("GET /IotWhems/whem-1/residentialBreakers", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "tok" {
			t.Errorf("Authorization = %q, want %q", got, "tok")
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{
				"id":                "brk-1",
				"position":          3,
				"poles":             2,
				"power":             120.5,
				"currentState":      "ManualON",
				"canRemoteOn":       true,
				"energyConsumption": 3400.25,
				"iotWhemId":         "whem-1",
			},
		})
	})

	client, _ := newTestClient(t, mux)
	breakers, err := client.GetWhemBreakers(context.Background(), "whem-1")
	if err != nil {
		t.Fatalf("GetWhemBreakers() error = %v", err)
	}
	if len(breakers) != 1 {
		t.Fatalf("got %d breakers, want 1", len(breakers))
	}
	b := breakers[0]
	if b.ID != "brk-1" || b.Position != 3 || b.Poles != 2 {
		t.Errorf("unexpected breaker identity: %+v", b)
	}
	if b.EnergyConsumption == nil || *b.EnergyConsumption != 3400.25 {
		t.Errorf("EnergyConsumption = %v, want 3400.25", b.EnergyConsumption)
	}
	if !b.CanRemoteOn || b.CurrentState != "ManualON" {
		t.Errorf("unexpected breaker state: %+v", b)
	}
}

func TestSetWhemBandwidth(t *testing.T) {
	var gotBody map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /Person/login", loginHandler("tok"))
	mux.HandleFunc("PUT /IotWhems/whem-1", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decoding bandwidth body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	})

	client, _ := newTestClient(t, mux)
	if err := client.SetWhemBandwidth(context.Background(), "whem-1", 1); err != nil {
		t.Fatalf("SetWhemBandwidth() error = %v", err)
	}
	if v, ok := gotBody["bandwidth"].(float64); !ok || v != 1 {
		t.Errorf("bandwidth body = %v, want 1", gotBody)
	}
}

func TestSetBreakerRemote(t *testing.T) {
	var gotState string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /Person/login", loginHandler("tok"))
	mux.HandleFunc("PUT /ResidentialBreakers/brk-1", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		gotState = body["remoteState"]
		w.WriteHeader(http.StatusOK)
	})

	client, _ := newTestClient(t, mux)
	if err := client.SetBreakerRemote(context.Background(), "brk-1", false); err != nil {
		t.Fatalf("SetBreakerRemote() error = %v", err)
	}
	if gotState != "RemoteOFF" {
		t.Errorf("remoteState = %q, want %q", gotState, "RemoteOFF")
	}
}

func TestNewSocket_RequiresSession(t *testing.T) {
	client := NewClient("u", "p")
	_, err := client.NewSocket()
	if !errors.Is(err, ErrAuth) {
		t.Errorf("NewSocket() error = %v, want ErrAuth", err)
	}
}
