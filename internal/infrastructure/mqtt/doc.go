// Package mqtt provides MQTT client connectivity for levsync.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// levsync uses MQTT as its outbound integration surface: device state is
// republished as retained JSON so home-automation consumers see current
// values on subscribe, and breaker commands arrive on command topics the
// republisher routes into the engine.
//
//	levsync ↔ MQTT Broker ↔ Consumers (dashboards, automations)
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all breaker switch commands
//	err = client.Subscribe(mqtt.Topics{}.AllBreakerSets(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish state
//	topic := mqtt.Topics{}.BreakerState("brk-1a2b")
//	client.Publish(topic, []byte(`{"currentState":"ManualON"}`), 1, true)
package mqtt
