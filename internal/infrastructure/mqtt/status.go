package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/caseta-leap/internal/infrastructure/config"
)

// Liveness vocabulary for the caseta/bridge/status topic.
const (
	statusOnline  = "online"
	statusOffline = "offline"

	reasonGracefulShutdown     = "graceful_shutdown"
	reasonUnexpectedDisconnect = "unexpected_disconnect"
)

// clientOptions maps the daemon config onto paho options: broker URL
// (ssl scheme when TLS is on), credentials, clean session, and
// auto-reconnect between the configured delay bounds.
func clientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	return opts
}

// configureWill installs the LWT: a retained offline status the broker
// publishes itself if the session dies without a clean Close. Consumers see
// the same payload shape either way and distinguish crash from shutdown by
// the reason field.
func configureWill(opts *pahomqtt.ClientOptions, clientID string) {
	payload := statusPayload(statusOffline, clientID, reasonUnexpectedDisconnect)
	opts.SetWill(Topics{}.BridgeStatus(), string(payload), 1, true)
}

// statusMessage is the payload published on caseta/bridge/status.
type statusMessage struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// statusPayload builds a liveness payload. Reason is set for offline
// messages only.
func statusPayload(status, clientID, reason string) []byte {
	payload, _ := json.Marshal(statusMessage{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return payload
}
