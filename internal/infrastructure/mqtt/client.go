package mqtt

import (
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/caseta-leap/internal/infrastructure/config"
)

// Operation limits.
const (
	connectTimeout      = 10 * time.Second
	tokenTimeout        = 5 * time.Second
	disconnectQuiesceMs = 1000
	keepAlive           = 60 * time.Second

	maxQoS = 2

	// maxPayloadSize caps one publish at 1MB, in line with common broker
	// limits. Device state messages are a few hundred bytes.
	maxPayloadSize = 1 << 20
)

// MessageHandler receives one message delivered on a subscribed topic.
// Paho invokes handlers on its own goroutines; a returned error is logged
// and does not affect acknowledgment.
type MessageHandler func(topic string, payload []byte) error

// Logger is the minimal logging surface the client needs for handler
// failures. Satisfied by logging.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// subscription is one tracked topic/handler pair, replayed after reconnect.
type subscription struct {
	qos     byte
	handler MessageHandler
}

// Client is the daemon's connection to the MQTT broker. It carries the
// retained device-state mirror and the command subscriptions for
// internal/bridges/mqtt, announces liveness on caseta/bridge/status (an
// explicit retained message on connect and Close, the LWT on a crash), and
// replays subscriptions whenever paho reconnects.
//
// All methods are safe for concurrent use.
type Client struct {
	client   pahomqtt.Client
	clientID string
	qos      byte

	subMu         sync.RWMutex
	subscriptions map[string]subscription

	mu           sync.RWMutex
	connected    bool
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Connect dials the broker and returns a ready client.
//
// Parameters:
//   - cfg: The mqtt section of the daemon config
//
// Returns:
//   - *Client: Connected client; liveness already announced on the status topic
//   - error: ErrConnectionFailed if the broker cannot be reached in time
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		clientID:      cfg.Broker.ClientID,
		qos:           byte(cfg.QoS), // #nosec G115 -- Validate bounds QoS to 0-2
		subscriptions: make(map[string]subscription),
	}

	opts := clientOptions(cfg)
	configureWill(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })

	c.client = pahomqtt.NewClient(opts)
	if err := waitToken(c.client.Connect(), connectTimeout, ErrConnectionFailed); err != nil {
		return nil, err
	}

	// The OnConnect handler runs asynchronously; mark connected here so
	// callers can publish immediately after Connect returns.
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	return c, nil
}

// handleConnect runs on the initial connection and on every paho reconnect.
func (c *Client) handleConnect() {
	c.mu.Lock()
	c.connected = true
	callback := c.onConnect
	c.mu.Unlock()

	c.restoreSubscriptions()
	c.publishStatus(statusOnline, "")

	if callback != nil {
		callback()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.mu.Lock()
	c.connected = false
	callback := c.onDisconnect
	c.mu.Unlock()

	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions replays tracked subscriptions after a reconnect.
// Errors are not checked: a failed replay is retried on the next reconnect
// cycle when paho calls handleConnect again.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for topic, sub := range c.subscriptions {
		c.client.Subscribe(topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

// publishStatus publishes a retained liveness message on the status topic.
func (c *Client) publishStatus(status, reason string) {
	c.client.Publish(Topics{}.BridgeStatus(), c.qos, true, statusPayload(status, c.clientID, reason))
}

// Publish sends one message. State topics publish retained so late
// subscribers see the current level; command topics publish unretained.
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected, or a wrapped
//     ErrPublishFailed on oversized payloads, timeout or broker rejection
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopicQoS(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload %d bytes exceeds %d", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	return waitToken(c.client.Publish(topic, qos, retained, payload), tokenTimeout, ErrPublishFailed)
}

// Subscribe registers a handler for a topic pattern (MQTT wildcards
// allowed) and tracks it for replay on reconnect. The handler runs on
// paho's goroutines with panic recovery.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkTopicQoS(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{qos: qos, handler: handler}
	c.subMu.Unlock()

	if err := waitToken(c.client.Subscribe(topic, qos, c.wrapHandler(handler)), tokenTimeout, ErrSubscribeFailed); err != nil {
		// Drop the tracking entry so a failed subscription is not replayed.
		c.subMu.Lock()
		delete(c.subscriptions, topic)
		c.subMu.Unlock()
		return err
	}

	return nil
}

// Close publishes a graceful offline status, then disconnects with a
// quiesce window for in-flight messages.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.client.Publish(Topics{}.BridgeStatus(), c.qos, true,
			statusPayload(statusOffline, c.clientID, reasonGracefulShutdown))
		token.WaitTimeout(tokenTimeout)
	}

	c.client.Disconnect(disconnectQuiesceMs)

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	return nil
}

// IsConnected reports the last known connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// SetOnConnect registers a callback run after every successful (re)connect,
// once subscriptions are restored.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect registers a callback run when the connection drops; the
// error describes why.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets the logger for handler errors and recovered panics.
// Without one, handler failures are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// checkTopicQoS rejects the inputs the broker would.
func checkTopicQoS(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// waitToken waits for a paho token and maps failure onto a sentinel.
func waitToken(token pahomqtt.Token, timeout time.Duration, sentinel error) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: timeout after %v", sentinel, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}

// wrapHandler adapts a MessageHandler to paho's callback shape, with panic
// recovery so one bad command payload cannot kill the paho router.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
