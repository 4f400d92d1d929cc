package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/dkn-cloud-bridge/internal/infrastructure/config"
)

// Client is the bridge's publish-only MQTT connection.
//
// Traffic flows one way, engine to broker; the bridge never subscribes.
// Paho handles reconnection with backoff, and the client re-announces
// itself and fires the SetOnConnect hook on every successful (re)connect
// so the publisher can restore retained topics after an outage.
//
// Safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	mu        sync.RWMutex
	connected bool

	cbMu         sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
}

// Connect dials the broker and announces the bridge as online.
//
// The LWT is registered before dialing so a crash at any later point
// flips the retained status topic to offline.
//
// Parameters:
//   - cfg: MQTT section of the bridge configuration
//
// Returns:
//   - *Client: connected client
//   - error: ErrConnectionFailed when the broker cannot be reached in time
func Connect(cfg config.MQTTConfig) (*Client, error) {
	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	c := &Client{cfg: cfg}
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) { c.brokerUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.brokerDown(err) })

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// Paho runs the OnConnect handler asynchronously; mark connected here
	// so IsConnected holds immediately after a successful Connect.
	c.setConnected(true)

	return c, nil
}

// brokerUp runs on every successful connect and reconnect.
func (c *Client) brokerUp() {
	c.setConnected(true)
	c.announce(statusOnline, "")

	c.cbMu.RLock()
	hook := c.onConnect
	c.cbMu.RUnlock()
	if hook != nil {
		hook()
	}
}

// brokerDown runs when paho loses the connection.
func (c *Client) brokerDown(err error) {
	c.setConnected(false)

	c.cbMu.RLock()
	hook := c.onDisconnect
	c.cbMu.RUnlock()
	if hook != nil {
		hook(err)
	}
}

func (c *Client) setConnected(up bool) {
	c.mu.Lock()
	c.connected = up
	c.mu.Unlock()
}

// announce publishes a retained bridge status document.
func (c *Client) announce(status, reason string) {
	payload := statusPayload(c.cfg.Broker.ClientID, status, reason)
	c.client.Publish(Topics{}.BridgeStatus(), byte(c.cfg.QoS), true, payload)
}

// Close announces a graceful offline status, waits for pending publishes
// to drain, and disconnects. The graceful reason lets consumers tell a
// clean shutdown from a crash (which surfaces the LWT reason instead).
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		payload := statusPayload(c.cfg.Broker.ClientID, statusOffline, reasonGraceful)
		token := c.client.Publish(Topics{}.BridgeStatus(), byte(c.cfg.QoS), true, payload)
		token.WaitTimeout(publishTimeout)
	}

	c.client.Disconnect(disconnectQuiesce)
	c.setConnected(false)

	return nil
}

// HealthCheck reports connection health without touching the network.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the client currently has a live broker
// connection.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// SetOnConnect registers a hook invoked on initial connect and on every
// reconnect. The publisher uses it to republish retained state after an
// outage.
func (c *Client) SetOnConnect(hook func()) {
	c.cbMu.Lock()
	c.onConnect = hook
	c.cbMu.Unlock()
}

// SetOnDisconnect registers a hook invoked when the connection drops,
// with the error that caused the loss.
func (c *Client) SetOnDisconnect(hook func(err error)) {
	c.cbMu.Lock()
	c.onDisconnect = hook
	c.cbMu.Unlock()
}
