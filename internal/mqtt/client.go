package mqtt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"MineSafetyAPI/internal/config"
	"MineSafetyAPI/internal/logger"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const opTimeout = 5 * time.Second

// Client is the engine's broker connection: it receives sensor readings and
// publishes siren commands.
type Client struct {
	client mqtt.Client
	cfg    *config.MQTTConfig
	log    *logger.Logger

	mu             sync.RWMutex
	connected      bool
	lastConnected  time.Time
	lastDisconnect time.Time
	readings       MessageHandler

	ctx    context.Context
	cancel context.CancelFunc
}

type MessageHandler func(topic string, payload []byte) error

type ClientConfig struct {
	MQTT   *config.MQTTConfig
	Logger *logger.Logger
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.MQTT.ReadingsTopic == "" {
		return nil, fmt.Errorf("readings topic cannot be empty")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:    cfg.MQTT,
		log:    cfg.Logger,
		ctx:    ctx,
		cancel: cancel,
	}

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Broker, cfg.MQTT.Port)).
		SetClientID(cfg.MQTT.ClientID).
		SetKeepAlive(cfg.MQTT.KeepAlive).
		SetPingTimeout(10 * time.Second).
		SetConnectTimeout(cfg.MQTT.ConnectTimeout).
		SetAutoReconnect(cfg.MQTT.AutoReconnect).
		SetCleanSession(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
			c.log.Warn("Reconnecting to MQTT broker %s:%d", cfg.MQTT.Broker, cfg.MQTT.Port)
		})
	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}

	c.client = mqtt.NewClient(opts)
	return c, nil
}

func (c *Client) Connect() error {
	c.log.Info("Connecting to MQTT broker: %s:%d", c.cfg.Broker, c.cfg.Port)

	token := c.client.Connect()
	if !token.WaitTimeout(c.cfg.ConnectTimeout) {
		return fmt.Errorf("connection timeout after %v", c.cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	c.setConnected(true)
	c.log.Info("Successfully connected to MQTT broker")
	return nil
}

// Disconnect stops reading handlers still running and closes the connection.
func (c *Client) Disconnect() error {
	c.cancel()
	c.setConnected(false)
	c.client.Disconnect(250)

	c.log.Info("Disconnected from MQTT broker")
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client.IsConnected()
}

func (c *Client) setConnected(up bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = up
	if up {
		c.lastConnected = time.Now()
	} else {
		c.lastDisconnect = time.Now()
	}
}

// SubscribeReadings delivers every reading published on the readings topic
// to sink. The subscription is renewed after a reconnect.
func (c *Client) SubscribeReadings(sink ReadingSink) error {
	if !c.IsConnected() {
		return fmt.Errorf("not connected to broker")
	}

	c.mu.Lock()
	c.readings = c.ReadingHandler(sink)
	c.mu.Unlock()

	if err := c.subscribeReadings(c.client); err != nil {
		c.mu.Lock()
		c.readings = nil
		c.mu.Unlock()
		return err
	}
	c.log.Info("Subscribed to readings on %s (QoS %d)", c.cfg.ReadingsTopic, c.cfg.QoS)
	return nil
}

// StopReadings drops the readings subscription and keeps the connection for
// siren commands.
func (c *Client) StopReadings() error {
	c.mu.Lock()
	active := c.readings != nil
	c.readings = nil
	c.mu.Unlock()

	if !active || !c.client.IsConnected() {
		return nil
	}
	token := c.client.Unsubscribe(c.cfg.ReadingsTopic)
	if !token.WaitTimeout(opTimeout) {
		return fmt.Errorf("unsubscribe timeout for topic: %s", c.cfg.ReadingsTopic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("unsubscribe failed for topic %s: %w", c.cfg.ReadingsTopic, err)
	}
	c.log.Info("Stopped reading intake on %s", c.cfg.ReadingsTopic)
	return nil
}

func (c *Client) subscribeReadings(client mqtt.Client) error {
	token := client.Subscribe(c.cfg.ReadingsTopic, c.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		c.dispatch(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(opTimeout) {
		return fmt.Errorf("subscribe timeout for topic: %s", c.cfg.ReadingsTopic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe failed for topic %s: %w", c.cfg.ReadingsTopic, err)
	}
	return nil
}

func (c *Client) dispatch(topic string, payload []byte) {
	if !matchTopic(c.cfg.ReadingsTopic, topic) {
		c.log.Warn("Ignoring message on unexpected topic: %s", topic)
		return
	}

	c.mu.RLock()
	handler := c.readings
	c.mu.RUnlock()
	if handler == nil {
		c.log.Debug("Reading on %s dropped, intake stopped", topic)
		return
	}

	if err := handler(topic, payload); err != nil {
		c.log.Error("Reading on %s rejected: %v", topic, err)
	}
}

func (c *Client) onConnect(client mqtt.Client) {
	c.setConnected(true)
	c.log.Info("MQTT connection established")

	c.mu.RLock()
	resubscribe := c.readings != nil
	c.mu.RUnlock()
	if !resubscribe {
		return
	}
	if err := c.subscribeReadings(client); err != nil {
		c.log.Error("Failed to re-subscribe to readings: %v", err)
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.setConnected(false)
	c.log.Error("MQTT connection lost: %v", err)
}

// matchTopic reports whether topic matches an MQTT filter with + and #
// wildcards.
func matchTopic(filter, topic string) bool {
	if filter == topic {
		return true
	}

	fp := splitTopic(filter)
	tp := splitTopic(topic)
	for i, part := range fp {
		if part == "#" {
			return true
		}
		if i >= len(tp) || (part != "+" && part != tp[i]) {
			return false
		}
	}
	return len(fp) == len(tp)
}

func splitTopic(topic string) []string {
	return strings.FieldsFunc(topic, func(r rune) bool { return r == '/' })
}
