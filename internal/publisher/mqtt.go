package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/i474232898/weerlive/internal/sensor"
)

const (
	DiscoveryPrefix = "homeassistant"

	publishTimeout = 5 * time.Second
	qos            = 1
)

// Config holds the MQTT connection settings.
type Config struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
}

// Client is the subset of mqtt.Client used for publishing.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// ReadingSource is implemented by *sensor.Projection.
type ReadingSource interface {
	Readings() []sensor.Reading
}

// Connect opens a connection to the broker.
func Connect(cfg Config, logger *slog.Logger) (mqtt.Client, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "weerlive-" + uuid.NewString()
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt: connection lost", "error", err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", cfg.Broker, err)
	}
	return client, nil
}

// Publisher pushes sensor readings to MQTT: a discovery config once per
// sensor, then retained state and attributes on every call to Publish.
type Publisher struct {
	client      Client
	source      ReadingSource
	topicPrefix string
	logger      *slog.Logger

	mu        sync.Mutex
	announced map[string]bool
}

func New(client Client, source ReadingSource, topicPrefix string, logger *slog.Logger) *Publisher {
	if topicPrefix == "" {
		topicPrefix = sensor.DefaultName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:      client,
		source:      source,
		topicPrefix: topicPrefix,
		logger:      logger,
		announced:   make(map[string]bool),
	}
}

type discoveryConfig struct {
	Name                string `json:"name"`
	UniqueID            string `json:"unique_id"`
	StateTopic          string `json:"state_topic"`
	JSONAttributesTopic string `json:"json_attributes_topic"`
	UnitOfMeasurement   string `json:"unit_of_measurement,omitempty"`
	Icon                string `json:"icon"`
}

func (p *Publisher) stateTopic(r sensor.Reading) string {
	return fmt.Sprintf("%s/%s/state", p.topicPrefix, r.Kind.ID())
}

func (p *Publisher) attributesTopic(r sensor.Reading) string {
	return fmt.Sprintf("%s/%s/attributes", p.topicPrefix, r.Kind.ID())
}

func discoveryTopic(r sensor.Reading) string {
	return fmt.Sprintf("%s/sensor/%s/config", DiscoveryPrefix, r.UniqueID)
}

// Publish sends every reading. Errors are logged and the remaining readings
// are still published; the first error is returned.
func (p *Publisher) Publish(ctx context.Context) error {
	var firstErr error
	for _, r := range p.source.Readings() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := p.publishReading(r); err != nil {
			p.logger.Warn("mqtt: publish failed", "sensor", r.Kind.ID(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (p *Publisher) publishReading(r sensor.Reading) error {
	if err := p.announce(r); err != nil {
		return err
	}

	attrs, err := json.Marshal(r.Attributes)
	if err != nil {
		return err
	}
	if err := p.send(p.attributesTopic(r), attrs); err != nil {
		return err
	}
	return p.send(p.stateTopic(r), []byte(formatState(r.State)))
}

func (p *Publisher) announce(r sensor.Reading) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.announced[r.UniqueID] {
		return nil
	}

	payload, err := json.Marshal(discoveryConfig{
		Name:                r.Name,
		UniqueID:            r.UniqueID,
		StateTopic:          p.stateTopic(r),
		JSONAttributesTopic: p.attributesTopic(r),
		UnitOfMeasurement:   r.Unit,
		Icon:                r.Icon,
	})
	if err != nil {
		return err
	}
	if err := p.send(discoveryTopic(r), payload); err != nil {
		return err
	}

	p.announced[r.UniqueID] = true
	return nil
}

func (p *Publisher) send(topic string, payload []byte) error {
	token := p.client.Publish(topic, qos, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.logger.Debug("mqtt: published", "topic", topic, "bytes", len(payload))
	return nil
}

// formatState renders an absent state as the empty string, which the host
// shows as unknown.
func formatState(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
