package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connTimeout       = 10 * time.Second
	maxReconnInterval = time.Minute
	disconnQuiesce    = 250
)

var (
	ErrEmptyTopic    = errors.New("empty topic")
	ErrWildcardTopic = errors.New("wildcards are not allowed in publish topics")

	errEmptyID   = errors.New("empty client ID")
	errTimeout   = errors.New("timeout reached")
	errConnect   = errors.New("failed to connect to MQTT broker")
	errNoAddress = errors.New("empty broker address")
)

// Config holds the broker connection settings.
type Config struct {
	Address  string
	ClientID string
	Username string
	Password string
	QoS      byte
	Timeout  time.Duration
	// StatusTopic, when set, receives an offline notice published by the
	// broker if the client drops without disconnecting.
	StatusTopic string
}

// Handler processes a decoded JSON message received on topic.
type Handler func(topic string, msg map[string]any) error

type PubSub interface {
	Publish(ctx context.Context, topic string, msg any) error
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Unsubscribe(ctx context.Context, topic string) error
	Disconnect(ctx context.Context) error
}

type pubsub struct {
	client mqtt.Client
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]mqtt.MessageHandler
}

func NewPubSub(cfg Config, logger *slog.Logger) (PubSub, error) {
	switch {
	case cfg.Address == "":
		return nil, errNoAddress
	case cfg.ClientID == "":
		return nil, errEmptyID
	}

	ps := &pubsub{
		cfg:    cfg,
		logger: logger.With(slog.String("broker", cfg.Address), slog.String("client_id", cfg.ClientID)),
		subs:   make(map[string]mqtt.MessageHandler),
	}

	ps.client = mqtt.NewClient(ps.options())
	if err := ps.wait(ps.client.Connect(), "connect"); err != nil {
		return nil, errors.Join(errConnect, err)
	}

	return ps, nil
}

func (ps *pubsub) Publish(ctx context.Context, topic string, msg any) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %s", ErrWildcardTopic, topic)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message for %s: %w", topic, err)
	}

	return ps.wait(ps.client.Publish(topic, ps.cfg.QoS, false, data), "publish to "+topic)
}

// Subscribe registers handler for topic. Subscriptions are restored after
// the client reconnects since sessions are not persisted by the broker.
func (ps *pubsub) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	h := ps.messageHandler(handler)
	if err := ps.wait(ps.client.Subscribe(topic, ps.cfg.QoS, h), "subscribe to "+topic); err != nil {
		return err
	}

	ps.mu.Lock()
	ps.subs[topic] = h
	ps.mu.Unlock()

	return nil
}

func (ps *pubsub) Unsubscribe(ctx context.Context, topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	ps.mu.Lock()
	delete(ps.subs, topic)
	ps.mu.Unlock()

	return ps.wait(ps.client.Unsubscribe(topic), "unsubscribe from "+topic)
}

func (ps *pubsub) Disconnect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ps.client.Disconnect(disconnQuiesce)

	return nil
}

func (ps *pubsub) options() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(ps.cfg.Address).
		SetClientID(ps.cfg.ClientID).
		SetUsername(ps.cfg.Username).
		SetPassword(ps.cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(connTimeout).
		SetMaxReconnectInterval(maxReconnInterval).
		SetOnConnectHandler(ps.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			ps.logger.Warn("MQTT connection lost", slog.Any("error", err))
		}).
		SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
			ps.logger.Info("MQTT reconnecting")
		})

	if ps.cfg.StatusTopic != "" {
		payload, _ := json.Marshal(map[string]string{
			"status":    "offline",
			"client_id": ps.cfg.ClientID,
		})
		opts.SetBinaryWill(ps.cfg.StatusTopic, payload, 0, false)
	}

	return opts
}

func (ps *pubsub) onConnect(c mqtt.Client) {
	ps.mu.Lock()
	subs := make(map[string]mqtt.MessageHandler, len(ps.subs))
	for topic, h := range ps.subs {
		subs[topic] = h
	}
	ps.mu.Unlock()

	ps.logger.Info("MQTT connection established", slog.Int("subscriptions", len(subs)))

	for topic, h := range subs {
		if err := ps.wait(c.Subscribe(topic, ps.cfg.QoS, h), "resubscribe to "+topic); err != nil {
			ps.logger.Warn("Failed to restore MQTT subscription", slog.String("topic", topic), slog.Any("error", err))
		}
	}
}

func (ps *pubsub) wait(token mqtt.Token, op string) error {
	switch {
	case ps.cfg.Timeout <= 0:
		token.Wait()
	case !token.WaitTimeout(ps.cfg.Timeout):
		return fmt.Errorf("%w: %s", errTimeout, op)
	}

	return token.Error()
}

func (ps *pubsub) messageHandler(h Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, m mqtt.Message) {
		defer m.Ack()

		var msg map[string]any
		if err := json.Unmarshal(m.Payload(), &msg); err != nil {
			ps.logger.Warn("Dropped malformed MQTT message", slog.String("topic", m.Topic()), slog.Any("error", err))

			return
		}

		if err := h(m.Topic(), msg); err != nil {
			ps.logger.Warn("Failed to handle MQTT message", slog.String("topic", m.Topic()), slog.Any("error", err))
		}
	}
}
