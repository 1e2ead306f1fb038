package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	mqttQoS            = 0
	mqttSubscribeWait  = 10 * time.Second
	mqttDisconnectWait = 250 // milliseconds
)

// MQTTConfig configures the broker client.
type MQTTConfig struct {
	BrokerURL string
	ClientID  string
}

// MQTTBroker is a Broker backed by an MQTT server. Subscriptions are
// restored after every reconnect.
type MQTTBroker struct {
	client mqtt.Client
	log    *zap.Logger

	mu   sync.Mutex
	subs map[string]Handler
}

// NewMQTTBroker connects to the server and returns once the session is up
// or ctx is done.
func NewMQTTBroker(ctx context.Context, cfg MQTTConfig, log *zap.Logger) (*MQTTBroker, error) {
	b := &MQTTBroker{
		log:  log.Named("mqtt"),
		subs: make(map[string]Handler),
	}

	b.client = mqtt.NewClient(b.clientOptions(cfg))
	if err := wait(ctx, b.client.Connect()); err != nil {
		return nil, fmt.Errorf("failed to connect to broker %s: %w", cfg.BrokerURL, err)
	}
	return b, nil
}

func (b *MQTTBroker) clientOptions(cfg MQTTConfig) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().AddBroker(cfg.BrokerURL).SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(false)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		b.log.Info("🔌 connected to broker", zap.String("broker", cfg.BrokerURL))
		b.resubscribe()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.log.Warn("broker connection lost", zap.Error(err))
	})
	return opts
}

func (b *MQTTBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := wait(ctx, b.client.Publish(topic, mqttQoS, false, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (b *MQTTBroker) Subscribe(topic string, h Handler) (func(), error) {
	b.mu.Lock()
	b.subs[topic] = h
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), mqttSubscribeWait)
	defer cancel()
	if err := wait(ctx, b.client.Subscribe(topic, mqttQoS, b.callback(h))); err != nil {
		b.mu.Lock()
		delete(b.subs, topic)
		b.mu.Unlock()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(topic) })
	}, nil
}

func (b *MQTTBroker) unsubscribe(topic string) {
	b.mu.Lock()
	delete(b.subs, topic)
	b.mu.Unlock()

	token := b.client.Unsubscribe(topic)
	if !token.WaitTimeout(mqttSubscribeWait) {
		b.log.Warn("unsubscribe timed out", zap.String("topic", topic))
		return
	}
	if err := token.Error(); err != nil {
		b.log.Warn("unsubscribe failed", zap.String("topic", topic), zap.Error(err))
	}
}

// resubscribe restores every known subscription on a fresh session.
func (b *MQTTBroker) resubscribe() {
	b.mu.Lock()
	handlers := make(map[string]Handler, len(b.subs))
	for topic, h := range b.subs {
		handlers[topic] = h
	}
	b.mu.Unlock()

	if len(handlers) == 0 {
		return
	}

	failed := 0
	for topic, h := range handlers {
		token := b.client.Subscribe(topic, mqttQoS, b.callback(h))
		if !token.WaitTimeout(mqttSubscribeWait) {
			failed++
			b.log.Warn("restoring subscription timed out", zap.String("topic", topic))
			continue
		}
		if err := token.Error(); err != nil {
			failed++
			b.log.Warn("failed to restore subscription", zap.String("topic", topic), zap.Error(err))
		}
	}
	b.log.Info("restored subscriptions",
		zap.Int("topics", len(handlers)-failed),
		zap.Int("failed", failed))
}

func (b *MQTTBroker) callback(h Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		h(msg.Topic(), msg.Payload())
	}
}

func (b *MQTTBroker) Close() error {
	b.client.Disconnect(mqttDisconnectWait)
	return nil
}

func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
