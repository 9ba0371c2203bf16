// Package alerts publishes threshold exceedances to an MQTT broker.
package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/02loveslollipop/eco-monitor/internal/config"
	"github.com/02loveslollipop/eco-monitor/internal/thresholds"
)

// ErrNotConnected is returned by Publish while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt client not connected")

const (
	qos            = byte(1) // at least once
	publishTimeout = 5 * time.Second
	connectTimeout = 5 * time.Second
)

// Publisher sends one message per exceedance report.
type Publisher struct {
	client mqtt.Client
	topic  string
	logger *slog.Logger
	// connectWait bounds Connect; the client retries forever otherwise.
	connectWait time.Duration

	mu        sync.RWMutex
	connected bool
}

// NewPublisher configures a client for the broker in cfg. Call Connect
// before publishing.
func NewPublisher(cfg config.Config, logger *slog.Logger) *Publisher {
	p := &Publisher{topic: cfg.MQTTTopic, logger: logger, connectWait: connectTimeout}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(opts)
	return p
}

// Connect waits for the broker connection, for ctx to end, or for the
// connect timeout, whichever comes first. On failure the client stops
// retrying and the caller can carry on without alerts.
func (p *Publisher) Connect(ctx context.Context) error {
	if p.IsConnected() {
		return nil
	}
	wait := p.connectWait
	if wait <= 0 {
		wait = connectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			p.client.Disconnect(0)
			return fmt.Errorf("mqtt connect: %w", ctx.Err())
		default:
		}
	}
}

// Publish sends the report as JSON to the configured topic.
func (p *Publisher) Publish(ctx context.Context, report thresholds.Report) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	token := p.client.Publish(p.topic, qos, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("publish to %s: timeout", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}

	p.logger.Debug("published exceedances",
		"topic", p.topic,
		"station_id", report.StationID,
		"count", len(report.Exceedances),
	)
	return nil
}

// IsConnected returns whether the client is connected.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Close disconnects from the broker. Safe to call more than once.
func (p *Publisher) Close() {
	if p.client != nil {
		p.client.Disconnect(250)
	}
	p.setConnected(false)
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
