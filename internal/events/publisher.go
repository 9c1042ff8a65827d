// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/stridesync/internal/config"
	"github.com/tomtom215/stridesync/internal/logging"
	"github.com/tomtom215/stridesync/internal/metrics"
	"github.com/tomtom215/stridesync/internal/models"
)

// Event names, appended to the configured topic prefix.
const (
	TopicSyncCompleted    = "sync.completed"
	TopicActivityIngested = "activity.ingested"
)

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("publisher is closed")

const breakerName = "events"

// Publisher publishes pipeline events through Watermill with circuit
// breaker protection. A nil *Publisher is valid and drops every event.
type Publisher struct {
	publisher  message.Publisher
	subscriber message.Subscriber // set for the in-process backend only
	breaker    *gobreaker.CircuitBreaker[any]
	prefix     string
	logger     watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

// New builds the publisher selected by cfg. It returns (nil, nil) when
// events are disabled.
func New(cfg config.EventsConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	logger := logging.NewWatermillAdapter()

	switch cfg.Backend {
	case config.EventsBackendNATS:
		pub, err := newNATSPublisher(cfg.NATSURL, logger)
		if err != nil {
			return nil, err
		}
		return newPublisher(pub, nil, cfg.TopicPrefix, logger), nil
	case config.EventsBackendGoChannel, "":
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
		return newPublisher(ch, ch, cfg.TopicPrefix, logger), nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}

// NewInProcess returns a gochannel-backed publisher. Subscribe works on it.
func NewInProcess(prefix string) *Publisher {
	logger := logging.NewWatermillAdapter()
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
	return newPublisher(ch, ch, prefix, logger)
}

// NewWithPublisher wraps an existing Watermill publisher.
func NewWithPublisher(pub message.Publisher, prefix string) *Publisher {
	return newPublisher(pub, nil, prefix, logging.NewWatermillAdapter())
}

func newPublisher(pub message.Publisher, sub message.Subscriber, prefix string, logger watermill.LoggerAdapter) *Publisher {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	return &Publisher{
		publisher:  pub,
		subscriber: sub,
		breaker:    newBreaker(),
		prefix:     prefix,
		logger:     logger,
	}
}

func newNATSPublisher(url string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	natsOpts := []natsgo.Option{
		natsgo.Name("stridesync"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		// Core NATS subjects; consumers that need replay provision their own streams.
		JetStream: wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill NATS publisher: %w", err)
	}
	return pub, nil
}

func newBreaker() *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			switch to {
			case gobreaker.StateClosed:
				metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
			case gobreaker.StateHalfOpen:
				metrics.CircuitBreakerState.WithLabelValues(name).Set(1)
			case gobreaker.StateOpen:
				metrics.CircuitBreakerState.WithLabelValues(name).Set(2)
			}
		},
	})
}

// Topic returns the fully qualified topic for an event name.
func (p *Publisher) Topic(name string) string {
	if p == nil || p.prefix == "" {
		return name
	}
	return p.prefix + "." + name
}

// Publish sends payload as JSON to the named event topic.
func (p *Publisher) Publish(ctx context.Context, name string, payload any, metadata map[string]string) error {
	if p == nil {
		return nil
	}

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrPublisherClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", name, err)
	}

	msg := message.NewMessage(uuid.NewString(), data)
	msg.SetContext(ctx)
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		msg.Metadata.Set("correlation_id", id)
	}
	for k, v := range metadata {
		msg.Metadata.Set(k, v)
	}

	topic := p.Topic(name)
	_, err = p.breaker.Execute(func() (any, error) {
		return nil, p.publisher.Publish(topic, msg)
	})
	metrics.RecordEventPublished(name, err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PublishSyncCompleted emits a sync.completed event.
func (p *Publisher) PublishSyncCompleted(ctx context.Context, ev models.SyncCompletedEvent) error {
	return p.Publish(ctx, TopicSyncCompleted, ev, map[string]string{
		"user_id": ev.UserID,
		"status":  ev.Status.String(),
	})
}

// PublishActivityIngested emits an activity.ingested event.
func (p *Publisher) PublishActivityIngested(ctx context.Context, ev models.ActivityIngestedEvent) error {
	return p.Publish(ctx, TopicActivityIngested, ev, map[string]string{
		"item_id": ev.ItemID,
		"status":  ev.Status.String(),
	})
}

// Subscribe returns messages for an event name. Only the in-process
// backend supports it.
func (p *Publisher) Subscribe(ctx context.Context, name string) (<-chan *message.Message, error) {
	if p == nil || p.subscriber == nil {
		return nil, errors.New("subscribe is only supported by the in-process backend")
	}
	return p.subscriber.Subscribe(ctx, p.Topic(name))
}

// Close shuts down the underlying publisher. Safe to call more than once.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.logger.Info("Event publisher closed", watermill.LogFields{"prefix": p.prefix})
	return p.publisher.Close()
}
