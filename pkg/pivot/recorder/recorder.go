package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"trip-pivot-be/internal/pkg/logger"
	"trip-pivot-be/internal/pkg/metrics"
	"trip-pivot-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const module = "EventRecorder"

// Sink is the behavioral-signal log.
type Sink interface {
	Write(ctx context.Context, event PivotEvent) error
}

// EventPublisher is satisfied by the NATS publisher.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// BusSink appends events to the message bus.
type BusSink struct {
	publisher EventPublisher
	timeout   time.Duration
}

func NewBusSink(publisher EventPublisher, timeout time.Duration) *BusSink {
	return &BusSink{publisher: publisher, timeout: timeout}
}

func (s *BusSink) Write(ctx context.Context, event PivotEvent) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.publisher.Publish(ctx, event)
}

// LogSink writes events to the service log. It stands in when no bus is
// reachable.
type LogSink struct {
	logger logger.ILogger
}

func NewLogSink(log logger.ILogger) *LogSink {
	return &LogSink{logger: log}
}

func (s *LogSink) Write(_ context.Context, event PivotEvent) error {
	s.logger.Info(module, "Pivot event", map[string]interface{}{
		"event_id":         event.EventId,
		"trigger_id":       event.TriggerId,
		"source":           event.Source,
		"result":           event.Result,
		"routing_decision": event.RoutingDecision,
		"member_action":    event.MemberAction,
		"applied":          event.AppliedSlotIds,
		"degraded":         event.Degraded,
		"failed":           event.Failed,
	})
	return nil
}

type Config struct {
	Topic           string
	MaxRetries      int
	InitialInterval time.Duration
	Buffer          int64
}

// Recorder hands events to a background router so the caller never waits on
// the sink. Failed writes are retried with backoff, then logged and dropped.
type Recorder struct {
	pubSub *gochannel.GoChannel
	router *message.Router
	sink   Sink
	topic  string
	logger logger.ILogger

	closeOnce sync.Once
}

func New(sink Sink, cfg Config, log logger.ILogger) (*Recorder, error) {
	wmLogger := watermill.NewStdLogger(false, false)

	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: cfg.Buffer,
	}, wmLogger)

	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: 5 * time.Second,
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create recorder router: %w", err)
	}

	r := &Recorder{
		pubSub: pubSub,
		router: router,
		sink:   sink,
		topic:  cfg.Topic,
		logger: log,
	}

	// first added runs outermost: retries happen inside the drop guard
	router.AddMiddleware(
		r.dropAfterRetries,
		middleware.Retry{
			MaxRetries:      cfg.MaxRetries,
			InitialInterval: cfg.InitialInterval,
			Multiplier:      2,
			Logger:          wmLogger,
			OnRetryHook: func(retryNum int, delay time.Duration) {
				metrics.RecorderEventsTotal.WithLabelValues("retried").Inc()
			},
		}.Middleware,
	)
	router.AddNoPublisherHandler("pivot_event_recorder", cfg.Topic, pubSub, r.handle)

	return r, nil
}

// Start runs the router in the background and waits until it is consuming.
func (r *Recorder) Start(ctx context.Context) {
	go func() {
		if err := r.router.Run(ctx); err != nil {
			r.logger.Error(module, "Recorder router stopped", map[string]interface{}{"error": err.Error()})
		}
	}()
	<-r.router.Running()
}

// Record queues the event and returns immediately.
func (r *Recorder) Record(event PivotEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Error(module, "Failed to encode pivot event", map[string]interface{}{
			"event_id": event.EventId,
			"error":    err.Error(),
		})
		return
	}

	msg := message.NewMessage(event.EventId.String(), payload)
	if err := r.pubSub.Publish(r.topic, msg); err != nil {
		metrics.RecorderEventsTotal.WithLabelValues("dropped").Inc()
		r.logger.Warn(module, "Failed to queue pivot event", map[string]interface{}{
			"event_id": event.EventId,
			"error":    err.Error(),
		})
	}
}

func (r *Recorder) handle(msg *message.Message) error {
	var event PivotEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		r.logger.Error(module, "Discarding undecodable pivot event", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		return nil
	}
	if err := r.sink.Write(msg.Context(), event); err != nil {
		return err
	}
	metrics.RecorderEventsTotal.WithLabelValues("written").Inc()
	return nil
}

func (r *Recorder) dropAfterRetries(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		produced, err := h(msg)
		if err != nil {
			metrics.RecorderEventsTotal.WithLabelValues("dropped").Inc()
			r.logger.Error(module, "Pivot event dropped after retries", map[string]interface{}{
				"message_id": msg.UUID,
				"error":      err.Error(),
			})
			return nil, nil
		}
		return produced, nil
	}
}

// Close stops the router, letting in-flight writes finish, then the channel.
func (r *Recorder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		if cerr := r.router.Close(); cerr != nil {
			err = cerr
		}
		if cerr := r.pubSub.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}
