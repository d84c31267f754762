package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2beens/exercisetracker/internal/telemetry/metrics"
	"github.com/2beens/exercisetracker/internal/telemetry/tracing"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const TypeExerciseLogged = "exercise.logged"

type ExerciseLogged struct {
	Type        string    `json:"type"`
	ExerciseID  string    `json:"exerciseId"`
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	Description string    `json:"description"`
	Duration    int       `json:"duration"`
	Date        time.Time `json:"date"`
	LoggedAt    time.Time `json:"loggedAt"`
}

type Publisher interface {
	PublishExerciseLogged(ctx context.Context, event ExerciseLogged) error
	Close() error
}

var _ Publisher = NoopPublisher{}

// NoopPublisher is used when no kafka brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishExerciseLogged(context.Context, ExerciseLogged) error { return nil }
func (NoopPublisher) Close() error                                                { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ Publisher = (*KafkaPublisher)(nil)

type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates an async kafka writer; delivery failures are
// only logged and counted, they never reach the request that caused them.
func NewKafkaPublisher(brokers []string, topic string, metricsManager *metrics.Manager) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion: func(messages []kafka.Message, err error) {
			if err == nil {
				return
			}
			log.Errorf("publish %d exercise event(s) to [%s]: %s", len(messages), topic, err)
			if metricsManager != nil {
				metricsManager.CounterEventsPublishFailed.Add(float64(len(messages)))
			}
		},
	}
	return newKafkaPublisher(writer)
}

func newKafkaPublisher(writer messageWriter) *KafkaPublisher {
	return &KafkaPublisher{
		writer: writer,
	}
}

func (p *KafkaPublisher) PublishExerciseLogged(ctx context.Context, event ExerciseLogged) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "events.kafka.publishExerciseLogged")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("user.id", event.UserID),
		attribute.String("exercise.id", event.ExerciseID),
	)

	event.Type = TypeExerciseLogged
	if event.LoggedAt.IsZero() {
		event.LoggedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(TypeExerciseLogged)},
		},
	}); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
