package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

const (
	EventJobSubmitted = "job.submitted"
	EventJobCompleted = "job.completed"
	EventJobFailed    = "job.failed"
)

// Publisher emits job lifecycle events.
type Publisher interface {
	PublishJobEvent(ctx context.Context, event *JobEvent) error
	Close() error
}

// JobEvent never carries credential material.
type JobEvent struct {
	Type       string    `json:"type"`
	JobID      string    `json:"job_id"`
	TraceID    string    `json:"trace_id"`
	OutputKind string    `json:"output_kind"`
	FileName   string    `json:"file_name,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type producer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewProducer(brokers []string, topic string) (Publisher, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return NewPublisher(p, topic), nil
}

// NewPublisher wraps an existing sync producer.
func NewPublisher(p sarama.SyncProducer, topic string) Publisher {
	return &producer{producer: p, topic: topic}
}

func (p *producer) PublishJobEvent(ctx context.Context, event *JobEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.JobID),
		Value: sarama.ByteEncoder(data),
	}

	_, _, err = p.producer.SendMessage(msg)
	return err
}

func (p *producer) Close() error {
	return p.producer.Close()
}

// NopPublisher drops every event. It is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishJobEvent(context.Context, *JobEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
