// Package pubsub publishes crawler events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

// Config holds Pub/Sub connection settings.
type Config struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Publisher sends JSON-encoded events to a Pub/Sub topic.
type Publisher struct {
	client *gcppubsub.Client
	logger *zap.Logger
}

// New connects to Pub/Sub for the given project.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Publisher, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("pubsub: project_id is required")
	}
	client, err := gcppubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub: new client: %w", err)
	}
	return &Publisher{client: client, logger: logger}, nil
}

// Publish marshals payload to JSON and publishes it to topic, returning the
// server-assigned message ID.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("pubsub: marshal payload: %w", err)
	}

	t := p.client.Topic(topic)
	defer t.Stop()

	id, err := t.Publish(ctx, &gcppubsub.Message{Data: data}).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("pubsub: publish to %s: %w", topic, err)
	}

	p.logger.Debug("published message",
		zap.String("topic", topic),
		zap.String("message_id", id))
	return id, nil
}

// Close releases the underlying client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
