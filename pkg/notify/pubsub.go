package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
)

const DefaultTopic = "roster-changed"

// Event is published after a run has logged at least one change.
type Event struct {
	RunID      string    `json:"runId"`
	Term       string    `json:"term"`
	Added      int       `json:"added"`
	Removed    int       `json:"removed"`
	ObservedAt time.Time `json:"observedAt"`
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

type PubSub struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

func NewPubSub(ctx context.Context, projectID, topicID string) (*PubSub, error) {
	if topicID == "" {
		topicID = DefaultTopic
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &PubSub{client: client, topic: client.Topic(topicID)}, nil
}

func (p *PubSub) Notify(ctx context.Context, event Event) error {
	msg, err := encode(event)
	if err != nil {
		return err
	}

	// Publish an event and wait for the server to acknowledge it
	res := p.topic.Publish(ctx, msg)
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func encode(event Event) (*pubsub.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"term":  event.Term,
			"runId": event.RunID,
		},
	}, nil
}

func (p *PubSub) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
