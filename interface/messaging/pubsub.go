package messaging

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/geoharvest/scene-downloader/service"
)

// PubSubConsumer implements Consumer on a pubsub subscription
type PubSubConsumer struct {
	client       *pubsub.Client
	subscription *pubsub.Subscription
}

// NewPubSubConsumer on the subscription of the project
func NewPubSubConsumer(ctx context.Context, project, subscription string) (*PubSubConsumer, error) {
	client, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewPubSubConsumer.%w", err)
	}
	sub := client.Subscription(subscription)
	sub.ReceiveSettings.MaxOutstandingMessages = 1
	sub.ReceiveSettings.Synchronous = true
	return &PubSubConsumer{client: client, subscription: sub}, nil
}

// Pull implements Consumer
func (c *PubSubConsumer) Pull(ctx context.Context, cb Callback) error {
	err := c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		tryCount := 1
		if msg.DeliveryAttempt != nil {
			tryCount = *msg.DeliveryAttempt
		}
		if err := cb(ctx, &Message{ID: msg.ID, Data: msg.Data, TryCount: tryCount}); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("Pull.%w", err)
	}
	return nil
}

// Stop releases the connection
func (c *PubSubConsumer) Stop() error {
	return c.client.Close()
}

// PubSubPublisher implements Publisher on a pubsub topic
type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubPublisher on the topic of the project
func NewPubSubPublisher(ctx context.Context, project, topic string) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewPubSubPublisher.%w", err)
	}
	return &PubSubPublisher{client: client, topic: client.Topic(topic)}, nil
}

// Publish implements Publisher
func (p *PubSubPublisher) Publish(ctx context.Context, data ...[]byte) error {
	var results []*pubsub.PublishResult
	for _, d := range data {
		results = append(results, p.topic.Publish(ctx, &pubsub.Message{Data: d}))
	}
	for _, r := range results {
		if _, err := r.Get(ctx); err != nil {
			return service.MakeTemporary(fmt.Errorf("Publish.Get: %w", err))
		}
	}
	return nil
}

// Stop waits for the pending messages and releases the connection
func (p *PubSubPublisher) Stop() {
	p.topic.Stop()
	p.client.Close()
}
