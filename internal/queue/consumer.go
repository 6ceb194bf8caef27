package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type MessageHandler func(ctx context.Context, msg jetstream.Msg) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Consumer{nc: nc, js: js}, nil
}

// ConsumeFrames starts consuming frame tasks for a single camera's subject.
func (c *Consumer) ConsumeFrames(ctx context.Context, camera, consumerName string, handler MessageHandler) error {
	stream, err := c.js.Stream(ctx, FramesStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", FramesStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    3,
		FilterSubject: fmt.Sprintf("%s.%s", FramesSubjectBase, camera),
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go c.fetchLoop(ctx, cons, 1, handler)
	slog.Info("frame consumer started", "camera", camera, "consumer", consumerName)
	return nil
}

// ConsumeFaces starts consuming the single-writer face capture sideband.
func (c *Consumer) ConsumeFaces(ctx context.Context, consumerName string, handler MessageHandler) error {
	stream, err := c.js.Stream(ctx, FacesStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", FacesStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    5,
		FilterSubject: FacesSubject,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go c.fetchLoop(ctx, cons, 1, handler)
	slog.Info("face capture consumer started", "consumer", consumerName)
	return nil
}

// fetchLoop fetches one message at a time with a 1s max wait, matching the
// frame_queue.get(timeout=1) / face_queue.get(timeout=1) polling shape of
// the original single-process design.
func (c *Consumer) fetchLoop(ctx context.Context, cons jetstream.Consumer, batch int, handler MessageHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := cons.Fetch(batch, jetstream.FetchMaxWait(1*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		for msg := range msgs.Messages() {
			if err := handler(ctx, msg); err != nil {
				slog.Error("message handler error", "error", err, "subject", msg.Subject())
				_ = msg.Nak()
			} else {
				_ = msg.Ack()
			}
		}
	}
}

func (c *Consumer) Close() {
	c.nc.Close()
}
