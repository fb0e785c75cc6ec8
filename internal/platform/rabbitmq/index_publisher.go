package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"enterprise-kb/internal/model"
)

// IndexPublisher sends index jobs to a durable queue.
type IndexPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewIndexPublisher(conn *amqp.Connection, queueName string) *IndexPublisher {
	return &IndexPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *IndexPublisher) Enqueue(ctx context.Context, job model.IndexJob) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := DeclareQueue(ch, p.queueName); err != nil {
		return err
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal index job failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish index job failed: %w", err)
	}
	return nil
}
