package trip

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

type EventPublisher interface {
	PublishRecord(ctx context.Context, rec Record) error
}

// Channel is the part of *amqp.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPPublisher announces stored records on a topic exchange.
type AMQPPublisher struct {
	ch       Channel
	exchange string
}

func NewAMQPPublisher(ch Channel, exchange string) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, exchange: exchange}
}

func (p *AMQPPublisher) PublishRecord(ctx context.Context, rec Record) error {
	body, err := json.Marshal(Event{
		Type:            EventCompleted,
		ID:              rec.ID,
		DeviceID:        rec.DeviceID,
		StartTime:       rec.StartTime,
		EndTime:         rec.EndTime,
		DurationSeconds: rec.DurationSeconds,
		DistanceMeters:  rec.DistanceMeters,
		DrivingScore:    rec.DrivingScore,
	})
	if err != nil {
		return errors.Wrap(err, "encode trip event")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = p.ch.PublishWithContext(ctx, p.exchange, EventCompleted, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    rec.ID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	return errors.Wrapf(err, "publish %s", EventCompleted)
}
