package db

import (
	"backend-revly/internal/config"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

var dialAMQPFn = amqp.Dial

// ConnectAMQP opens a channel and declares the trip event exchange. It
// returns nils when no broker is configured.
func ConnectAMQP(cfg config.Config) (*amqp.Connection, *amqp.Channel, error) {
	if cfg.AMQPURL == "" {
		return nil, nil, nil
	}

	conn, err := dialAMQPFn(cfg.AMQPURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "dial amqp")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, errors.Wrap(err, "open amqp channel")
	}
	if err := ch.ExchangeDeclare(cfg.AMQPExchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, errors.Wrapf(err, "declare exchange %s", cfg.AMQPExchange)
	}
	return conn, ch, nil
}
