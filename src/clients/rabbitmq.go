package clients

import (
	"fmt"

	"codecollab-auth-svc/src/internal/config"

	"github.com/streadway/amqp"
)

type RabbitMQ struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
	cfg     *config.QueueConfig
}

func NewRabbitMQ(cfg *config.QueueConfig) (*RabbitMQ, error) {
	log.WithField("url", "url:"+cfg.RabbitMQ.Url).Info("Connecting to RabbitMQ...")
	conn, err := amqp.Dial(cfg.RabbitMQ.Url)
	if err != nil {
		log.WithError(err).Errorf("Failed to connect to RabbitMQ: %v", err)
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		log.WithError(err).Errorf("Failed to open a channel: %v", err)
		return nil, err
	}

	log.Infof("Connected to RabbitMQ at %s", cfg.RabbitMQ.Url)

	return &RabbitMQ{
		Conn:    conn,
		Channel: channel,
		cfg:     cfg,
	}, nil
}

func (r *RabbitMQ) Close() error {
	if r.Channel != nil {
		if err := r.Channel.Close(); err != nil {
			log.WithError(err).Error("Failed to close RabbitMQ channel")
			return err
		}
		log.Info("RabbitMQ channel closed")
	}

	if r.Conn != nil {
		if err := r.Conn.Close(); err != nil {
			log.WithError(err).Error("Failed to close RabbitMQ connection")
			return err
		}
		log.Info("RabbitMQ connection closed")
	}

	return nil
}

// SetupQueues declares the exchange and binds the security-event and email
// queues to it.
func (r *RabbitMQ) SetupQueues() error {
	mq := r.cfg.RabbitMQ

	err := r.Channel.ExchangeDeclare(
		mq.Exchange,
		mq.ExchangeType,
		mq.Durable,
		mq.AutoDelete,
		mq.Internal,
		mq.NoWait,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %v", err)
	}

	bindings := []struct {
		queue      string
		routingKey string
	}{
		{mq.EventsQueue, mq.EventsRoutingKey},
		{mq.EmailQueue, mq.EmailRoutingKey},
	}

	for _, b := range bindings {
		_, err := r.Channel.QueueDeclare(
			b.queue,
			mq.Durable,
			mq.AutoDelete,
			mq.Exclusive,
			mq.NoWait,
			nil,
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %v", b.queue, err)
		}

		if err := r.Channel.QueueBind(b.queue, b.routingKey, mq.Exchange, mq.NoWait, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %v", b.queue, err)
		}
	}

	return nil
}
