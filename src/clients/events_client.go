package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"codecollab-auth-svc/src/internal/config"
	"codecollab-auth-svc/src/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// EventsClient publishes security events and outbound email messages to
// RabbitMQ. Consumers (the audit trail writer and the email worker) live in
// other services.
type EventsClient struct {
	channel *amqp.Channel
	cfg     *config.RabbitMQConfig
}

func NewEventsClient(cfg *config.Configuration, channel *amqp.Channel) *EventsClient {
	return &EventsClient{
		channel: channel,
		cfg:     &cfg.Queue.RabbitMQ,
	}
}

type securityEventMessage struct {
	Event     string                 `json:"event"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// PublishSecurityEvent publishes one security event to the events queue.
func (c *EventsClient) PublishSecurityEvent(ctx context.Context, event string, details map[string]interface{}) error {
	message := securityEventMessage{
		Event:     event,
		Details:   details,
		Timestamp: time.Now(),
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal security event: %w", err)
	}

	err = c.channel.Publish(
		c.cfg.Exchange,
		c.cfg.EventsRoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   time.Now(),
		},
	)
	if err != nil {
		logrus.WithError(err).Error("Failed to publish security event")
		return fmt.Errorf("failed to publish security event: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"event":       event,
		"exchange":    c.cfg.Exchange,
		"routing_key": c.cfg.EventsRoutingKey,
	}).Debug("Security event published")

	return nil
}

// SendEmail publishes an email message to the email queue. Rendering and
// delivery are the email worker's job.
func (c *EventsClient) SendEmail(ctx context.Context, to, template string, data map[string]string) error {
	message := models.EmailMessage{
		To:        to,
		Template:  template,
		Data:      data,
		Timestamp: time.Now(),
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal email message: %w", err)
	}

	err = c.channel.Publish(
		c.cfg.Exchange,
		c.cfg.EmailRoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   time.Now(),
		},
	)
	if err != nil {
		logrus.WithError(err).Error("Failed to publish email message")
		return fmt.Errorf("failed to publish email message: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"template":    template,
		"routing_key": c.cfg.EmailRoutingKey,
	}).Debug("Email message published")

	return nil
}
