// Package worker holds queue consumers that run outside the HTTP server.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/turbo-auth/internal/application"
)

// ErrMalformedEvent marks messages that can never be processed; they are
// dropped instead of requeued.
var ErrMalformedEvent = errors.New("malformed auth event")

// AuditConsumer writes every auth event it receives to the audit log.
type AuditConsumer struct {
	Logger logrus.FieldLogger
}

func NewAuditConsumer(logger logrus.FieldLogger) *AuditConsumer {
	return &AuditConsumer{Logger: logger}
}

// Handle decodes one message body and logs it.
func (a *AuditConsumer) Handle(messageType string, body []byte) error {
	var evt application.AuthEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if evt.Type == "" {
		evt.Type = messageType
	}
	if evt.Type == "" || evt.UserID == "" {
		return fmt.Errorf("%w: missing type or user_id", ErrMalformedEvent)
	}

	fields := logrus.Fields{
		"event":       evt.Type,
		"user_id":     evt.UserID,
		"occurred_at": evt.OccurredAt,
	}
	if evt.Email != "" {
		fields["email"] = evt.Email
	}
	for k, v := range evt.Meta {
		fields["meta_"+k] = v
	}
	a.Logger.WithFields(fields).Info("auth event")
	return nil
}

// Run consumes deliveries until ctx is done or the channel closes.
func (a *AuditConsumer) Run(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if err := a.Handle(msg.Type, msg.Body); err != nil {
				a.Logger.WithError(err).Warn("dropping auth event")
				_ = msg.Nack(false, false)
				continue
			}
			_ = msg.Ack(false)
		}
	}
}
