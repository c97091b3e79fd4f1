package application

import (
	"context"
	"time"
)

const (
	EventSignup          = "user.signup"
	EventLogin           = "user.login"
	EventLogout          = "session.logout"
	EventLogoutAll       = "session.logout_all"
	EventPasswordChanged = "user.password_changed"
	EventProfileUpdated  = "user.profile_updated"
)

// AuthEvent is published after a successful state change.
type AuthEvent struct {
	Type       string         `json:"type"`
	UserID     string         `json:"user_id"`
	Email      string         `json:"email,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// EventPublisher is satisfied by helpers.RabbitPublisher.
type EventPublisher interface {
	PublishJSON(ctx context.Context, messageType string, body any) error
}

// publish is best effort: a broker outage never fails an auth operation.
func (s *Service) publish(ctx context.Context, evt AuthEvent) {
	if s.Events == nil {
		return
	}
	evt.OccurredAt = s.now().UTC()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.Events.PublishJSON(ctx, evt.Type, evt); err != nil {
		s.Logger.WithError(err).WithField("event", evt.Type).WithField("user_id", evt.UserID).Warn("publish auth event failed")
	}
}
