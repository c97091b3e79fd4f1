package application

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	repo "github.com/oksasatya/turbo-auth/internal/domain/repository"
)

// Housekeeping periodically deletes expired sessions. Expiry is enforced at
// read time regardless; this only keeps the store from growing unbounded.
type Housekeeping struct {
	Sessions repo.SessionRepository
	Logger   logrus.FieldLogger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeeping defaults a non-positive interval to one hour.
func NewHousekeeping(sessions repo.SessionRepository, logger logrus.FieldLogger, interval time.Duration) *Housekeeping {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Housekeeping{
		Sessions: sessions,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs a cleanup immediately and then every Interval until Stop.
func (h *Housekeeping) Start() {
	go h.run()
	h.Logger.WithField("interval", h.Interval.String()).Info("session housekeeping started")
}

// Stop blocks until an in-progress cleanup has finished.
func (h *Housekeeping) Stop() {
	close(h.stopCh)
	<-h.doneCh
	h.Logger.Info("session housekeeping stopped")
}

func (h *Housekeeping) run() {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	h.Cleanup(context.Background())
	for {
		select {
		case <-ticker.C:
			h.Cleanup(context.Background())
		case <-h.stopCh:
			return
		}
	}
}

// Cleanup deletes expired sessions once and returns how many were removed.
func (h *Housekeeping) Cleanup(ctx context.Context) int64 {
	n, err := h.Sessions.DeleteExpired(ctx)
	if err != nil {
		h.Logger.WithError(err).Error("failed to delete expired sessions")
		return 0
	}
	if n > 0 {
		h.Logger.WithField("deleted", n).Info("expired sessions deleted")
	}
	return n
}
