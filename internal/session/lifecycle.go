package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smiledesk/smiledesk/agent-plane/internal/backend"
	"github.com/smiledesk/smiledesk/agent-plane/internal/notify"
	"github.com/smiledesk/smiledesk/agent-plane/pkg/models"
)

// reportBudget bounds the teardown work so a slow backend cannot hold the
// call task open.
const reportBudget = 30 * time.Second

// Lifecycle handles call start and teardown around the registry: registering
// live sessions, and at call end posting the report to the platform backend
// and firing the tenant's summary notification.
type Lifecycle struct {
	registry *Registry
	backend  backend.Client
	notifier *notify.Notifier
}

// NewLifecycle builds the lifecycle over a shared registry. The notifier may
// be nil when summary delivery is disabled.
func NewLifecycle(registry *Registry, be backend.Client, notifier *notify.Notifier) *Lifecycle {
	return &Lifecycle{
		registry: registry,
		backend:  be,
		notifier: notifier,
	}
}

// Begin creates and registers the session for a newly connected call.
func (l *Lifecycle) Begin(cfg *models.TenantConfig, meta models.CallMetadata) *Session {
	s := New(cfg, meta)
	l.registry.Add(s)
	log.Info().
		Str("session", s.SessionID()).
		Str("room", s.RoomName()).
		Str("tenant", cfg.TenantID).
		Msg("Call session started")
	return s
}

// End deregisters the session, posts the end-of-call report, and sends the
// tenant's summary notification. Reporting failures are logged and never
// propagate: call teardown always completes.
func (l *Lifecycle) End(ctx context.Context, s *Session) models.CallReport {
	l.registry.Remove(s.SessionID())
	report := s.Report()

	ctx, cancel := context.WithTimeout(ctx, reportBudget)
	defer cancel()

	if err := l.backend.ReportOutcome(ctx, report); err != nil {
		log.Warn().Err(err).
			Str("session", report.SessionID).
			Str("tenant", report.TenantKey).
			Msg("Call report delivery failed")
	}

	if l.notifier != nil {
		l.notifier.CallEnded(ctx, s.Config(), report)
	}

	log.Info().
		Str("session", report.SessionID).
		Str("room", report.RoomName).
		Str("outcome", string(report.Outcome)).
		Msg("Call session ended")
	return report
}
