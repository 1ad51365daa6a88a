package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/atlas-portal/atlas-portal/internal/authz"
	"github.com/atlas-portal/atlas-portal/internal/hierarchy"
	"github.com/atlas-portal/atlas-portal/internal/shared"
)

// ErrNotFound indicates the alert does not exist.
var ErrNotFound = fmt.Errorf("alerts: %w", shared.ErrNotFound)

// ErrAlreadyResolved indicates a resolve call against a terminal alert.
var ErrAlreadyResolved = fmt.Errorf("alerts: already resolved: %w", shared.ErrConflict)

// RepositoryPort is the persistence surface the monitor writes through.
type RepositoryPort interface {
	Insert(ctx context.Context, alert Alert) (Alert, error)
	Get(ctx context.Context, id int64) (Alert, error)
	List(ctx context.Context, f Filters) ([]Alert, error)
	MarkResolved(ctx context.Context, id, resolvedBy int64, notes string, at time.Time) (bool, error)
	CountUnresolvedBySeverity(ctx context.Context) (map[Severity]int, error)
}

// Monitor files alerts from mutation-path events and manages their
// resolution lifecycle. Detection is event-triggered; nothing polls.
type Monitor struct {
	repo   RepositoryPort
	client *redis.Client
	logger *slog.Logger
	counts singleflight.Group

	filed   *prometheus.CounterVec
	denials *prometheus.CounterVec
}

// NewMonitor constructs a Monitor. The Redis client backs the windowed
// failed-login and denial counters.
func NewMonitor(repo RepositoryPort, client *redis.Client, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{repo: repo, client: client, logger: logger}
}

// Instrument attaches the filed-alert and guard-denial counters. Optional;
// the monitor works uninstrumented in tests.
func (m *Monitor) Instrument(filed, denials *prometheus.CounterVec) {
	m.filed = filed
	m.denials = denials
}

// File persists an alert produced by a detector or handed in directly.
func (m *Monitor) File(ctx context.Context, alert Alert) (Alert, error) {
	stored, err := m.repo.Insert(ctx, alert)
	if err == nil && m.filed != nil {
		m.filed.WithLabelValues(string(stored.Type), string(stored.Severity)).Inc()
	}
	return stored, err
}

// Offer runs detection on the event and files the result when one is due.
// Failures never propagate to the mutation path.
func (m *Monitor) Offer(ctx context.Context, event Event) {
	alert := Detect(event)
	if alert == nil {
		return
	}
	if _, err := m.File(ctx, *alert); err != nil {
		m.logger.Error("file alert", slog.String("type", string(alert.Type)), slog.Any("error", err))
	}
}

// RecordFailedLogin bumps the per-identity window counter and files exactly
// one failed_logins_multiple alert when the threshold is crossed. The alert
// fires on the crossing attempt only, keeping it idempotent per window.
func (m *Monitor) RecordFailedLogin(ctx context.Context, email, ip string) {
	count, err := m.bumpWindow(ctx, "alerts:failed_login:"+email, FailedLoginWindow)
	if err != nil {
		m.logger.Error("failed login window", slog.Any("error", err))
		return
	}
	if count != FailedLoginThreshold {
		return
	}
	m.Offer(ctx, FailedLoginBatch{Email: email, Attempts: count, Window: FailedLoginWindow, IP: ip})
}

// ClearFailedLogins resets the identity's window after a successful login.
func (m *Monitor) ClearFailedLogins(ctx context.Context, email string) {
	if err := m.client.Del(ctx, "alerts:failed_login:"+email).Err(); err != nil {
		m.logger.Error("clear failed login window", slog.Any("error", err))
	}
}

// GuardDenied implements hierarchy.Observer: every guard denial is weighed
// against the suspicious-attempt heuristic.
func (m *Monitor) GuardDenied(ctx context.Context, actor authz.User, target hierarchy.Target, reason hierarchy.Reason) {
	if m.denials != nil {
		m.denials.WithLabelValues(string(reason)).Inc()
	}
	attempts, err := m.bumpWindow(ctx, fmt.Sprintf("alerts:guard_denial:%d", actor.ID), FailedLoginWindow)
	if err != nil {
		m.logger.Error("guard denial window", slog.Any("error", err))
		attempts = 1
	}
	event := GuardDenialEvent{
		ActorID:     actor.ID,
		ActorLevel:  actor.EffectiveLevel(),
		TargetLevel: target.Level,
		Reason:      string(reason),
		Attempts:    attempts,
	}
	if target.Kind == hierarchy.TargetUser {
		id := target.UserID
		event.TargetUser = &id
	}
	m.Offer(ctx, event)
}

// Get loads a single alert.
func (m *Monitor) Get(ctx context.Context, id int64) (Alert, error) {
	return m.repo.Get(ctx, id)
}

// List returns alerts matching the filters, newest first.
func (m *Monitor) List(ctx context.Context, f Filters) ([]Alert, error) {
	return m.repo.List(ctx, f)
}

// Resolve closes an alert. Terminal: resolving an already resolved alert is
// a conflict, never an overwrite.
func (m *Monitor) Resolve(ctx context.Context, id, resolvedBy int64, notes string) error {
	updated, err := m.repo.MarkResolved(ctx, id, resolvedBy, notes, time.Now())
	if err != nil {
		return err
	}
	if !updated {
		if _, err := m.repo.Get(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyResolved
	}
	return nil
}

// CountUnresolved aggregates unresolved alerts by severity with a count
// query. Concurrent dashboard polls collapse into one database round trip.
func (m *Monitor) CountUnresolved(ctx context.Context) (map[Severity]int, error) {
	result, err, _ := m.counts.Do("unresolved", func() (any, error) {
		return m.repo.CountUnresolvedBySeverity(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[Severity]int), nil
}

func (m *Monitor) bumpWindow(ctx context.Context, key string, window time.Duration) (int, error) {
	count, err := m.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := m.client.Expire(ctx, key, window).Err(); err != nil {
			return int(count), err
		}
	}
	return int(count), nil
}
