// Package feeder polls external price feeds into the in-process push sources
// and TWAP accumulators, and closes TWAP windows as they come due.
package feeder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"arthcore/native/oracle"
	"arthcore/observability"
	"arthcore/services/arthd/storage"
)

// SampleRecorder persists accepted observations.
type SampleRecorder interface {
	RecordSample(ctx context.Context, sample storage.Sample) error
}

// Refresher closes TWAP windows whose period has elapsed.
type Refresher interface {
	RefreshDue() ([]string, map[string]error)
}

// Binding connects a feed to the source it supplies.
type Binding struct {
	Feed   oracle.Feed
	Target string
	Sink   func(price *uint256.Int, observedAt, fetchedAt time.Time) error
}

// Manager orchestrates periodic polling across configured feeds.
type Manager struct {
	logger    *slog.Logger
	recorder  SampleRecorder
	refresher Refresher
	bindings  []Binding
	interval  time.Duration
	maxAge    time.Duration
	timeout   time.Duration
	metrics   *observability.FeederMetrics
	now       func() time.Time
	once      sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger installs a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithTimeout bounds each feed fetch.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// New constructs a manager instance. A nil recorder skips sample persistence.
func New(bindings []Binding, refresher Refresher, recorder SampleRecorder, interval, maxAge time.Duration, opts ...Option) (*Manager, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	for _, b := range bindings {
		if b.Feed == nil || b.Sink == nil {
			return nil, fmt.Errorf("feed binding for %s incomplete", b.Target)
		}
	}
	mgr := &Manager{
		logger:    slog.Default(),
		recorder:  recorder,
		refresher: refresher,
		bindings:  append([]Binding(nil), bindings...),
		interval:  interval,
		maxAge:    maxAge,
		timeout:   10 * time.Second,
		metrics:   observability.Feeder(),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(mgr)
		}
	}
	return mgr, nil
}

// Run blocks, periodically polling upstream feeds until the context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("manager not configured")
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.once.Do(func() {
		m.logger.Info("feeder started", "feeds", len(m.bindings), "interval", m.interval.String())
	})
	for {
		if err := m.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Warn("feeder tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick polls every feed once and then refreshes due TWAP windows. It fails
// only when every feed failed.
func (m *Manager) Tick(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("manager not configured")
	}
	var failures []error
	for _, b := range m.bindings {
		if err := m.poll(ctx, b); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Warn("feed rejected", "feed", b.Feed.ID(), "target", b.Target, "error", err)
			failures = append(failures, fmt.Errorf("%s: %w", b.Feed.ID(), err))
		}
	}
	m.refreshDue()
	if len(m.bindings) > 0 && len(failures) == len(m.bindings) {
		return fmt.Errorf("all feeds failed: %w", errors.Join(failures...))
	}
	return nil
}

func (m *Manager) poll(ctx context.Context, b Binding) error {
	fetchCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	now := m.now()
	obs, err := b.Feed.Fetch(fetchCtx)
	if err == nil {
		err = m.checkAge(obs, now)
	}
	m.metrics.RecordFetch(b.Feed.ID(), now.Sub(obs.ObservedAt), err)
	if err != nil {
		return err
	}
	if err := b.Sink(obs.Price, obs.ObservedAt, now); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	if m.recorder != nil {
		sample := storage.Sample{Feed: b.Feed.ID(), Target: b.Target, Price: obs.Price.Uint64(), ObservedAt: obs.ObservedAt, RecordedAt: now}
		if err := m.recorder.RecordSample(ctx, sample); err != nil {
			m.logger.Warn("record sample failed", "feed", b.Feed.ID(), "error", err)
		}
	}
	return nil
}

func (m *Manager) checkAge(obs oracle.Observation, now time.Time) error {
	if obs.Price == nil || obs.Price.IsZero() {
		return fmt.Errorf("invalid price")
	}
	if !obs.Price.IsUint64() {
		return fmt.Errorf("price %s out of range", obs.Price.Dec())
	}
	if obs.ObservedAt.After(now.Add(5 * time.Second)) {
		return fmt.Errorf("future timestamp %s", obs.ObservedAt.UTC().Format(time.RFC3339))
	}
	if m.maxAge > 0 && obs.ObservedAt.Before(now.Add(-m.maxAge)) {
		return fmt.Errorf("observation expired at %s", obs.ObservedAt.UTC().Format(time.RFC3339))
	}
	return nil
}

func (m *Manager) refreshDue() {
	if m.refresher == nil {
		return
	}
	refreshed, failures := m.refresher.RefreshDue()
	for _, route := range refreshed {
		m.metrics.RecordRefresh(route, nil)
		m.logger.Debug("twap window closed", "route", route)
	}
	routes := make([]string, 0, len(failures))
	for route := range failures {
		routes = append(routes, route)
	}
	sort.Strings(routes)
	for _, route := range routes {
		m.metrics.RecordRefresh(route, failures[route])
		m.logger.Warn("twap refresh failed", "route", route, "error", failures[route])
	}
}
