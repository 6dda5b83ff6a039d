// Package keeper drives the collateral ratio controller on a schedule.
package keeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	coreerrors "arthcore/core/errors"
	"arthcore/native/ratio"
	"arthcore/services/arthd/storage"
)

// Controller is the slice of the ratio controller the keeper drives.
type Controller interface {
	Refresh(ctx context.Context) (ratio.Transition, error)
}

// HistoryRecorder persists successful refreshes.
type HistoryRecorder interface {
	RecordRatio(ctx context.Context, change storage.RatioChange) error
}

// Status summarises the most recent attempt.
type Status struct {
	LastAttempt time.Time         `json:"lastAttempt,omitempty"`
	LastSuccess time.Time         `json:"lastSuccess,omitempty"`
	LastResult  *ratio.Transition `json:"lastResult,omitempty"`
	LastError   string            `json:"lastError,omitempty"`
	Advice      string            `json:"advice,omitempty"`
}

// Refresher calls Controller.Refresh every interval. Guard rejections such as
// the cooldown are expected and logged at debug level.
type Refresher struct {
	controller Controller
	history    HistoryRecorder
	interval   time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.RWMutex
	status Status
}

func NewRefresher(controller Controller, history HistoryRecorder, interval time.Duration, logger *slog.Logger) (*Refresher, error) {
	if controller == nil {
		return nil, fmt.Errorf("keeper: controller required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("keeper: interval must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{controller: controller, history: history, interval: interval, logger: logger, now: time.Now}, nil
}

// SetClock overrides the wall clock used for status timestamps.
func (r *Refresher) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	r.now = now
}

// Run blocks, refreshing every interval until the context is cancelled.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.logger.Info("ratio keeper started", "interval", r.interval.String())
	for {
		_, _ = r.Tick(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick attempts a single refresh.
func (r *Refresher) Tick(ctx context.Context) (ratio.Transition, error) {
	attempt := r.now()
	tr, err := r.controller.Refresh(ctx)
	r.mu.Lock()
	r.status.LastAttempt = attempt
	if err != nil {
		r.status.LastError = err.Error()
		r.status.Advice = coreerrors.AdviceFor(err).String()
	} else {
		result := tr
		r.status.LastSuccess = attempt
		r.status.LastResult = &result
		r.status.LastError = ""
		r.status.Advice = ""
	}
	r.mu.Unlock()

	if err != nil {
		switch coreerrors.KindOf(err) {
		case coreerrors.KindGuard:
			r.logger.Debug("ratio refresh skipped", "error", err)
		default:
			r.logger.Warn("ratio refresh failed", "kind", coreerrors.KindOf(err).String(), "error", err)
		}
		return ratio.Transition{}, err
	}
	r.logger.Debug("keeper refresh applied", "ratio", tr.Ratio)
	if r.history != nil {
		change := storage.RatioChange{Previous: tr.Previous, Ratio: tr.Ratio, Price: tr.Price, RefreshedAt: time.Unix(tr.Timestamp, 0)}
		if herr := r.history.RecordRatio(ctx, change); herr != nil {
			r.logger.Warn("record ratio history failed", "error", herr)
		}
	}
	return tr, nil
}

// Status returns the outcome of the most recent attempt.
func (r *Refresher) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.status
	if out.LastResult != nil {
		result := *out.LastResult
		out.LastResult = &result
	}
	return out
}
