// Package scheduler contains background jobs that run on a fixed cadence
package scheduler

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/valzstore/topup-engine/app/dto"
	businessflow "github.com/valzstore/topup-engine/business_flow"
	"github.com/valzstore/topup-engine/config"
)

var (
	pollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliation_poll_cycles_total",
			Help: "Total reconciliation cycles partitioned by result",
		},
		[]string{"result"},
	)

	pollCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reconciliation_poll_cycle_duration_seconds",
			Help:    "Duration of reconciliation cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	depositsMatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deposits_matched_total",
		Help: "Deposit requests paired with a gateway transaction",
	})

	depositsCreditedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deposits_credited_total",
		Help: "Deposit requests whose balance increase was applied",
	})

	depositsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deposits_expired_total",
		Help: "Deposit requests swept past their settlement deadline",
	})

	creditApplyFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "credit_apply_failures_total",
		Help: "Credits acknowledged in storage but rejected by the ledger",
	})
)

// ReconciliationScheduler drives reconciliation cycles on a fixed cadence.
// Gateway outages are retried with a bounded backoff inside the cycle slot;
// once attempts are exhausted the cycle is abandoned and the next tick
// starts fresh, so a dead gateway can never wedge the loop.
type ReconciliationScheduler struct {
	flow     businessflow.ReconciliationFlow
	interval time.Duration
	retry    RetryPolicy
	logger   *log.Logger
}

// RetryPolicy bounds in-cycle retries against a transiently failing gateway
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func NewReconciliationScheduler(flow businessflow.ReconciliationFlow, cfg config.DepositConfig, logCfg config.LoggingConfig) *ReconciliationScheduler {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	retry := RetryPolicy{MaxAttempts: cfg.PollMaxAttempts, Backoff: cfg.PollBackoff}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 3
	}
	if retry.Backoff <= 0 {
		retry.Backoff = 2 * time.Second
	}

	return &ReconciliationScheduler{
		flow:     flow,
		interval: interval,
		retry:    retry,
		logger:   newSchedulerLogger(logCfg),
	}
}

// newSchedulerLogger writes to stdout plus a size-rotated file when file
// output is configured.
func newSchedulerLogger(cfg config.LoggingConfig) *log.Logger {
	var w io.Writer = os.Stdout
	if cfg.Output == "file" || cfg.Output == "both" {
		rotated := &lumberjack.Logger{
			Filename:   filepath.Join(filepath.Dir(cfg.FilePath), "scheduler.log"),
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		if cfg.Output == "file" {
			w = rotated
		} else {
			w = io.MultiWriter(os.Stdout, rotated)
		}
	}
	return log.New(w, "scheduler ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// Start launches the scheduler loop in a background goroutine and returns a stop function
func (s *ReconciliationScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	return cancel
}

func (s *ReconciliationScheduler) runOnce(ctx context.Context) {
	start := time.Now()
	defer func() {
		pollCycleDuration.Observe(time.Since(start).Seconds())
	}()

	for attempt := 1; attempt <= s.retry.MaxAttempts; attempt++ {
		outcome, err := s.flow.PollOnce(ctx)
		if outcome != nil {
			s.record(outcome)
		}
		if err == nil {
			pollCyclesTotal.WithLabelValues("ok").Inc()
			if outcome != nil && (outcome.Matched > 0 || outcome.Credited > 0 || outcome.Expired > 0) {
				s.logger.Printf("scheduler: cycle matched=%d credited=%d expired=%d apply_failures=%d",
					outcome.Matched, outcome.Credited, outcome.Expired, outcome.ApplyFailures)
			}
			return
		}

		if !businessflow.IsGatewayUnavailable(err) {
			pollCyclesTotal.WithLabelValues("error").Inc()
			s.logger.Printf("scheduler: cycle failed: %v", err)
			return
		}

		s.logger.Printf("scheduler: gateway unavailable (attempt %d/%d): %v", attempt, s.retry.MaxAttempts, err)
		if attempt == s.retry.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retry.Backoff * time.Duration(attempt)):
		}
	}

	pollCyclesTotal.WithLabelValues("gateway_unavailable").Inc()
	s.logger.Printf("scheduler: abandoning cycle after %d gateway attempts", s.retry.MaxAttempts)
}

func (s *ReconciliationScheduler) record(outcome *dto.PollOutcome) {
	depositsMatchedTotal.Add(float64(outcome.Matched))
	depositsCreditedTotal.Add(float64(outcome.Credited))
	depositsExpiredTotal.Add(float64(outcome.Expired))
	creditApplyFailuresTotal.Add(float64(outcome.ApplyFailures))
}
