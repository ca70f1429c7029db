package okx

import (
	"context"
	"errors"
	"strconv"
	"time"

	"okx-connector/internal/alert"
	"okx-connector/internal/bus"
	"okx-connector/internal/core"
	"okx-connector/internal/logger"
	"okx-connector/internal/safety"
)

const minRestartWait = time.Second

// task is one client run. up is called from the task's own goroutine once
// the session is live; it resets the restart backoff.
type task func(ctx context.Context, up func()) error

// supervisor runs a task once, or restarts it after transport failures when
// restart is enabled. Authentication and configuration errors are final.
type supervisor struct {
	restart bool
	breaker *safety.Breaker
	alerter alert.Alerter
	wait    func(ctx context.Context, d time.Duration) error
}

func newSupervisor(restart bool, breaker *safety.Breaker, alerter alert.Alerter) *supervisor {
	if alerter == nil {
		alerter = alert.Nop{}
	}
	return &supervisor{
		restart: restart,
		breaker: breaker,
		alerter: alerter,
		wait:    sleepCtx,
	}
}

func (s *supervisor) run(ctx context.Context, name string, t task) error {
	log := logger.GetLogger().WithComponent("okx_supervisor").WithField("client", name)
	var wasUp bool
	up := func() {
		wasUp = true
		_ = s.breaker.RecordRestart(nil)
	}
	failures := 0
	for attempt := 1; ; attempt++ {
		wasUp = false
		err := t(ctx, up)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil || errors.Is(err, bus.ErrClosed) {
			log.Info("client stopped")
			return nil
		}
		log.WithError(err).WithField("attempt", attempt).Error("client terminated")
		s.alerter.Important("client_terminated", map[string]string{
			"client": name,
			"error":  err.Error(),
		})
		if !s.restart || !restartable(err) {
			return err
		}
		_ = s.breaker.RecordRestart(err)
		if wasUp {
			failures = 0
		}
		failures++
		for {
			allowErr := s.breaker.AllowRestart()
			if allowErr == nil {
				break
			}
			log.WithError(allowErr).Warn("restart held by circuit breaker")
			d := s.breaker.RestartCooldownRemaining()
			if d < minRestartWait {
				d = minRestartWait
			}
			if err := s.wait(ctx, d); err != nil {
				return nil
			}
		}
		if err := s.wait(ctx, backoff(failures)); err != nil {
			return nil
		}
		log.WithField("attempt", attempt+1).Warn("restarting client")
		s.alerter.Important("client_restarted", map[string]string{
			"client":  name,
			"attempt": strconv.Itoa(attempt + 1),
		})
	}
}

func restartable(err error) bool {
	return !errors.Is(err, core.ErrAuthFailed) &&
		!errors.Is(err, core.ErrNoCredentials) &&
		!errors.Is(err, ErrEmptySecret) &&
		!errors.Is(err, errNoSubscriptions) &&
		core.DecodeField(err) == ""
}

func backoff(attempt int) time.Duration {
	d := minRestartWait
	for i := 1; i < attempt && d < 30*time.Second; i++ {
		d *= 2
	}
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
