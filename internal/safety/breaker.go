package safety

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"okx-connector/internal/alert"
	"okx-connector/internal/logger"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

type circuitState string

const (
	circuitClosed   circuitState = "closed"
	circuitOpen     circuitState = "open"
	circuitHalfOpen circuitState = "half_open"
)

const (
	actionPlace   = "place order"
	actionCancel  = "cancel order"
	actionRestart = "restart"
)

const (
	defaultCooldown       = 30 * time.Second
	defaultProbeSuccesses = 1
)

type circuit struct {
	name            string
	maxFailures     int
	failures        int
	state           circuitState
	openedAt        time.Time
	openErr         error
	halfOpenSuccess int
}

// Breaker tracks consecutive failures for REST order submission, REST
// cancellation and client restarts. A tripped circuit rejects work until its
// cooldown passes, then admits probes; enough successful probes close it again.
type Breaker struct {
	enabled bool

	mu      sync.Mutex
	place   circuit
	cancel  circuit
	restart circuit

	cooldown       time.Duration
	probeSuccesses int

	alerter alert.Alerter
}

func NewBreaker(enabled bool, maxPlaceFailures, maxCancelFailures, maxRestartFailures int) *Breaker {
	return &Breaker{
		enabled:        enabled,
		place:          circuit{name: actionPlace, maxFailures: maxPlaceFailures, state: circuitClosed},
		cancel:         circuit{name: actionCancel, maxFailures: maxCancelFailures, state: circuitClosed},
		restart:        circuit{name: actionRestart, maxFailures: maxRestartFailures, state: circuitClosed},
		cooldown:       defaultCooldown,
		probeSuccesses: defaultProbeSuccesses,
	}
}

// SetRecovery sets how long a tripped circuit stays open and how many
// successful restart probes close it.
func (b *Breaker) SetRecovery(cooldown time.Duration, probeSuccesses int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	if probeSuccesses < 1 {
		probeSuccesses = defaultProbeSuccesses
	}
	b.cooldown = cooldown
	b.probeSuccesses = probeSuccesses
}

func (b *Breaker) SetAlerter(alerter alert.Alerter) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alerter = alerter
}

func (b *Breaker) AllowPlace() error {
	if b == nil {
		return nil
	}
	return b.allow(&b.place)
}

func (b *Breaker) AllowCancel() error {
	if b == nil {
		return nil
	}
	return b.allow(&b.cancel)
}

func (b *Breaker) AllowRestart() error {
	if b == nil {
		return nil
	}
	return b.allow(&b.restart)
}

func (b *Breaker) RecordPlace(err error) error {
	if b == nil {
		return nil
	}
	return b.record(&b.place, err)
}

func (b *Breaker) RecordCancel(err error) error {
	if b == nil {
		return nil
	}
	return b.record(&b.cancel, err)
}

func (b *Breaker) RecordRestart(err error) error {
	if b == nil {
		return nil
	}
	return b.record(&b.restart, err)
}

func (b *Breaker) RestartCooldownRemaining() time.Duration {
	if b == nil || !b.enabled {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.restart.state != circuitOpen || b.cooldown <= 0 {
		return 0
	}
	elapsed := time.Since(b.restart.openedAt)
	if elapsed >= b.cooldown {
		return 0
	}
	return b.cooldown - elapsed
}

func (b *Breaker) allow(c *circuit) error {
	if !b.enabled {
		return nil
	}
	b.mu.Lock()
	if c.state != circuitOpen {
		b.mu.Unlock()
		return nil
	}
	if b.cooldown > 0 && time.Since(c.openedAt) < b.cooldown {
		err := c.openErr
		if err == nil {
			err = fmt.Errorf("%w: %s circuit is open", ErrCircuitOpen, c.name)
		}
		b.mu.Unlock()
		return err
	}
	c.state = circuitHalfOpen
	c.halfOpenSuccess = 0
	c.failures = 0
	c.openErr = nil
	alerter := b.alerter
	cooldownSec := int64(b.cooldown / time.Second)
	b.mu.Unlock()

	breakerLog().WithFields(logger.Fields{"action": c.name, "cooldown_sec": cooldownSec}).Info("circuit breaker half open")
	if alerter != nil {
		alerter.Important("circuit_breaker_half_open", map[string]string{
			"action":       c.name,
			"cooldown_sec": strconv.FormatInt(cooldownSec, 10),
		})
	}
	return nil
}

func (b *Breaker) record(c *circuit, err error) error {
	if !b.enabled {
		return nil
	}

	b.mu.Lock()
	if c.maxFailures < 1 {
		b.mu.Unlock()
		return nil
	}

	if err == nil {
		prevFailures := c.failures
		prevState := c.state
		recovered := false
		switch c.state {
		case circuitHalfOpen:
			c.halfOpenSuccess++
			if c.halfOpenSuccess >= b.probeSuccesses || c.name != actionRestart {
				recovered = true
				c.state = circuitClosed
				c.failures = 0
				c.openErr = nil
				c.openedAt = time.Time{}
				c.halfOpenSuccess = 0
			}
		case circuitOpen:
			// A success without a granted probe does not close the circuit.
		case circuitClosed:
			if c.failures > 0 {
				recovered = true
				c.failures = 0
			}
		}
		alerter := b.alerter
		b.mu.Unlock()
		if recovered {
			breakerLog().WithFields(logger.Fields{
				"action":                        c.name,
				"previous_consecutive_failures": prevFailures,
				"from_state":                    string(prevState),
			}).Info("circuit breaker recovered")
			if alerter != nil {
				alerter.Important("circuit_breaker_recovered", map[string]string{
					"action":                        c.name,
					"previous_consecutive_failures": strconv.Itoa(prevFailures),
					"from_state":                    string(prevState),
				})
			}
		}
		return nil
	}

	if c.state == circuitOpen {
		openErr := c.openErr
		if openErr == nil {
			openErr = fmt.Errorf("%w: %s circuit is open", ErrCircuitOpen, c.name)
			c.openErr = openErr
		}
		b.mu.Unlock()
		return openErr
	}

	if c.state == circuitHalfOpen {
		openErr := b.tripLocked(c, err, 1, "half_open_probe_failed")
		alerter := b.alerter
		b.mu.Unlock()
		b.reportTrip(alerter, c.name, "half_open", 1, c.maxFailures, err)
		return openErr
	}

	c.failures++
	failures := c.failures
	limit := c.maxFailures
	alerter := b.alerter
	if failures < limit {
		nearTrip := shouldWarnNearTrip(c.name, failures, limit)
		b.mu.Unlock()
		if nearTrip {
			breakerLog().WithError(err).WithFields(logger.Fields{
				"action":               c.name,
				"consecutive_failures": failures,
				"threshold":            limit,
			}).Warn("circuit breaker near trip")
			if alerter != nil {
				alerter.Important("circuit_breaker_near_trip", map[string]string{
					"action":               c.name,
					"consecutive_failures": strconv.Itoa(failures),
					"threshold":            strconv.Itoa(limit),
					"last_error":           err.Error(),
				})
			}
		}
		return nil
	}

	openErr := b.tripLocked(c, err, failures, "consecutive_failures")
	b.mu.Unlock()
	b.reportTrip(alerter, c.name, "closed", failures, limit, err)
	return openErr
}

func (b *Breaker) reportTrip(alerter alert.Alerter, action, phase string, failures, limit int, err error) {
	breakerLog().WithError(err).WithFields(logger.Fields{
		"action":               action,
		"phase":                phase,
		"consecutive_failures": failures,
		"threshold":            limit,
	}).Error("circuit breaker trip")
	if alerter != nil {
		alerter.Important("circuit_breaker_trip", map[string]string{
			"action":               action,
			"phase":                phase,
			"consecutive_failures": strconv.Itoa(failures),
			"threshold":            strconv.Itoa(limit),
			"last_error":           err.Error(),
		})
	}
}

func (b *Breaker) tripLocked(c *circuit, err error, failures int, reason string) error {
	if failures < 1 {
		failures = c.maxFailures
	}
	c.state = circuitOpen
	c.openedAt = time.Now().UTC()
	c.halfOpenSuccess = 0
	c.failures = failures
	c.openErr = fmt.Errorf("%w: %s failed %d consecutive times, cooldown=%s, reason=%s, last error: %v", ErrCircuitOpen, c.name, failures, b.cooldown.String(), reason, err)
	return c.openErr
}

func shouldWarnNearTrip(action string, failures, limit int) bool {
	if limit <= 1 || failures != limit-1 {
		return false
	}
	return action == actionPlace || action == actionCancel
}

func breakerLog() *logger.Entry {
	return logger.GetLogger().WithComponent("breaker")
}
