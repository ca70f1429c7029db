// Package engine wires one connector to one strategy over a pair of buses.
package engine

import (
	"context"
	"errors"
	"os"
	"time"

	"okx-connector/internal/alert"
	"okx-connector/internal/bus"
	"okx-connector/internal/core"
	"okx-connector/internal/exchange"
	"okx-connector/internal/logger"
	"okx-connector/internal/store"
	"okx-connector/internal/strategy"
)

const shutdownGrace = 10 * time.Second

type Runner struct {
	Connector  exchange.Connector
	Strategy   strategy.Strategy
	Mode       string
	InstanceID string
	// Capacity sizes both buses; zero means bus.DefaultCapacity.
	Capacity  int
	Heartbeat time.Duration
	Store     store.StatusWriter
	Alerts    alert.Alerter
}

type runStats struct {
	startedAt time.Time
	received  map[core.MsgKind]int64
	sent      map[core.MsgKind]int64
}

// Run starts the connector and feeds its events to the strategy until ctx is
// done or the connector stops. Commands returned by the strategy go back to
// the connector in order.
func (r *Runner) Run(ctx context.Context) (runErr error) {
	log := logger.GetLogger().WithComponent("engine").WithFields(logger.Fields{
		"connector": r.Connector.Name(),
		"instance":  r.InstanceID,
	})
	stats := runStats{
		startedAt: time.Now().UTC(),
		received:  make(map[core.MsgKind]int64),
		sent:      make(map[core.MsgKind]int64),
	}
	inTx, inRx := bus.New(r.Capacity)
	outTx, outRx := bus.New(r.Capacity)

	connCtx, stopConn := context.WithCancel(ctx)
	defer stopConn()
	connDone := make(chan error, 1)
	go func() {
		connDone <- r.Connector.Start(connCtx, inTx, outRx)
	}()
	r.persistStatus("running", stats, inRx, outTx, nil)
	log.Info("runner started")

	var heartbeat <-chan time.Time
	if r.Heartbeat > 0 {
		ticker := time.NewTicker(r.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			outTx.Close()
			stopConn()
			select {
			case err := <-connDone:
				if err != nil && !errors.Is(err, context.Canceled) {
					log.WithError(err).Warn("connector stopped with error during shutdown")
				}
			case <-time.After(shutdownGrace):
				log.Warn("connector did not stop within grace period")
			}
			// Rejections synthesized while the connector wound down.
			r.drain(inRx, &stats)
			strategy.Dispatch(r.Strategy, core.SigTerm{})
			inRx.Close()
			r.persistStatus("stopped", stats, inRx, outTx, nil)
			log.WithField("received", kindCounts(stats.received)).Info("runner stopped")
			return nil
		case err := <-connDone:
			r.drain(inRx, &stats)
			strategy.Dispatch(r.Strategy, core.SigTerm{})
			outTx.Close()
			inRx.Close()
			if err != nil {
				log.WithError(err).Error("connector stopped")
				r.alert("runner_stopped", map[string]string{"reason": err.Error()})
			} else {
				log.Info("connector stopped")
			}
			r.persistStatus("stopped", stats, inRx, outTx, err)
			return err
		case msg := <-inRx.C():
			if err := r.handle(ctx, msg, outTx, &stats); err != nil {
				log.WithError(err).Warn("command not forwarded")
			}
		case <-heartbeat:
			r.heartbeat(log, stats, inRx, outTx)
		}
	}
}

func (r *Runner) handle(ctx context.Context, msg core.Msg, outTx bus.Sender, stats *runStats) error {
	stats.received[msg.Kind()]++
	cmd := strategy.Dispatch(r.Strategy, msg)
	if cmd == nil {
		return nil
	}
	if err := outTx.Send(ctx, cmd); err != nil {
		return err
	}
	stats.sent[cmd.Kind()]++
	return nil
}

// drain hands events already queued by a stopped connector to the strategy.
// Commands produced at this point have nowhere to go and are dropped.
func (r *Runner) drain(inRx bus.Receiver, stats *runStats) {
	for {
		select {
		case msg := <-inRx.C():
			stats.received[msg.Kind()]++
			strategy.Dispatch(r.Strategy, msg)
		default:
			return
		}
	}
}

func (r *Runner) heartbeat(log *logger.Entry, stats runStats, inRx bus.Receiver, outTx bus.Sender) {
	fields := logger.Fields{
		"uptime_sec":   int64(time.Since(stats.startedAt) / time.Second),
		"received":     kindCounts(stats.received),
		"sent":         kindCounts(stats.sent),
		"inbound_len":  inRx.Len(),
		"outbound_len": outTx.Len(),
	}
	for _, c := range logger.Counts() {
		if c.Warns > 0 || c.Errors > 0 {
			fields["warn_"+c.Component] = c.Warns
			fields["error_"+c.Component] = c.Errors
		}
	}
	log.WithFields(fields).Info("heartbeat")
	r.persistStatus("running", stats, inRx, outTx, nil)
}

func (r *Runner) persistStatus(state string, stats runStats, inRx bus.Receiver, outTx bus.Sender, lastErr error) {
	if r.Store == nil {
		return
	}
	status := store.RuntimeStatus{
		Mode:        r.Mode,
		InstanceID:  r.InstanceID,
		Connector:   r.Connector.Name(),
		PID:         os.Getpid(),
		State:       state,
		StartedAt:   stats.startedAt,
		Received:    kindCounts(stats.received),
		Sent:        kindCounts(stats.sent),
		InboundLen:  inRx.Len(),
		OutboundLen: outTx.Len(),
	}
	if p, ok := r.Connector.(exchange.PublicOnly); ok {
		status.PublicOnly = p.PublicOnly()
	}
	if lastErr != nil {
		status.LastError = lastErr.Error()
	}
	if err := r.Store.SaveRuntimeStatus(status); err != nil {
		logger.GetLogger().WithComponent("engine").WithError(err).Warn("runtime status write failed")
	}
}

func (r *Runner) alert(event string, fields map[string]string) {
	if r.Alerts == nil {
		return
	}
	r.Alerts.Important(event, fields)
}

func kindCounts(m map[core.MsgKind]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}
