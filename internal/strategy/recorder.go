package strategy

import (
	"sync"

	"okx-connector/internal/core"
	"okx-connector/internal/logger"
)

// Recorder logs every event it sees and keeps per-kind counts. It never
// trades. Depth and ticker updates are logged at debug level.
type Recorder struct {
	Base

	mu     sync.Mutex
	counts map[core.MsgKind]int64
	log    *logger.Entry
}

func NewRecorder() *Recorder {
	return &Recorder{
		counts: make(map[core.MsgKind]int64),
		log:    logger.GetLogger().WithComponent("recorder"),
	}
}

func (r *Recorder) Counts() map[core.MsgKind]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[core.MsgKind]int64, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}
	return out
}

func (r *Recorder) seen(kind core.MsgKind) {
	r.mu.Lock()
	r.counts[kind]++
	r.mu.Unlock()
}

func (r *Recorder) OnDepth(d core.Depth) core.Command {
	r.seen(d.Kind())
	r.log.WithFields(logger.Fields{
		"inst":    d.Inst.String(),
		"ask":     d.Asks[0].Price.String(),
		"ask_qty": d.Asks[0].Size.String(),
		"bid":     d.Bids[0].Price.String(),
		"bid_qty": d.Bids[0].Size.String(),
	}).Debug("depth")
	return nil
}

func (r *Recorder) OnTrade(t core.Trade) core.Command {
	r.seen(t.Kind())
	r.log.WithFields(logger.Fields{
		"inst":  t.Inst.String(),
		"side":  string(t.Side),
		"price": t.Price.String(),
		"size":  t.Size.String(),
	}).Info("trade")
	return nil
}

func (r *Recorder) OnTicker(t core.Ticker) core.Command {
	r.seen(t.Kind())
	r.log.WithFields(logger.Fields{"inst": t.Inst.String(), "last": t.Last.String()}).Debug("ticker")
	return nil
}

func (r *Recorder) OnFundingRate(f core.FundingRate) core.Command {
	r.seen(f.Kind())
	r.log.WithFields(logger.Fields{
		"inst":         f.Inst.String(),
		"rate":         f.FundingRate.String(),
		"funding_time": f.FundingTime,
	}).Info("funding rate")
	return nil
}

func (r *Recorder) OnOpenInterest(o core.OpenInterest) core.Command {
	r.seen(o.Kind())
	r.log.WithFields(logger.Fields{"inst": o.Inst.String(), "oi": o.OI.String()}).Info("open interest")
	return nil
}

func (r *Recorder) OnExecutionReport(e core.ExecutionReport) core.Command {
	r.seen(e.Kind())
	r.log.WithFields(logger.Fields{
		"inst":           e.Inst.String(),
		"order_id":       e.OrderID,
		"correlation_id": e.CorrelationID,
		"state":          string(e.State),
		"filled":         e.CumFillSize.String(),
	}).Info("execution report")
	return nil
}

func (r *Recorder) OnCancelReject(c core.CancelReject) core.Command {
	r.seen(c.Kind())
	r.log.WithFields(logger.Fields{"inst": c.Inst.String(), "correlation_id": c.CorrelationID}).Warn("cancel rejected")
	return nil
}

func (r *Recorder) OnBalanceReport(b core.BalanceReport) core.Command {
	r.seen(b.Kind())
	r.log.WithFields(logger.Fields{"ccy": string(b.Ccy), "cash": b.CashBalance.String()}).Info("balance")
	return nil
}

func (r *Recorder) OnPositionReport(p core.PositionReport) core.Command {
	r.seen(p.Kind())
	r.log.WithFields(logger.Fields{
		"inst":      p.Inst.String(),
		"position":  p.Position.String(),
		"avg_price": p.AvgPrice.String(),
	}).Info("position")
	return nil
}

func (r *Recorder) OnStop() {
	r.log.WithField("counts", r.Counts()).Info("recorder stopped")
}
