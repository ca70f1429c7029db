// Package strategy is the callback surface strategy code implements. Each
// callback may answer with one command for the connector; nil means none.
package strategy

import (
	"okx-connector/internal/core"
)

type Strategy interface {
	OnDepth(core.Depth) core.Command
	OnTrade(core.Trade) core.Command
	OnTicker(core.Ticker) core.Command
	OnFundingRate(core.FundingRate) core.Command
	OnOpenInterest(core.OpenInterest) core.Command
	OnExecutionReport(core.ExecutionReport) core.Command
	OnCancelReject(core.CancelReject) core.Command
	OnBalanceReport(core.BalanceReport) core.Command
	OnPositionReport(core.PositionReport) core.Command
}

// Stopper is implemented by strategies that need to clean up on shutdown.
type Stopper interface {
	OnStop()
}

// Base ignores every event. Embed it and override what you need.
type Base struct{}

func (Base) OnDepth(core.Depth) core.Command                     { return nil }
func (Base) OnTrade(core.Trade) core.Command                     { return nil }
func (Base) OnTicker(core.Ticker) core.Command                   { return nil }
func (Base) OnFundingRate(core.FundingRate) core.Command         { return nil }
func (Base) OnOpenInterest(core.OpenInterest) core.Command       { return nil }
func (Base) OnExecutionReport(core.ExecutionReport) core.Command { return nil }
func (Base) OnCancelReject(core.CancelReject) core.Command       { return nil }
func (Base) OnBalanceReport(core.BalanceReport) core.Command     { return nil }
func (Base) OnPositionReport(core.PositionReport) core.Command   { return nil }

// Dispatch routes one inbound message to its callback. Commands arriving on
// the inbound side and SigTerm produce no callback result; SigTerm triggers
// Stopper when implemented.
func Dispatch(s Strategy, msg core.Msg) core.Command {
	switch m := msg.(type) {
	case core.Depth:
		return s.OnDepth(m)
	case core.Trade:
		return s.OnTrade(m)
	case core.Ticker:
		return s.OnTicker(m)
	case core.FundingRate:
		return s.OnFundingRate(m)
	case core.OpenInterest:
		return s.OnOpenInterest(m)
	case core.ExecutionReport:
		return s.OnExecutionReport(m)
	case core.CancelReject:
		return s.OnCancelReject(m)
	case core.BalanceReport:
		return s.OnBalanceReport(m)
	case core.PositionReport:
		return s.OnPositionReport(m)
	case core.SigTerm:
		if st, ok := s.(Stopper); ok {
			st.OnStop()
		}
		return nil
	case core.NewOrder, core.CancelOrder:
		return nil
	}
	return nil
}
