package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepthLevels is the number of price levels kept per book side.
const DepthLevels = 5

type MsgKind string

const (
	MsgDepth           MsgKind = "depth"
	MsgTrade           MsgKind = "trade"
	MsgTicker          MsgKind = "ticker"
	MsgFundingRate     MsgKind = "funding_rate"
	MsgOpenInterest    MsgKind = "open_interest"
	MsgNewOrder        MsgKind = "new_order"
	MsgCancelOrder     MsgKind = "cancel_order"
	MsgExecutionReport MsgKind = "execution_report"
	MsgCancelReject    MsgKind = "cancel_reject"
	MsgBalanceReport   MsgKind = "balance_report"
	MsgPositionReport  MsgKind = "position_report"
	MsgSigTerm         MsgKind = "sig_term"
)

// Msg is the closed set of events and commands moved over the bus.
// Only the payload types in this package implement it.
type Msg interface {
	Kind() MsgKind
	isMsg()
}

// Command is the subset of Msg that strategy code sends to a connector.
type Command interface {
	Msg
	isCommand()
}

type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

type Depth struct {
	Inst     Instrument
	ExchTime time.Time
	RecvTime time.Time
	Asks     [DepthLevels]Level
	Bids     [DepthLevels]Level
}

type Trade struct {
	Inst     Instrument
	ExchTime time.Time
	RecvTime time.Time
	Side     Side
	Price    decimal.Decimal
	Size     decimal.Decimal
}

type Ticker struct {
	Inst     Instrument
	ExchTime time.Time
	RecvTime time.Time
	Last     decimal.Decimal
	LastSize decimal.Decimal
	AskPrice decimal.Decimal
	AskSize  decimal.Decimal
	BidPrice decimal.Decimal
	BidSize  decimal.Decimal
}

type FundingRate struct {
	Inst            Instrument
	FundingRate     decimal.Decimal
	NextFundingRate decimal.Decimal
	FundingTime     time.Time
	NextFundingTime time.Time
	RecvTime        time.Time
}

type OpenInterest struct {
	Inst     Instrument
	ExchTime time.Time
	RecvTime time.Time
	OI       decimal.Decimal
	OICcy    decimal.Decimal
}

// NewOrder asks the connector to place an order. CorrelationID is chosen by
// the strategy and must be unique among commands in flight.
type NewOrder struct {
	Inst          Instrument
	CorrelationID int64
	Side          Side
	OrdType       OrdType
	TdMode        TdMode
	Price         decimal.Decimal
	Size          decimal.Decimal
}

type CancelOrder struct {
	Inst          Instrument
	CorrelationID int64
}

type ExecutionReport struct {
	CreateTime    time.Time
	UpdateTime    time.Time
	Inst          Instrument
	OrderID       string
	CorrelationID int64
	Price         decimal.Decimal
	Size          decimal.Decimal
	Notional      decimal.Decimal
	OrdType       OrdType
	Side          Side
	LastFillPrice decimal.Decimal
	LastFillSize  decimal.Decimal
	CumFillSize   decimal.Decimal
	AvgFillPrice  decimal.Decimal
	State         OrdState
	Leverage      decimal.Decimal
	Fee           decimal.Decimal
}

type CancelReject struct {
	UpdateTime    time.Time
	Inst          Instrument
	CorrelationID int64
}

type BalanceReport struct {
	UpdateTime  time.Time
	Exch        Exch
	Ccy         Ccy
	CashBalance decimal.Decimal
}

type PositionReport struct {
	UpdateTime  time.Time
	Inst        Instrument
	MgnMode     MgnMode
	Position    decimal.Decimal
	MarginCcy   Ccy
	PositionCcy Ccy
	AvgPrice    decimal.Decimal
}

// SigTerm tells the strategy side that the process is shutting down.
type SigTerm struct{}

func (Depth) Kind() MsgKind           { return MsgDepth }
func (Trade) Kind() MsgKind           { return MsgTrade }
func (Ticker) Kind() MsgKind          { return MsgTicker }
func (FundingRate) Kind() MsgKind     { return MsgFundingRate }
func (OpenInterest) Kind() MsgKind    { return MsgOpenInterest }
func (NewOrder) Kind() MsgKind        { return MsgNewOrder }
func (CancelOrder) Kind() MsgKind     { return MsgCancelOrder }
func (ExecutionReport) Kind() MsgKind { return MsgExecutionReport }
func (CancelReject) Kind() MsgKind    { return MsgCancelReject }
func (BalanceReport) Kind() MsgKind   { return MsgBalanceReport }
func (PositionReport) Kind() MsgKind  { return MsgPositionReport }
func (SigTerm) Kind() MsgKind         { return MsgSigTerm }

func (Depth) isMsg()           {}
func (Trade) isMsg()           {}
func (Ticker) isMsg()          {}
func (FundingRate) isMsg()     {}
func (OpenInterest) isMsg()    {}
func (NewOrder) isMsg()        {}
func (CancelOrder) isMsg()     {}
func (ExecutionReport) isMsg() {}
func (CancelReject) isMsg()    {}
func (BalanceReport) isMsg()   {}
func (PositionReport) isMsg()  {}
func (SigTerm) isMsg()         {}

func (NewOrder) isCommand()    {}
func (CancelOrder) isCommand() {}

// Rejected builds the locally synthesized terminal report for an order that
// never reached the book.
func (o NewOrder) Rejected(at time.Time) ExecutionReport {
	return ExecutionReport{
		CreateTime:    at,
		UpdateTime:    at,
		Inst:          o.Inst,
		CorrelationID: o.CorrelationID,
		Price:         o.Price,
		Size:          o.Size,
		OrdType:       o.OrdType,
		Side:          o.Side,
		State:         OrdRejected,
	}
}

// Rejected builds the locally synthesized cancel failure.
func (c CancelOrder) Rejected(at time.Time) CancelReject {
	return CancelReject{
		UpdateTime:    at,
		Inst:          c.Inst,
		CorrelationID: c.CorrelationID,
	}
}

// InstrumentOf returns the instrument a message refers to, if any.
func InstrumentOf(m Msg) (Instrument, bool) {
	switch v := m.(type) {
	case Depth:
		return v.Inst, true
	case Trade:
		return v.Inst, true
	case Ticker:
		return v.Inst, true
	case FundingRate:
		return v.Inst, true
	case OpenInterest:
		return v.Inst, true
	case NewOrder:
		return v.Inst, true
	case CancelOrder:
		return v.Inst, true
	case ExecutionReport:
		return v.Inst, true
	case CancelReject:
		return v.Inst, true
	case PositionReport:
		return v.Inst, true
	}
	return Instrument{}, false
}
