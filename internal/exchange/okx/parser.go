package okx

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"okx-connector/internal/core"
)

// parsePush turns one data frame into bus messages. Any malformed row fails
// the whole frame.
func parsePush(f wsFrame, recv time.Time) ([]core.Msg, error) {
	if f.Arg == nil {
		return nil, fmt.Errorf("data frame without arg")
	}
	switch f.Arg.Channel {
	case channelBooks5:
		return parseBooks(f.Arg, f.Data, recv)
	case channelTrades:
		return parseTrades(f.Data, recv)
	case channelTickers:
		return parseTickers(f.Data, recv)
	case channelFundingRate:
		return parseFundingRates(f.Data, recv)
	case channelOpenInterest:
		return parseOpenInterest(f.Data, recv)
	case channelOrders:
		return parseOrders(f.Data)
	case channelPositions:
		return parsePositions(f.Data)
	case channelBalanceAndPosition:
		return parseBalanceAndPosition(f.Data)
	}
	return nil, fmt.Errorf("unsupported channel %q", f.Arg.Channel)
}

func parseBooks(arg *wsArg, data json.RawMessage, recv time.Time) ([]core.Msg, error) {
	var rows []bookRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	out := make([]core.Msg, 0, len(rows))
	for _, row := range rows {
		instID := row.InstID
		if instID == "" {
			instID = arg.InstID
		}
		inst, err := ParseInstID(instID)
		if err != nil {
			return nil, err
		}
		ts, err := parseMillis("ts", row.Ts)
		if err != nil {
			return nil, err
		}
		d := core.Depth{Inst: inst, ExchTime: ts, RecvTime: recv}
		if err := fillLevels(&d.Asks, row.Asks, "asks"); err != nil {
			return nil, err
		}
		if err := fillLevels(&d.Bids, row.Bids, "bids"); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// fillLevels copies up to DepthLevels levels; missing levels stay zero.
func fillLevels(dst *[core.DepthLevels]core.Level, src [][]string, side string) error {
	for i := range dst {
		dst[i] = core.Level{Price: decimal.Zero, Size: decimal.Zero}
	}
	for i, lvl := range src {
		if i >= core.DepthLevels {
			break
		}
		if len(lvl) < 2 {
			return fmt.Errorf("%s[%d]: want price and size", side, i)
		}
		px, err := parseDecimal(side+".px", lvl[0])
		if err != nil {
			return err
		}
		sz, err := parseDecimal(side+".sz", lvl[1])
		if err != nil {
			return err
		}
		dst[i] = core.Level{Price: px, Size: sz}
	}
	return nil
}

func parseTrades(data json.RawMessage, recv time.Time) ([]core.Msg, error) {
	var rows []tradeRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	out := make([]core.Msg, 0, len(rows))
	for _, row := range rows {
		inst, err := ParseInstID(row.InstID)
		if err != nil {
			return nil, err
		}
		side, err := parseSide(row.Side)
		if err != nil {
			return nil, err
		}
		px, err := parseDecimal("px", row.Px)
		if err != nil {
			return nil, err
		}
		sz, err := parseDecimal("sz", row.Sz)
		if err != nil {
			return nil, err
		}
		ts, err := parseMillis("ts", row.Ts)
		if err != nil {
			return nil, err
		}
		out = append(out, core.Trade{Inst: inst, ExchTime: ts, RecvTime: recv, Side: side, Price: px, Size: sz})
	}
	return out, nil
}

func parseTickers(data json.RawMessage, recv time.Time) ([]core.Msg, error) {
	var rows []tickerRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	out := make([]core.Msg, 0, len(rows))
	for _, row := range rows {
		inst, err := ParseInstIDWithType(row.InstID, row.InstType)
		if err != nil {
			return nil, err
		}
		t := core.Ticker{Inst: inst, RecvTime: recv}
		if t.ExchTime, err = parseMillis("ts", row.Ts); err != nil {
			return nil, err
		}
		fields := []struct {
			name string
			raw  string
			dst  *decimal.Decimal
		}{
			{"last", row.Last, &t.Last},
			{"lastSz", row.LastSz, &t.LastSize},
			{"askPx", row.AskPx, &t.AskPrice},
			{"askSz", row.AskSz, &t.AskSize},
			{"bidPx", row.BidPx, &t.BidPrice},
			{"bidSz", row.BidSz, &t.BidSize},
		}
		for _, f := range fields {
			if *f.dst, err = parseDecimal(f.name, f.raw); err != nil {
				return nil, err
			}
		}
		out = append(out, t)
	}
	return out, nil
}

func parseFundingRates(data json.RawMessage, recv time.Time) ([]core.Msg, error) {
	var rows []fundingRateRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	out := make([]core.Msg, 0, len(rows))
	for _, row := range rows {
		inst, err := ParseInstIDWithType(row.InstID, row.InstType)
		if err != nil {
			return nil, err
		}
		fr := core.FundingRate{Inst: inst, RecvTime: recv}
		if fr.FundingRate, err = parseDecimal("fundingRate", row.FundingRate); err != nil {
			return nil, err
		}
		if fr.NextFundingRate, err = parseDecimal("nextFundingRate", row.NextFundingRate); err != nil {
			return nil, err
		}
		if fr.FundingTime, err = parseMillis("fundingTime", row.FundingTime); err != nil {
			return nil, err
		}
		if fr.NextFundingTime, err = parseMillis("nextFundingTime", row.NextFundingTime); err != nil {
			return nil, err
		}
		out = append(out, fr)
	}
	return out, nil
}

func parseOpenInterest(data json.RawMessage, recv time.Time) ([]core.Msg, error) {
	var rows []openInterestRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	out := make([]core.Msg, 0, len(rows))
	for _, row := range rows {
		inst, err := ParseInstIDWithType(row.InstID, row.InstType)
		if err != nil {
			return nil, err
		}
		oi := core.OpenInterest{Inst: inst, RecvTime: recv}
		if oi.ExchTime, err = parseMillis("ts", row.Ts); err != nil {
			return nil, err
		}
		if oi.OI, err = parseDecimal("oi", row.Oi); err != nil {
			return nil, err
		}
		if oi.OICcy, err = parseDecimal("oiCcy", row.OiCcy); err != nil {
			return nil, err
		}
		out = append(out, oi)
	}
	return out, nil
}

func parseOrders(data json.RawMessage) ([]core.Msg, error) {
	var rows []orderRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	out := make([]core.Msg, 0, len(rows))
	for _, row := range rows {
		rep, err := parseOrderRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, nil
}

func parseOrderRow(row orderRow) (core.ExecutionReport, error) {
	var rep core.ExecutionReport
	inst, err := ParseInstIDWithType(row.InstID, row.InstType)
	if err != nil {
		return rep, err
	}
	rep.Inst = inst
	rep.OrderID = row.OrdID
	rep.CorrelationID = parseCorrelationID(row.ClOrdID)
	if rep.Side, err = parseSide(row.Side); err != nil {
		return rep, err
	}
	if rep.OrdType, err = parseOrdType(row.OrdType); err != nil {
		return rep, err
	}
	if rep.State, err = parseOrdState(row.State); err != nil {
		return rep, err
	}
	if rep.CreateTime, err = parseMillis("cTime", row.CTime); err != nil {
		return rep, err
	}
	if rep.UpdateTime, err = parseMillis("uTime", row.UTime); err != nil {
		return rep, err
	}
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"px", row.Px, &rep.Price},
		{"sz", row.Sz, &rep.Size},
		{"notionalUsd", row.NotionalUsd, &rep.Notional},
		{"fillPx", row.FillPx, &rep.LastFillPrice},
		{"fillSz", row.FillSz, &rep.LastFillSize},
		{"accFillSz", row.AccFillSz, &rep.CumFillSize},
		{"avgPx", row.AvgPx, &rep.AvgFillPrice},
		{"lever", row.Lever, &rep.Leverage},
		{"fee", row.Fee, &rep.Fee},
	}
	for _, f := range fields {
		if *f.dst, err = parseDecimal(f.name, f.raw); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

func parsePositions(data json.RawMessage) ([]core.Msg, error) {
	var rows []positionRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	out := make([]core.Msg, 0, len(rows))
	for _, row := range rows {
		rep, err := parsePositionRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, nil
}

func parsePositionRow(row positionRow) (core.PositionReport, error) {
	var rep core.PositionReport
	inst, err := ParseInstIDWithType(row.InstID, row.InstType)
	if err != nil {
		return rep, err
	}
	rep.Inst = inst
	if rep.MgnMode, err = parseMgnMode(row.MgnMode); err != nil {
		return rep, err
	}
	if rep.Position, err = parseDecimal("pos", row.Pos); err != nil {
		return rep, err
	}
	if rep.AvgPrice, err = parseDecimal("avgPx", row.AvgPx); err != nil {
		return rep, err
	}
	if rep.UpdateTime, err = parseMillis("uTime", row.UTime); err != nil {
		return rep, err
	}
	if rep.MarginCcy, err = parseOptionalCcy("ccy", row.Ccy); err != nil {
		return rep, err
	}
	if rep.PositionCcy, err = parseOptionalCcy("posCcy", row.PosCcy); err != nil {
		return rep, err
	}
	return rep, nil
}

// parseBalanceAndPosition emits one BalanceReport per balance entry followed
// by one PositionReport per position entry.
func parseBalanceAndPosition(data json.RawMessage) ([]core.Msg, error) {
	var rows []balanceAndPositionRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	var out []core.Msg
	for _, row := range rows {
		for _, bal := range row.BalData {
			ccy, err := core.ParseCcy(bal.Ccy)
			if err != nil {
				return nil, &core.DecodeError{Field: "ccy", Value: bal.Ccy, Err: err}
			}
			cash, err := parseDecimal("cashBal", bal.CashBal)
			if err != nil {
				return nil, err
			}
			ts, err := parseMillis("uTime", firstNonEmpty(bal.UTime, row.PTime))
			if err != nil {
				return nil, err
			}
			out = append(out, core.BalanceReport{UpdateTime: ts, Exch: core.Okx, Ccy: ccy, CashBalance: cash})
		}
		for _, pos := range row.PosData {
			if pos.UTime == "" {
				pos.UTime = row.PTime
			}
			rep, err := parsePositionRow(pos)
			if err != nil {
				return nil, err
			}
			out = append(out, rep)
		}
	}
	return out, nil
}

// parseCorrelationID maps clOrdId back to the strategy's id. Orders placed
// outside this connector carry no numeric clOrdId and map to zero.
func parseCorrelationID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// parseDecimal treats an empty string as zero; OKX leaves unset numerics empty.
func parseDecimal(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("field %s: invalid decimal %q", field, s)
	}
	return d, nil
}

func parseMillis(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %s: invalid millisecond timestamp %q", field, s)
	}
	return time.UnixMilli(ms).UTC(), nil
}

func parseOptionalCcy(field, s string) (core.Ccy, error) {
	if s == "" {
		return "", nil
	}
	ccy, err := core.ParseCcy(s)
	if err != nil {
		return "", &core.DecodeError{Field: field, Value: s, Err: err}
	}
	return ccy, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
