package okx

import (
	"fmt"

	"okx-connector/internal/core"
)

var sideToWire = map[core.Side]string{
	core.Buy:  "buy",
	core.Sell: "sell",
}

var sideFromWire = map[string]core.Side{
	"buy":  core.Buy,
	"sell": core.Sell,
}

var ordTypeToWire = map[core.OrdType]string{
	core.Market:   "market",
	core.Limit:    "limit",
	core.PostOnly: "post_only",
	core.Fok:      "fok",
	core.Ioc:      "ioc",
}

var ordTypeFromWire = map[string]core.OrdType{
	"market":            core.Market,
	"limit":             core.Limit,
	"post_only":         core.PostOnly,
	"fok":               core.Fok,
	"ioc":               core.Ioc,
	"optimal_limit_ioc": core.Ioc,
}

var tdModeToWire = map[core.TdMode]string{
	core.TdIsolated: "isolated",
	core.TdCross:    "cross",
	core.TdCash:     "cash",
}

var mgnModeFromWire = map[string]core.MgnMode{
	"isolated": core.MgnIsolated,
	"cross":    core.MgnCross,
	"cash":     core.MgnCash,
	"":         core.MgnCash,
}

var stateFromWire = map[string]core.OrdState{
	"live":             core.OrdLive,
	"partially_filled": core.OrdPartiallyFilled,
	"filled":           core.OrdFilled,
	"canceled":         core.OrdCanceled,
	"mmp_canceled":     core.OrdCanceled,
}

func wireSide(s core.Side) (string, error) {
	if v, ok := sideToWire[s]; ok {
		return v, nil
	}
	return "", fmt.Errorf("unsupported side %q", s)
}

func wireOrdType(t core.OrdType) (string, error) {
	if v, ok := ordTypeToWire[t]; ok {
		return v, nil
	}
	return "", fmt.Errorf("unsupported order type %q", t)
}

func wireTdMode(m core.TdMode) (string, error) {
	if v, ok := tdModeToWire[m]; ok {
		return v, nil
	}
	return "", fmt.Errorf("unsupported trade mode %q", m)
}

func parseSide(s string) (core.Side, error) {
	if v, ok := sideFromWire[s]; ok {
		return v, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

func parseOrdType(s string) (core.OrdType, error) {
	if v, ok := ordTypeFromWire[s]; ok {
		return v, nil
	}
	return "", fmt.Errorf("unknown order type %q", s)
}

func parseMgnMode(s string) (core.MgnMode, error) {
	if v, ok := mgnModeFromWire[s]; ok {
		return v, nil
	}
	return "", fmt.Errorf("unknown margin mode %q", s)
}

func parseOrdState(s string) (core.OrdState, error) {
	if v, ok := stateFromWire[s]; ok {
		return v, nil
	}
	return "", fmt.Errorf("unknown order state %q", s)
}
