package core

import (
	"fmt"
	"strings"
)

type DataKind string

const (
	DataDepth        DataKind = "depth"
	DataTrade        DataKind = "trade"
	DataTicker       DataKind = "ticker"
	DataFundingRate  DataKind = "funding_rate"
	DataOpenInterest DataKind = "open_interest"
)

func ParseDataKind(s string) (DataKind, error) {
	k := DataKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case DataDepth, DataTrade, DataTicker, DataFundingRate, DataOpenInterest:
		return k, nil
	}
	return "", fmt.Errorf("unknown data kind %q", s)
}

// Subscription pairs an instrument with one market data kind.
type Subscription struct {
	Inst Instrument
	Data DataKind
}
