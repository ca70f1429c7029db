package core

import (
	"fmt"
	"strings"
)

type Side string

type OrdType string

type TdMode string

type MgnMode string

type OrdState string

type OptType string

type Exch string

// Ccy is an upper-case currency code such as BTC or USDT.
type Ccy string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

const (
	Market   OrdType = "MARKET"
	Limit    OrdType = "LIMIT"
	PostOnly OrdType = "POST_ONLY"
	Fok      OrdType = "FOK"
	Ioc      OrdType = "IOC"
)

const (
	TdIsolated TdMode = "ISOLATED"
	TdCross    TdMode = "CROSS"
	TdCash     TdMode = "CASH"
)

const (
	MgnIsolated MgnMode = "ISOLATED"
	MgnCross    MgnMode = "CROSS"
	MgnCash     MgnMode = "CASH"
)

const (
	OrdUnknown         OrdState = "UNKNOWN"
	OrdLive            OrdState = "LIVE"
	OrdPartiallyFilled OrdState = "PARTIALLY_FILLED"
	OrdFilled          OrdState = "FILLED"
	OrdCanceled        OrdState = "CANCELED"
	OrdRejected        OrdState = "REJECTED"
)

const (
	Call OptType = "C"
	Put  OptType = "P"
)

const (
	Okx            Exch = "Okx"
	BinanceFutures Exch = "BinanceFutures"
)

const maxCcyLen = 16

func ParseExch(s string) (Exch, error) {
	switch Exch(s) {
	case Okx, BinanceFutures:
		return Exch(s), nil
	}
	return "", fmt.Errorf("unknown exchange %q", s)
}

func ParseCcy(s string) (Ccy, error) {
	if s == "" || len(s) > maxCcyLen {
		return "", fmt.Errorf("invalid currency code %q", s)
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("invalid currency code %q", s)
		}
	}
	return Ccy(s), nil
}

func ParseOptType(s string) (OptType, error) {
	switch OptType(s) {
	case Call, Put:
		return OptType(s), nil
	}
	return "", fmt.Errorf("unknown option type %q", s)
}

func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(s)) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

func (s OrdState) Terminal() bool {
	return s == OrdFilled || s == OrdCanceled || s == OrdRejected
}
