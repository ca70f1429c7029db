package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Decode error fields.
const (
	FieldFormat   = "format"
	FieldExchange = "exchange"
	FieldBase     = "base"
	FieldQuote    = "quote"
	FieldType     = "type"
	FieldExpiry   = "expiry"
	FieldStrike   = "strike"
	FieldOptType  = "option_type"
)

const expiryLayout = "060102"

// Date is a civil calendar date without zone, so instruments stay comparable with ==.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// YYMMDD formats the date with a two digit year. Years 1969-2068 survive a round trip.
func (d Date) YYMMDD() string {
	return d.Time().Format(expiryLayout)
}

func ParseYYMMDD(s string) (Date, error) {
	if len(s) != len(expiryLayout) {
		return Date{}, fmt.Errorf("expiry must have %d digits", len(expiryLayout))
	}
	t, err := time.Parse(expiryLayout, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

type InstKind uint8

const (
	KindSpot InstKind = iota + 1
	KindMargin
	KindSwap
	KindFutures
	KindOptions
)

var instKindNames = map[InstKind]string{
	KindSpot:    "Spot",
	KindMargin:  "Margin",
	KindSwap:    "Swap",
	KindFutures: "Futures",
	KindOptions: "Options",
}

func (k InstKind) String() string {
	if name, ok := instKindNames[k]; ok {
		return name
	}
	return "InstKind(" + strconv.Itoa(int(k)) + ")"
}

// InstType is the instrument shape. Expiry is set for futures and options,
// Strike and OptType for options only.
type InstType struct {
	Kind    InstKind
	Expiry  Date
	Strike  int64
	OptType OptType
}

func Spot() InstType   { return InstType{Kind: KindSpot} }
func Margin() InstType { return InstType{Kind: KindMargin} }
func Swap() InstType   { return InstType{Kind: KindSwap} }

func Futures(expiry Date) InstType {
	return InstType{Kind: KindFutures, Expiry: expiry}
}

func Options(expiry Date, strike int64, opt OptType) InstType {
	return InstType{Kind: KindOptions, Expiry: expiry, Strike: strike, OptType: opt}
}

// String renders the canonical type token: Spot, Margin, Swap, Futures-230421, Options-230421-10000-C.
func (t InstType) String() string {
	switch t.Kind {
	case KindFutures:
		return t.Kind.String() + "-" + t.Expiry.YYMMDD()
	case KindOptions:
		return t.Kind.String() + "-" + t.Expiry.YYMMDD() + "-" + strconv.FormatInt(t.Strike, 10) + "-" + string(t.OptType)
	default:
		return t.Kind.String()
	}
}

func ParseInstType(s string) (InstType, error) {
	parts := strings.Split(s, "-")
	switch parts[0] {
	case "Spot", "Margin", "Swap":
		if len(parts) != 1 {
			return InstType{}, decodeErr(FieldType, s, errors.New("unexpected suffix"))
		}
		switch parts[0] {
		case "Spot":
			return Spot(), nil
		case "Margin":
			return Margin(), nil
		}
		return Swap(), nil
	case "Futures":
		if len(parts) != 2 {
			return InstType{}, decodeErr(FieldType, s, errors.New("futures needs an expiry"))
		}
		expiry, err := ParseYYMMDD(parts[1])
		if err != nil {
			return InstType{}, decodeErr(FieldExpiry, parts[1], err)
		}
		return Futures(expiry), nil
	case "Options":
		if len(parts) != 4 {
			return InstType{}, decodeErr(FieldType, s, errors.New("options need expiry, strike and option type"))
		}
		return ParseOptionParts(parts[1], parts[2], parts[3])
	}
	return InstType{}, decodeErr(FieldType, s, errors.New("unknown instrument type"))
}

// ParseOptionParts decodes the expiry, strike and put/call tokens shared by both grammars.
func ParseOptionParts(expiryTok, strikeTok, optTok string) (InstType, error) {
	expiry, err := ParseYYMMDD(expiryTok)
	if err != nil {
		return InstType{}, decodeErr(FieldExpiry, expiryTok, err)
	}
	strike, err := strconv.ParseInt(strikeTok, 10, 64)
	if err != nil {
		return InstType{}, decodeErr(FieldStrike, strikeTok, errors.New("strike must be an integer"))
	}
	if strike <= 0 {
		return InstType{}, decodeErr(FieldStrike, strikeTok, errors.New("strike must be positive"))
	}
	opt, err := ParseOptType(optTok)
	if err != nil {
		return InstType{}, decodeErr(FieldOptType, optTok, err)
	}
	return Options(expiry, strike, opt), nil
}

// Instrument is an immutable, comparable identifier usable as a map key.
type Instrument struct {
	Exch  Exch
	Base  Ccy
	Quote Ccy
	Type  InstType
}

// String returns the canonical dotted form, e.g. Okx.BTC.USD.Futures-230421.
func (i Instrument) String() string {
	return string(i.Exch) + "." + string(i.Base) + "." + string(i.Quote) + "." + i.Type.String()
}

// ParseInstrument decodes the canonical dotted form produced by String.
func ParseInstrument(s string) (Instrument, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return Instrument{}, decodeErr(FieldFormat, s, errors.New("want Exchange.Base.Quote.Type"))
	}
	exch, err := ParseExch(parts[0])
	if err != nil {
		return Instrument{}, decodeErr(FieldExchange, parts[0], err)
	}
	base, err := ParseCcy(parts[1])
	if err != nil {
		return Instrument{}, decodeErr(FieldBase, parts[1], err)
	}
	quote, err := ParseCcy(parts[2])
	if err != nil {
		return Instrument{}, decodeErr(FieldQuote, parts[2], err)
	}
	typ, err := ParseInstType(parts[3])
	if err != nil {
		return Instrument{}, err
	}
	return Instrument{Exch: exch, Base: base, Quote: quote, Type: typ}, nil
}

// MustInstrument is ParseInstrument for literals; it panics on malformed input.
func MustInstrument(s string) Instrument {
	inst, err := ParseInstrument(s)
	if err != nil {
		panic(err)
	}
	return inst
}

func (i Instrument) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *Instrument) UnmarshalText(b []byte) error {
	inst, err := ParseInstrument(string(b))
	if err != nil {
		return err
	}
	*i = inst
	return nil
}
