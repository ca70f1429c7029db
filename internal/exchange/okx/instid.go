package okx

import (
	"errors"
	"strconv"
	"strings"

	"okx-connector/internal/core"
)

const swapSuffix = "SWAP"

// Instrument families as named by instType on the wire.
const (
	instTypeSpot    = "SPOT"
	instTypeMargin  = "MARGIN"
	instTypeSwap    = "SWAP"
	instTypeFutures = "FUTURES"
	instTypeOption  = "OPTION"
	instTypeAny     = "ANY"
)

// FormatInstID renders the hyphenated wire id: BTC-USDT, BTC-USD-SWAP,
// BTC-USD-230421, BTC-USD-230421-10000-C. Spot and margin share a form.
func FormatInstID(inst core.Instrument) string {
	id := string(inst.Base) + "-" + string(inst.Quote)
	switch inst.Type.Kind {
	case core.KindSwap:
		return id + "-" + swapSuffix
	case core.KindFutures:
		return id + "-" + inst.Type.Expiry.YYMMDD()
	case core.KindOptions:
		return id + "-" + inst.Type.Expiry.YYMMDD() + "-" + strconv.FormatInt(inst.Type.Strike, 10) + "-" + string(inst.Type.OptType)
	}
	return id
}

// ParseInstID decodes a wire id. Two-token ids decode as spot.
func ParseInstID(s string) (core.Instrument, error) {
	return ParseInstIDWithType(s, "")
}

// ParseInstIDWithType decodes a wire id using the frame's instType to tell
// margin apart from spot.
func ParseInstIDWithType(s, instType string) (core.Instrument, error) {
	parts := strings.Split(s, "-")
	if len(parts) < 2 {
		return core.Instrument{}, &core.DecodeError{Field: core.FieldFormat, Value: s, Err: errors.New("want BASE-QUOTE[-...]")}
	}
	base, err := core.ParseCcy(parts[0])
	if err != nil {
		return core.Instrument{}, &core.DecodeError{Field: core.FieldBase, Value: parts[0], Err: err}
	}
	quote, err := core.ParseCcy(parts[1])
	if err != nil {
		return core.Instrument{}, &core.DecodeError{Field: core.FieldQuote, Value: parts[1], Err: err}
	}
	inst := core.Instrument{Exch: core.Okx, Base: base, Quote: quote}

	switch len(parts) {
	case 2:
		inst.Type = core.Spot()
		if strings.EqualFold(instType, instTypeMargin) {
			inst.Type = core.Margin()
		}
	case 3:
		if parts[2] == swapSuffix {
			inst.Type = core.Swap()
			break
		}
		expiry, err := core.ParseYYMMDD(parts[2])
		if err != nil {
			return core.Instrument{}, &core.DecodeError{Field: core.FieldExpiry, Value: parts[2], Err: err}
		}
		inst.Type = core.Futures(expiry)
	case 5:
		typ, err := core.ParseOptionParts(parts[2], parts[3], parts[4])
		if err != nil {
			return core.Instrument{}, err
		}
		inst.Type = typ
	default:
		return core.Instrument{}, &core.DecodeError{Field: core.FieldType, Value: s, Err: errors.New("unexpected token count")}
	}
	return inst, nil
}

func instTypeOf(kind core.InstKind) string {
	switch kind {
	case core.KindSpot:
		return instTypeSpot
	case core.KindMargin:
		return instTypeMargin
	case core.KindSwap:
		return instTypeSwap
	case core.KindFutures:
		return instTypeFutures
	case core.KindOptions:
		return instTypeOption
	}
	return instTypeAny
}
