package okx

import (
	"fmt"
	"sort"

	"okx-connector/internal/core"
)

var dataChannels = map[core.DataKind]string{
	core.DataDepth:        channelBooks5,
	core.DataTrade:        channelTrades,
	core.DataTicker:       channelTickers,
	core.DataFundingRate:  channelFundingRate,
	core.DataOpenInterest: channelOpenInterest,
}

// publicArgs builds one topic per (instrument, data kind) pair. The result is
// deduplicated and sorted so equal inputs in any order give the same request.
func publicArgs(subs []core.Subscription) ([]wsArg, error) {
	seen := make(map[wsArg]struct{}, len(subs))
	args := make([]wsArg, 0, len(subs))
	for _, s := range subs {
		channel, ok := dataChannels[s.Data]
		if !ok {
			return nil, fmt.Errorf("unsupported data kind %q", s.Data)
		}
		arg := wsArg{Channel: channel, InstID: FormatInstID(s.Inst)}
		if _, dup := seen[arg]; dup {
			continue
		}
		seen[arg] = struct{}{}
		args = append(args, arg)
	}
	sortArgs(args)
	return args, nil
}

// privateArgs derives the account topics: orders for every instrument family
// in use, positions for every family except spot, and balance_and_position.
// With no subscriptions it falls back to instType ANY.
func privateArgs(subs []core.Subscription) []wsArg {
	families := make(map[string]struct{})
	for _, s := range subs {
		families[instTypeOf(s.Inst.Type.Kind)] = struct{}{}
	}
	if len(families) == 0 {
		families[instTypeAny] = struct{}{}
	}
	args := make([]wsArg, 0, 2*len(families)+1)
	for family := range families {
		args = append(args, wsArg{Channel: channelOrders, InstType: family})
		if family != instTypeSpot {
			args = append(args, wsArg{Channel: channelPositions, InstType: family})
		}
	}
	args = append(args, wsArg{Channel: channelBalanceAndPosition})
	sortArgs(args)
	return args
}

func sortArgs(args []wsArg) {
	sort.Slice(args, func(i, j int) bool {
		if args[i].Channel != args[j].Channel {
			return args[i].Channel < args[j].Channel
		}
		if args[i].InstType != args[j].InstType {
			return args[i].InstType < args[j].InstType
		}
		return args[i].InstID < args[j].InstID
	})
}

func subscribeRequest(args []wsArg) wsRequest {
	req := wsRequest{Op: opSubscribe, Args: make([]interface{}, len(args))}
	for i, a := range args {
		req.Args[i] = a
	}
	return req
}
