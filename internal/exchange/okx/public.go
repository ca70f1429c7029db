package okx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"okx-connector/internal/bus"
	"okx-connector/internal/core"
	"okx-connector/internal/logger"
)

var errNoSubscriptions = errors.New("okx: no market data subscriptions")

type PublicOptions struct {
	URL           string
	Subscriptions []core.Subscription
	PingInterval  time.Duration
}

// PublicClient streams market data from the unauthenticated endpoint.
type PublicClient struct {
	url       string
	subs      []core.Subscription
	pingEvery time.Duration
	aliases   map[wsArg]marginAlias
	state     stateHolder
}

// marginAlias records how a topic shared by Spot and Margin was subscribed.
// Both families use the same wire id, so frames always decode as Spot.
type marginAlias struct {
	margin core.Instrument
	spot   bool
}

func NewPublicClient(opts PublicOptions) *PublicClient {
	pingEvery := opts.PingInterval
	if pingEvery == 0 {
		pingEvery = defaultPingEvery
	}
	subs := make([]core.Subscription, len(opts.Subscriptions))
	copy(subs, opts.Subscriptions)
	return &PublicClient{
		url:       opts.URL,
		subs:      subs,
		pingEvery: pingEvery,
		aliases:   marginAliases(subs),
	}
}

func marginAliases(subs []core.Subscription) map[wsArg]marginAlias {
	out := make(map[wsArg]marginAlias)
	for _, s := range subs {
		kind := s.Inst.Type.Kind
		if kind != core.KindSpot && kind != core.KindMargin {
			continue
		}
		channel, ok := dataChannels[s.Data]
		if !ok {
			continue
		}
		key := wsArg{Channel: channel, InstID: FormatInstID(s.Inst)}
		a := out[key]
		if kind == core.KindMargin {
			a.margin = s.Inst
		} else {
			a.spot = true
		}
		out[key] = a
	}
	for k, a := range out {
		if a.margin.Type.Kind != core.KindMargin {
			delete(out, k)
		}
	}
	return out
}

// retag reports Spot-decoded events under the Margin instrument they were
// subscribed as. A topic subscribed under both yields one event for each.
func (c *PublicClient) retag(channel string, msgs []core.Msg) []core.Msg {
	if len(c.aliases) == 0 {
		return msgs
	}
	out := msgs[:0:0]
	for _, m := range msgs {
		inst, ok := instOf(m)
		if !ok || inst.Type.Kind != core.KindSpot {
			out = append(out, m)
			continue
		}
		a, ok := c.aliases[wsArg{Channel: channel, InstID: FormatInstID(inst)}]
		if !ok {
			out = append(out, m)
			continue
		}
		if a.spot {
			out = append(out, m)
		}
		out = append(out, withInst(m, a.margin))
	}
	return out
}

func instOf(m core.Msg) (core.Instrument, bool) {
	switch v := m.(type) {
	case core.Depth:
		return v.Inst, true
	case core.Trade:
		return v.Inst, true
	case core.Ticker:
		return v.Inst, true
	case core.FundingRate:
		return v.Inst, true
	case core.OpenInterest:
		return v.Inst, true
	}
	return core.Instrument{}, false
}

func withInst(m core.Msg, inst core.Instrument) core.Msg {
	switch v := m.(type) {
	case core.Depth:
		v.Inst = inst
		return v
	case core.Trade:
		v.Inst = inst
		return v
	case core.Ticker:
		v.Inst = inst
		return v
	case core.FundingRate:
		v.Inst = inst
		return v
	case core.OpenInterest:
		v.Inst = inst
		return v
	}
	return m
}

func (c *PublicClient) State() ClientState {
	return c.state.get()
}

// Run connects, subscribes and pushes market events to tx until the
// connection fails, tx is closed or ctx is done. It never reconnects.
func (c *PublicClient) Run(ctx context.Context, tx bus.Sender) error {
	return c.run(ctx, tx, nil)
}

func (c *PublicClient) run(ctx context.Context, tx bus.Sender, up func()) error {
	args, err := publicArgs(c.subs)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return errNoSubscriptions
	}
	log := logger.GetLogger().WithComponent("okx_public").WithField("session", uuid.NewString())
	c.state.set(StateDisconnected)
	defer c.state.set(StateDisconnected)

	conn, err := dialWS(ctx, c.url)
	if err != nil {
		return fmt.Errorf("okx public dial: %w", err)
	}
	defer conn.close()
	c.state.set(StateConnected)
	log.WithField("url", c.url).Info("public stream connected")

	if err := conn.writeJSON(subscribeRequest(args)); err != nil {
		return fmt.Errorf("okx public subscribe: %w", err)
	}
	c.state.set(StateSubscribed)
	log.WithField("topics", len(args)).Info("public subscribe sent")

	frames, errs := conn.startReader(readTimeoutFor(c.pingEvery))
	var pingC <-chan time.Time
	if c.pingEvery > 0 {
		ticker := time.NewTicker(c.pingEvery)
		defer ticker.Stop()
		pingC = ticker.C
	}
	c.state.set(StateStreaming)
	if up != nil {
		up()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pingC:
			if err := conn.ping(); err != nil {
				return fmt.Errorf("okx public ping: %w", err)
			}
		case in, ok := <-frames:
			if !ok {
				return fmt.Errorf("okx public read: %w", readErr(errs))
			}
			if err := c.handleFrame(ctx, log, tx, in); err != nil {
				return err
			}
		}
	}
}

func (c *PublicClient) handleFrame(ctx context.Context, log *logger.Entry, tx bus.Sender, in inbound) error {
	kind, f, err := decodeFrame(in.data)
	if err != nil {
		log.WithError(err).WithField("frame", string(in.data)).Warn("dropping undecodable frame")
		return nil
	}
	switch kind {
	case framePong:
	case frameSubscribe:
		log.WithFields(logger.Fields{"channel": argChannel(f.Arg), "inst": argInstID(f.Arg)}).Info("subscription acknowledged")
	case frameError:
		log.WithFields(logger.Fields{"code": f.Code, "msg": f.Msg}).Warn("public stream error event")
	case frameNotice:
		log.WithFields(logger.Fields{"event": f.Event, "code": f.Code, "msg": f.Msg}).Info("public stream notice")
	case frameData:
		msgs, err := parsePush(f, in.recv)
		if err != nil {
			log.WithError(err).WithField("channel", argChannel(f.Arg)).Warn("dropping malformed data frame")
			return nil
		}
		for _, m := range c.retag(f.Arg.Channel, msgs) {
			if err := tx.Send(ctx, m); err != nil {
				return err
			}
		}
	default:
		log.WithField("frame", string(in.data)).Debug("ignoring unrecognized frame")
	}
	return nil
}

func argChannel(a *wsArg) string {
	if a == nil {
		return ""
	}
	return a.Channel
}

func argInstID(a *wsArg) string {
	if a == nil {
		return ""
	}
	if a.InstID != "" {
		return a.InstID
	}
	return a.InstType
}
