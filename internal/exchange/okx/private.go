package okx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"okx-connector/internal/alert"
	"okx-connector/internal/bus"
	"okx-connector/internal/core"
	"okx-connector/internal/logger"
)

const flushTimeout = 5 * time.Second

var errBadCorrelationID = errors.New("correlation id must be positive")

// Credentials authenticate the private stream and REST requests.
type Credentials struct {
	APIKey     string
	SecretKey  string
	Passphrase string
}

func (c Credentials) Valid() bool {
	return c.APIKey != "" && c.SecretKey != "" && c.Passphrase != ""
}

type PrivateOptions struct {
	URL           string
	Credentials   Credentials
	Subscriptions []core.Subscription
	PingInterval  time.Duration
	LoginTimeout  time.Duration
	// HandleOrders makes the client consume the outbound bus and place
	// orders over the socket. When false another route owns the commands.
	HandleOrders bool
	Alerter      alert.Alerter
}

// PrivateClient owns the authenticated stream: account channels inbound,
// order placement and cancellation outbound.
type PrivateClient struct {
	url          string
	creds        Credentials
	subs         []core.Subscription
	pingEvery    time.Duration
	loginTimeout time.Duration
	handleOrders bool
	alerter      alert.Alerter
	now          func() time.Time
	state        stateHolder
}

func NewPrivateClient(opts PrivateOptions) *PrivateClient {
	pingEvery := opts.PingInterval
	if pingEvery == 0 {
		pingEvery = defaultPingEvery
	}
	loginTimeout := opts.LoginTimeout
	if loginTimeout <= 0 {
		loginTimeout = defaultLoginWithin
	}
	alerter := opts.Alerter
	if alerter == nil {
		alerter = alert.Nop{}
	}
	subs := make([]core.Subscription, len(opts.Subscriptions))
	copy(subs, opts.Subscriptions)
	return &PrivateClient{
		url:          opts.URL,
		creds:        opts.Credentials,
		subs:         subs,
		pingEvery:    pingEvery,
		loginTimeout: loginTimeout,
		handleOrders: opts.HandleOrders,
		alerter:      alerter,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (c *PrivateClient) State() ClientState {
	return c.state.get()
}

// Run logs in, subscribes to account channels and, when it handles orders,
// relays commands from rx until the session ends. Commands still awaiting an
// acknowledgement when it ends are reported back as rejected.
func (c *PrivateClient) Run(ctx context.Context, tx bus.Sender, rx bus.Receiver) error {
	return c.run(ctx, tx, rx, nil)
}

func (c *PrivateClient) run(ctx context.Context, tx bus.Sender, rx bus.Receiver, up func()) error {
	if !c.creds.Valid() {
		return core.ErrNoCredentials
	}
	sessionID := uuid.NewString()
	log := logger.GetLogger().WithComponent("okx_private").WithField("session", sessionID)
	c.state.set(StateDisconnected)
	defer c.state.set(StateDisconnected)

	login, err := c.loginRequest()
	if err != nil {
		return err
	}
	conn, err := dialWS(ctx, c.url)
	if err != nil {
		return fmt.Errorf("okx private dial: %w", err)
	}
	defer conn.close()
	log.WithField("url", c.url).Info("private stream connected")

	s := newPrivateSession(conn.writeJSON, tx, c.alerter, log, c.now)
	defer s.failPending("session ended")

	if err := s.write(login); err != nil {
		return fmt.Errorf("okx private login: %w", err)
	}
	c.state.set(StateAwaitingLogin)

	frames, errs := conn.startReader(readTimeoutFor(c.pingEvery))
	loginTimer := time.NewTimer(c.loginTimeout)
	defer loginTimer.Stop()
	loginDeadline := loginTimer.C
	var pingC <-chan time.Time
	if c.pingEvery > 0 {
		ticker := time.NewTicker(c.pingEvery)
		defer ticker.Stop()
		pingC = ticker.C
	}

	// cmds stays nil until the session is active so no command is sent
	// before login succeeds.
	var cmds <-chan core.Msg
	var cmdsDone <-chan struct{}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-loginDeadline:
			c.alertLoginFailed(sessionID, "timeout")
			return fmt.Errorf("%w: no login response within %s", core.ErrAuthFailed, c.loginTimeout)
		case <-pingC:
			if err := conn.ping(); err != nil {
				return fmt.Errorf("okx private ping: %w", err)
			}
		case in, ok := <-frames:
			if !ok {
				return fmt.Errorf("okx private read: %w", readErr(errs))
			}
			kind, f, err := decodeFrame(in.data)
			if err != nil {
				log.WithError(err).WithField("frame", string(in.data)).Warn("dropping undecodable frame")
				continue
			}
			switch kind {
			case framePong:
			case frameLogin, frameError:
				if c.state.get() != StateAwaitingLogin {
					log.WithFields(logger.Fields{"event": f.Event, "code": f.Code, "msg": f.Msg}).Warn("private stream error event")
					continue
				}
				if kind == frameError || f.Code != codeOK {
					c.alertLoginFailed(sessionID, f.Code+" "+f.Msg)
					return fmt.Errorf("%w: code=%s msg=%s", core.ErrAuthFailed, f.Code, f.Msg)
				}
				loginTimer.Stop()
				loginDeadline = nil
				log.Info("login accepted")
				if err := s.write(subscribeRequest(privateArgs(c.subs))); err != nil {
					return fmt.Errorf("okx private subscribe: %w", err)
				}
				c.state.set(StateSubscribed)
				c.state.set(StateActive)
				if c.handleOrders {
					cmds = rx.C()
					cmdsDone = rx.Done()
				}
				if up != nil {
					up()
				}
			case frameSubscribe:
				log.WithFields(logger.Fields{"channel": argChannel(f.Arg), "inst": argInstID(f.Arg)}).Info("subscription acknowledged")
			case frameNotice:
				log.WithFields(logger.Fields{"event": f.Event, "code": f.Code, "msg": f.Msg}).Info("private stream notice")
			case frameAck:
				if err := s.handleAck(ctx, f); err != nil {
					return err
				}
			case frameData:
				msgs, err := parsePush(f, in.recv)
				if err != nil {
					log.WithError(err).WithField("channel", argChannel(f.Arg)).Warn("dropping malformed data frame")
					continue
				}
				for _, m := range msgs {
					if err := tx.Send(ctx, m); err != nil {
						return err
					}
				}
			default:
				log.WithField("frame", string(in.data)).Debug("ignoring unrecognized frame")
			}
		case msg := <-cmds:
			if err := s.handleCommand(ctx, msg); err != nil {
				return err
			}
		case <-cmdsDone:
			for {
				select {
				case msg := <-cmds:
					if err := s.handleCommand(ctx, msg); err != nil {
						return err
					}
				default:
					log.Info("outbound bus closed, ending private session")
					return nil
				}
			}
		}
	}
}

func (c *PrivateClient) loginRequest() (wsRequest, error) {
	ts := loginTimestamp(c.now())
	sig, err := Sign(ts, http.MethodGet, loginVerifyPath, "", c.creds.SecretKey)
	if err != nil {
		return wsRequest{}, err
	}
	return wsRequest{
		Op: opLogin,
		Args: []interface{}{loginArg{
			APIKey:     c.creds.APIKey,
			Passphrase: c.creds.Passphrase,
			Timestamp:  ts,
			Sign:       sig,
		}},
	}, nil
}

func (c *PrivateClient) alertLoginFailed(session, reason string) {
	c.alerter.Important("login_failed", map[string]string{
		"session": session,
		"reason":  reason,
	})
}

// privateSession is the state owned by one run of the control loop. It is
// never touched from any other goroutine.
type privateSession struct {
	write   func(v interface{}) error
	tx      bus.Sender
	alerter alert.Alerter
	log     *logger.Entry
	now     func() time.Time
	pending map[int64]core.Command
	lastID  int64
}

func newPrivateSession(write func(v interface{}) error, tx bus.Sender, alerter alert.Alerter, log *logger.Entry, now func() time.Time) *privateSession {
	return &privateSession{
		write:   write,
		tx:      tx,
		alerter: alerter,
		log:     log,
		now:     now,
		pending: make(map[int64]core.Command),
	}
}

// nextID mints a request id that is unique for the life of the session.
func (s *privateSession) nextID() int64 {
	id := s.now().UnixNano()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

// handleCommand sends one command. A command that cannot be encoded is
// rejected locally; a failed write ends the session.
func (s *privateSession) handleCommand(ctx context.Context, msg core.Msg) error {
	var (
		cmd core.Command
		req wsRequest
		err error
	)
	switch m := msg.(type) {
	case core.NewOrder:
		cmd = m
		var arg orderArg
		arg, err = orderArgOf(m)
		req = wsRequest{Op: opOrder, Args: []interface{}{arg}}
	case core.CancelOrder:
		cmd = m
		var arg cancelArg
		arg, err = cancelArgOf(m)
		req = wsRequest{Op: opCancelOrder, Args: []interface{}{arg}}
	default:
		s.log.WithField("kind", string(msg.Kind())).Warn("ignoring non-command message on outbound bus")
		return nil
	}
	if err != nil {
		s.log.WithError(err).WithField("correlation_id", correlationOf(cmd)).Warn("rejecting unencodable command")
		return s.reject(ctx, cmd)
	}

	id := s.nextID()
	req.ID = strconv.FormatInt(id, 10)
	s.pending[id] = cmd
	if err := s.write(req); err != nil {
		return fmt.Errorf("okx private %s: %w", req.Op, err)
	}
	s.log.WithFields(logger.Fields{"id": req.ID, "op": req.Op, "correlation_id": correlationOf(cmd)}).Debug("command sent")
	return nil
}

// handleAck resolves the pending command an acknowledgement refers to.
// Success produces nothing here; the account channel reports the outcome.
func (s *privateSession) handleAck(ctx context.Context, f wsFrame) error {
	id, err := strconv.ParseInt(f.ID, 10, 64)
	cmd, ok := s.pending[id]
	if err != nil || !ok {
		s.log.WithFields(logger.Fields{"id": f.ID, "op": f.Op, "code": f.Code}).Warn("unmatched acknowledgement")
		return nil
	}
	delete(s.pending, id)

	var rows []resultRow
	if len(f.Data) > 0 {
		if err := json.Unmarshal(f.Data, &rows); err != nil {
			s.log.WithError(err).WithField("id", f.ID).Warn("undecodable acknowledgement data")
		}
	}
	ackErr := resultError(f.Op, f.Code, f.Msg, rows)
	if ackErr == nil {
		s.log.WithFields(logger.Fields{"id": f.ID, "op": f.Op}).Debug("command accepted")
		return nil
	}
	s.log.WithError(ackErr).WithFields(logger.Fields{"id": f.ID, "op": f.Op, "correlation_id": correlationOf(cmd)}).Warn("command rejected")
	s.alerter.Important("order_rejected", map[string]string{
		"op":             f.Op,
		"correlation_id": strconv.FormatInt(correlationOf(cmd), 10),
		"error":          ackErr.Error(),
	})
	return s.reject(ctx, cmd)
}

func (s *privateSession) reject(ctx context.Context, cmd core.Command) error {
	at := s.now()
	switch c := cmd.(type) {
	case core.NewOrder:
		return s.tx.Send(ctx, c.Rejected(at))
	case core.CancelOrder:
		return s.tx.Send(ctx, c.Rejected(at))
	}
	return nil
}

// failPending rejects every command still awaiting an acknowledgement.
func (s *privateSession) failPending(reason string) {
	if len(s.pending) == 0 {
		return
	}
	ids := make([]int64, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	s.log.WithFields(logger.Fields{"pending": len(ids), "reason": reason}).Warn("failing unacknowledged commands")
	for _, id := range ids {
		cmd := s.pending[id]
		delete(s.pending, id)
		if err := s.reject(ctx, cmd); err != nil {
			s.log.WithError(err).WithField("correlation_id", correlationOf(cmd)).Error("could not deliver local rejection")
		}
	}
}

func orderArgOf(o core.NewOrder) (orderArg, error) {
	if o.CorrelationID <= 0 {
		return orderArg{}, errBadCorrelationID
	}
	side, err := wireSide(o.Side)
	if err != nil {
		return orderArg{}, err
	}
	ordType, err := wireOrdType(o.OrdType)
	if err != nil {
		return orderArg{}, err
	}
	tdMode, err := wireTdMode(o.TdMode)
	if err != nil {
		return orderArg{}, err
	}
	if !o.Size.IsPositive() {
		return orderArg{}, fmt.Errorf("order size must be positive, got %s", o.Size)
	}
	arg := orderArg{
		InstID:  FormatInstID(o.Inst),
		TdMode:  tdMode,
		ClOrdID: strconv.FormatInt(o.CorrelationID, 10),
		Side:    side,
		OrdType: ordType,
		Sz:      o.Size.String(),
	}
	if o.OrdType != core.Market {
		if !o.Price.IsPositive() {
			return orderArg{}, fmt.Errorf("%s order needs a positive price, got %s", ordType, o.Price)
		}
		arg.Px = o.Price.String()
	}
	return arg, nil
}

func cancelArgOf(c core.CancelOrder) (cancelArg, error) {
	if c.CorrelationID <= 0 {
		return cancelArg{}, errBadCorrelationID
	}
	return cancelArg{
		ClOrdID: strconv.FormatInt(c.CorrelationID, 10),
		InstID:  FormatInstID(c.Inst),
	}, nil
}

func correlationOf(cmd core.Command) int64 {
	switch c := cmd.(type) {
	case core.NewOrder:
		return c.CorrelationID
	case core.CancelOrder:
		return c.CorrelationID
	}
	return 0
}
