package okx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"okx-connector/internal/alert"
	"okx-connector/internal/bus"
	"okx-connector/internal/core"
	"okx-connector/internal/logger"
	"okx-connector/internal/safety"
)

const (
	pathPlaceOrder  = "/api/v5/trade/order"
	pathCancelOrder = "/api/v5/trade/cancel-order"

	defaultHTTPTimeout = 10 * time.Second
	defaultRate        = 30
	defaultBurst       = 5
)

var errEmptyResult = errors.New("empty result data")

type RestOptions struct {
	BaseURL           string
	Credentials       Credentials
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	// Demo adds the simulated trading header to every request.
	Demo    bool
	Breaker *safety.Breaker
	Alerter alert.Alerter
}

// RestGateway places and cancels orders over the signed REST API.
type RestGateway struct {
	client  *resty.Client
	creds   Credentials
	limiter *rate.Limiter
	breaker *safety.Breaker
	demo    bool
	alerter alert.Alerter
	now     func() time.Time
}

func NewRestGateway(opts RestOptions) *RestGateway {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRate
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	alerter := opts.Alerter
	if alerter == nil {
		alerter = alert.Nop{}
	}
	return &RestGateway{
		client: resty.New().
			SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
			SetTimeout(timeout),
		creds:   opts.Credentials,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker: opts.Breaker,
		demo:    opts.Demo,
		alerter: alerter,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SubmitOrder places one order. Any failure is a *GatewayError.
func (g *RestGateway) SubmitOrder(ctx context.Context, o core.NewOrder) error {
	if err := g.breaker.AllowPlace(); err != nil {
		return &GatewayError{Op: opOrder, Err: err}
	}
	arg, err := orderArgOf(o)
	if err != nil {
		return &GatewayError{Op: opOrder, Err: err}
	}
	err = g.post(ctx, opOrder, pathPlaceOrder, arg)
	_ = g.breaker.RecordPlace(transportFailure(err))
	return err
}

// CancelOrder cancels one order by its client order id.
func (g *RestGateway) CancelOrder(ctx context.Context, c core.CancelOrder) error {
	if err := g.breaker.AllowCancel(); err != nil {
		return &GatewayError{Op: opCancelOrder, Err: err}
	}
	arg, err := cancelArgOf(c)
	if err != nil {
		return &GatewayError{Op: opCancelOrder, Err: err}
	}
	err = g.post(ctx, opCancelOrder, pathCancelOrder, arg)
	_ = g.breaker.RecordCancel(transportFailure(err))
	return err
}

// Run consumes commands from rx until it is closed or ctx is done. A failed
// request is reported back on tx as a rejection.
func (g *RestGateway) Run(ctx context.Context, tx bus.Sender, rx bus.Receiver) error {
	log := logger.GetLogger().WithComponent("okx_rest")
	for {
		msg, err := rx.Recv(ctx)
		if err != nil {
			if errors.Is(err, bus.ErrClosed) {
				log.Info("outbound bus closed, rest gateway stopping")
				return nil
			}
			return err
		}
		switch cmd := msg.(type) {
		case core.NewOrder:
			if err := g.SubmitOrder(ctx, cmd); err != nil {
				g.rejected(log, opOrder, cmd.CorrelationID, err)
				if err := sendRejection(ctx, tx, cmd.Rejected(g.now())); err != nil {
					return err
				}
			}
		case core.CancelOrder:
			if err := g.CancelOrder(ctx, cmd); err != nil {
				g.rejected(log, opCancelOrder, cmd.CorrelationID, err)
				if err := sendRejection(ctx, tx, cmd.Rejected(g.now())); err != nil {
					return err
				}
			}
		default:
			log.WithField("kind", string(msg.Kind())).Warn("ignoring non-command message on outbound bus")
		}
	}
}

// sendRejection still delivers the rejection for a request cut short by
// shutdown, bounded by flushTimeout.
func sendRejection(ctx context.Context, tx bus.Sender, msg core.Msg) error {
	if ctx.Err() != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if err := tx.Send(flushCtx, msg); err != nil {
			return err
		}
		return ctx.Err()
	}
	return tx.Send(ctx, msg)
}

func (g *RestGateway) rejected(log *logger.Entry, op string, correlationID int64, err error) {
	log.WithError(err).WithFields(logger.Fields{"op": op, "correlation_id": correlationID}).Warn("command rejected")
	g.alerter.Important("order_rejected", map[string]string{
		"op":             op,
		"correlation_id": strconv.FormatInt(correlationID, 10),
		"error":          err.Error(),
	})
}

func (g *RestGateway) post(ctx context.Context, op, path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &GatewayError{Op: op, Err: err}
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return &GatewayError{Op: op, Err: err}
	}
	headers, err := g.signedHeaders(http.MethodPost, path, string(payload))
	if err != nil {
		return &GatewayError{Op: op, Err: err}
	}
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(payload).
		Post(path)
	if err != nil {
		return &GatewayError{Op: op, Err: err}
	}

	var out restResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil || out.Code == "" {
		if resp.IsError() {
			return &GatewayError{Op: op, Err: fmt.Errorf("http status %d: %s", resp.StatusCode(), strings.TrimSpace(string(resp.Body())))}
		}
		if err == nil {
			err = errors.New("missing result code")
		}
		return &GatewayError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if err := resultError(op, out.Code, out.Msg, out.Data); err != nil {
		return &GatewayError{Op: op, Err: err}
	}
	if len(out.Data) == 0 {
		return &GatewayError{Op: op, Err: errEmptyResult}
	}
	return nil
}

func (g *RestGateway) signedHeaders(method, path, body string) (map[string]string, error) {
	ts := restTimestamp(g.now())
	sig, err := Sign(ts, method, path, body, g.creds.SecretKey)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{
		"OK-ACCESS-KEY":        g.creds.APIKey,
		"OK-ACCESS-SIGN":       sig,
		"OK-ACCESS-TIMESTAMP":  ts,
		"OK-ACCESS-PASSPHRASE": g.creds.Passphrase,
		"Content-Type":         "application/json",
	}
	if g.demo {
		headers["x-simulated-trading"] = "1"
	}
	return headers, nil
}

// transportFailure keeps business rejections out of the breaker: only a
// request that never got a coded answer counts against the circuit.
func transportFailure(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsAPIError(err); ok {
		return nil
	}
	if errors.Is(err, safety.ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
