package okx

import (
	"context"
	"errors"
	"sync"
	"time"

	"okx-connector/internal/alert"
	"okx-connector/internal/bus"
	"okx-connector/internal/core"
	"okx-connector/internal/logger"
	"okx-connector/internal/safety"
)

const Name = "okx"

const (
	LivePublicURL  = "wss://ws.okx.com:8443/ws/v5/public"
	LivePrivateURL = "wss://ws.okx.com:8443/ws/v5/private"
	LiveRestURL    = "https://www.okx.com"
	DemoPublicURL  = "wss://wspap.okx.com:8443/ws/v5/public"
	DemoPrivateURL = "wss://wspap.okx.com:8443/ws/v5/private"
)

type options struct {
	publicURL    string
	privateURL   string
	restURL      string
	creds        Credentials
	subs         []core.Subscription
	pingEvery    time.Duration
	loginTimeout time.Duration
	httpTimeout  time.Duration
	restOrders   bool
	rps          float64
	burst        int
	demo         bool
	restart      bool
	breaker      *safety.Breaker
	alerter      alert.Alerter
}

// Builder collects connector settings. Subscriptions are additive; the last
// call of any other setter wins.
type Builder struct {
	opts options
}

func NewBuilder() *Builder {
	return &Builder{opts: options{
		publicURL:    LivePublicURL,
		privateURL:   LivePrivateURL,
		restURL:      LiveRestURL,
		pingEvery:    defaultPingEvery,
		loginTimeout: defaultLoginWithin,
		httpTimeout:  defaultHTTPTimeout,
		rps:          defaultRate,
		burst:        defaultBurst,
	}}
}

func (b *Builder) Credential(apiKey, secretKey, passphrase string) *Builder {
	b.opts.creds = Credentials{APIKey: apiKey, SecretKey: secretKey, Passphrase: passphrase}
	return b
}

func (b *Builder) Subscribe(inst core.Instrument, kind core.DataKind) *Builder {
	b.opts.subs = append(b.opts.subs, core.Subscription{Inst: inst, Data: kind})
	return b
}

func (b *Builder) URLs(public, private, rest string) *Builder {
	if public != "" {
		b.opts.publicURL = public
	}
	if private != "" {
		b.opts.privateURL = private
	}
	if rest != "" {
		b.opts.restURL = rest
	}
	return b
}

// Demo routes traffic to the simulated trading environment. Stream URLs set
// later through URLs still take precedence.
func (b *Builder) Demo(on bool) *Builder {
	b.opts.demo = on
	if on {
		b.opts.publicURL = DemoPublicURL
		b.opts.privateURL = DemoPrivateURL
	}
	return b
}

func (b *Builder) PingInterval(d time.Duration) *Builder {
	b.opts.pingEvery = d
	return b
}

func (b *Builder) LoginTimeout(d time.Duration) *Builder {
	b.opts.loginTimeout = d
	return b
}

func (b *Builder) HTTPTimeout(d time.Duration) *Builder {
	b.opts.httpTimeout = d
	return b
}

// RESTOrders sends commands through the REST gateway instead of the private stream.
func (b *Builder) RESTOrders(on bool) *Builder {
	b.opts.restOrders = on
	return b
}

func (b *Builder) RateLimit(requestsPerSecond float64, burst int) *Builder {
	b.opts.rps = requestsPerSecond
	b.opts.burst = burst
	return b
}

// Breaker gates REST requests and, with restart on, client restarts.
func (b *Builder) Breaker(breaker *safety.Breaker, restart bool) *Builder {
	b.opts.breaker = breaker
	b.opts.restart = restart
	return b
}

func (b *Builder) Alerter(a alert.Alerter) *Builder {
	b.opts.alerter = a
	return b
}

func (b *Builder) Build() *Connector {
	opts := b.opts
	opts.subs = append([]core.Subscription(nil), b.opts.subs...)
	if opts.alerter == nil {
		opts.alerter = alert.Nop{}
	}
	return &Connector{opts: opts}
}

// Connector bundles the public stream, the private stream and the REST
// gateway behind one start call.
type Connector struct {
	opts options
}

func (c *Connector) Name() string {
	return Name
}

// PublicOnly reports whether no usable credentials were configured.
func (c *Connector) PublicOnly() bool {
	return !c.opts.creds.Valid()
}

// Start runs every client the configuration calls for and blocks until all
// of them have finished. Inbound events go to tx, commands are read from rx.
// Without credentials only market data runs and every command is rejected
// locally.
func (c *Connector) Start(ctx context.Context, tx bus.Sender, rx bus.Receiver) error {
	log := logger.GetLogger().WithComponent("okx_connector")
	sup := newSupervisor(c.opts.restart, c.opts.breaker, c.opts.alerter)

	type job struct {
		name string
		run  task
		// fallback takes over once run has failed for good while other
		// clients keep going.
		fallback func(ctx context.Context) error
	}
	var jobs []job

	if len(c.opts.subs) > 0 {
		public := NewPublicClient(PublicOptions{
			URL:           c.opts.publicURL,
			Subscriptions: c.opts.subs,
			PingInterval:  c.opts.pingEvery,
		})
		jobs = append(jobs, job{name: "public", run: func(ctx context.Context, up func()) error {
			return public.run(ctx, tx, up)
		}})
	}

	if c.PublicOnly() {
		if c.opts.creds != (Credentials{}) {
			log.Warn("incomplete credentials, running public only")
		} else {
			log.Info("no credentials, running public only")
		}
		jobs = append(jobs, job{name: "commands", run: func(ctx context.Context, _ func()) error {
			return rejectCommands(ctx, tx, rx)
		}})
	} else {
		private := NewPrivateClient(PrivateOptions{
			URL:           c.opts.privateURL,
			Credentials:   c.opts.creds,
			Subscriptions: c.opts.subs,
			PingInterval:  c.opts.pingEvery,
			LoginTimeout:  c.opts.loginTimeout,
			HandleOrders:  !c.opts.restOrders,
			Alerter:       c.opts.alerter,
		})
		privateJob := job{name: "private", run: func(ctx context.Context, up func()) error {
			return private.run(ctx, tx, rx, up)
		}}
		if !c.opts.restOrders {
			privateJob.fallback = func(ctx context.Context) error {
				return rejectCommands(ctx, tx, rx)
			}
		}
		jobs = append(jobs, privateJob)
		if c.opts.restOrders {
			gateway := NewRestGateway(RestOptions{
				BaseURL:           c.opts.restURL,
				Credentials:       c.opts.creds,
				Timeout:           c.opts.httpTimeout,
				RequestsPerSecond: c.opts.rps,
				Burst:             c.opts.burst,
				Demo:              c.opts.demo,
				Breaker:           c.opts.breaker,
				Alerter:           c.opts.alerter,
			})
			jobs = append(jobs, job{name: "rest", run: func(ctx context.Context, _ func()) error {
				return gateway.Run(ctx, tx, rx)
			}})
		}
	}

	log.WithFields(logger.Fields{
		"clients":       len(jobs),
		"subscriptions": len(c.opts.subs),
		"demo":          c.opts.demo,
		"rest_orders":   c.opts.restOrders,
	}).Info("connector starting")

	// Fallbacks run until every primary job has finished.
	fallbackCtx, stopFallbacks := context.WithCancel(ctx)
	defer stopFallbacks()
	var (
		wg         sync.WaitGroup
		fallbackWG sync.WaitGroup
		mu         sync.Mutex
		errs       []error
	)
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}
	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			err := sup.run(ctx, j.name, j.run)
			if err == nil {
				return
			}
			record(err)
			if j.fallback == nil || ctx.Err() != nil {
				return
			}
			log.WithError(err).WithField("client", j.name).Warn("client stopped, rejecting further commands locally")
			fallbackWG.Add(1)
			go func() {
				defer fallbackWG.Done()
				if err := j.fallback(fallbackCtx); err != nil && fallbackCtx.Err() == nil {
					record(err)
				}
			}()
		}(j)
	}
	wg.Wait()
	stopFallbacks()
	fallbackWG.Wait()
	return errors.Join(errs...)
}

// rejectCommands answers every command with a local rejection when no
// authenticated route exists.
func rejectCommands(ctx context.Context, tx bus.Sender, rx bus.Receiver) error {
	log := logger.GetLogger().WithComponent("okx_connector")
	for {
		msg, err := rx.Recv(ctx)
		if err != nil {
			if errors.Is(err, bus.ErrClosed) {
				return nil
			}
			return err
		}
		now := time.Now().UTC()
		var reply core.Msg
		switch cmd := msg.(type) {
		case core.NewOrder:
			reply = cmd.Rejected(now)
		case core.CancelOrder:
			reply = cmd.Rejected(now)
		default:
			continue
		}
		log.WithField("kind", string(msg.Kind())).Warn("rejecting command without credentials")
		if err := tx.Send(ctx, reply); err != nil {
			return err
		}
	}
}
