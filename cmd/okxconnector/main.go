package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"okx-connector/internal/alert"
	"okx-connector/internal/config"
	"okx-connector/internal/engine"
	"okx-connector/internal/exchange/okx"
	"okx-connector/internal/logger"
	"okx-connector/internal/safety"
	"okx-connector/internal/store"
	"okx-connector/internal/strategy"
)

func main() {
	var configPath, envPath string
	flag.StringVar(&configPath, "config", "config/config.yaml", "config yaml path")
	flag.StringVar(&envPath, "env", ".env", "dotenv file with OKX credentials")
	flag.Parse()

	if err := config.LoadEnv(envPath); err != nil {
		fatal(err.Error())
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err.Error())
	}
	if err := logger.GetLogger().Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAgeDays); err != nil {
		fatal(err.Error())
	}
	log := logger.GetLogger().WithComponent("main").WithField("instance", cfg.InstanceID)
	if cfg.PartialCredentials() {
		log.Warn("incomplete api credentials, running public-only")
	}

	session := uuid.NewString()
	var alerter alert.Alerter = alert.Nop{}
	if alerts := buildAlertManager(cfg); alerts != nil {
		alerts.SetSession(session)
		alerter = alerts
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := alerts.Close(closeCtx); err != nil {
				fmt.Fprintf(os.Stderr, "close alert manager failed: %v\n", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var status store.StatusWriter
	if cfg.State.Dir != "" {
		stateDir := filepath.Join(cfg.State.Dir, string(cfg.Mode), cfg.InstanceID)
		st, err := store.New(stateDir)
		if err != nil {
			fatal(err.Error())
		}
		lock, err := store.AcquireInstanceLock(stateDir, cfg.InstanceID, store.LockOptions{
			TakeoverEnabled: cfg.State.LockTakeover,
			StaleAfter:      time.Duration(cfg.State.LockStaleSec) * time.Second,
		})
		if err != nil {
			fatal(err.Error())
		}
		defer func() {
			if relErr := lock.Release(); relErr != nil {
				fmt.Fprintf(os.Stderr, "release instance lock failed: %v\n", relErr)
			}
		}()
		status = st
	}

	breaker := buildBreaker(cfg, alerter)
	conn, err := buildConnector(cfg, breaker, alerter)
	if err != nil {
		fatal(err.Error())
	}
	log.WithFields(logger.Fields{
		"mode":        cfg.Mode,
		"session":     session,
		"public_only": conn.PublicOnly(),
		"order_route": cfg.Exchange.OrderRoute,
	}).Info("starting connector")

	runner := engine.Runner{
		Connector:  conn,
		Strategy:   strategy.NewRecorder(),
		Mode:       string(cfg.Mode),
		InstanceID: cfg.InstanceID,
		Capacity:   cfg.Bus.Capacity,
		Heartbeat:  time.Duration(cfg.Observability.HeartbeatSec) * time.Second,
		Store:      status,
		Alerts:     alerter,
	}
	if err := runner.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fatal(err.Error())
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func buildAlertManager(cfg config.Config) *alert.Manager {
	tg := cfg.Observability.Telegram
	if !tg.Enabled {
		return nil
	}
	notifier := alert.NewTelegramNotifier(
		tg.Enabled,
		tg.BotToken,
		tg.ChatID,
		tg.APIBaseURL,
		time.Duration(tg.TimeoutSec)*time.Second,
	)
	return alert.NewManagerWithOptions(string(cfg.Mode), cfg.InstanceID, notifier, alert.ManagerOptions{
		QueueSize:          cfg.Observability.AlertQueueSize,
		DropReportInterval: time.Duration(cfg.Observability.AlertDropReportSec) * time.Second,
	})
}

func buildBreaker(cfg config.Config, alerter alert.Alerter) *safety.Breaker {
	sv := cfg.Supervisor
	breaker := safety.NewBreaker(true, sv.MaxPlaceFailures, sv.MaxCancelFailures, sv.MaxConsecutiveFailures)
	breaker.SetRecovery(time.Duration(sv.CooldownSec)*time.Second, sv.ProbeSuccesses)
	breaker.SetAlerter(alerter)
	return breaker
}

func buildConnector(cfg config.Config, breaker *safety.Breaker, alerter alert.Alerter) (*okx.Connector, error) {
	subs, err := cfg.ParsedSubscriptions()
	if err != nil {
		return nil, err
	}
	ex := cfg.Exchange
	b := okx.NewBuilder().
		Demo(cfg.Mode == config.ModeDemo).
		URLs(ex.PublicWSURL, ex.PrivateWSURL, ex.RestBaseURL).
		PingInterval(time.Duration(ex.PingIntervalSec) * time.Second).
		LoginTimeout(time.Duration(ex.LoginTimeoutSec) * time.Second).
		HTTPTimeout(time.Duration(ex.HTTPTimeoutSec) * time.Second).
		RESTOrders(ex.OrderRoute == config.RouteREST).
		RateLimit(ex.RateLimit.RequestsPerSecond, ex.RateLimit.Burst).
		Breaker(breaker, cfg.Supervisor.Restart).
		Alerter(alerter)
	if cfg.HasCredentials() {
		b.Credential(ex.APIKey, ex.SecretKey, ex.Passphrase)
	}
	for _, s := range subs {
		b.Subscribe(s.Inst, s.Data)
	}
	return b.Build(), nil
}
