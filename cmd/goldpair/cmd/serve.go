package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/goldpair/api"
	"github.com/rustyeddy/goldpair/broker"
	"github.com/rustyeddy/goldpair/broker/oanda"
	"github.com/rustyeddy/goldpair/broker/sim"
	"github.com/rustyeddy/goldpair/config"
	"github.com/rustyeddy/goldpair/engine"
	"github.com/rustyeddy/goldpair/events"
	"github.com/rustyeddy/goldpair/journal"
	"github.com/rustyeddy/goldpair/logging"
	"github.com/rustyeddy/goldpair/metrics"
	"github.com/rustyeddy/goldpair/notify"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the trading engine and the webhook server",
	Long: `Start the engine against the configured broker and listen for webhook
signals.

Broker kinds:
  oanda  - live or practice OANDA v20 account
  paper  - local fills against OANDA quotes
  sim    - fully offline, prices set from the sim section

Examples:
  goldpair serve -c goldpair.yaml
  BROKER_KIND=sim goldpair serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	log, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, feed, err := newBroker(cfg, log)
	if err != nil {
		return err
	}
	acct, err := b.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("%s: account: %w", b.Name(), err)
	}
	log.Info().
		Str("broker", b.Name()).
		Str("account", acct.ID).
		Str("currency", acct.Currency).
		Float64("balance", acct.Balance).
		Int("open_trades", acct.OpenTrades).
		Msg("broker connected")

	j, err := journal.Open(cfg.Journal.Type, cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := j.Close(); err != nil {
			log.Warn().Err(err).Msg("journal close")
		}
	}()
	rec := journal.NewRecorder(j, cfg.Symbol, log)

	m := metrics.New(prometheus.DefaultRegisterer)

	sinks := []events.Sink{rec}
	var notifier *notify.RedisSink
	if cfg.Notify.RedisURL != "" {
		ncfg := notify.Config{
			URL:     cfg.Notify.RedisURL,
			Channel: cfg.Notify.Channel,
			Token:   cfg.Notify.Token,
			Chat:    cfg.Notify.Chat,
		}
		client, err := notify.NewClient(ncfg)
		if err != nil {
			return err
		}
		defer client.Close()
		notifier = notify.NewRedisSink(client, ncfg, log)
		sinks = append(sinks, notifier)
	}

	ecfg, err := cfg.Engine()
	if err != nil {
		return err
	}
	eng := engine.New(ecfg, b,
		engine.WithLogger(log),
		engine.WithSinks(sinks...),
		engine.WithRecorder(rec),
		engine.WithMetrics(m),
	)

	srv := api.NewServer(cfg.Webhook.Addr(), api.NewRouter(eng, log, promhttp.Handler()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx)
	})
	if notifier != nil {
		g.Go(func() error {
			return notifier.Run(gctx)
		})
	}
	if feed != nil {
		g.Go(func() error {
			if err := feed(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("symbol", cfg.Symbol).Msg("webhook server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("webhook server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	err = g.Wait()
	log.Info().Msg("shutdown complete")
	return err
}

// restOnly hides the stream capability so the engine polls REST only.
type restOnly struct {
	broker.Broker
	broker.Modifier
	broker.CandleSource
}

// newBroker builds the configured adapter. The returned feed, when non-nil,
// must run for the life of the process.
func newBroker(cfg *config.Config, log zerolog.Logger) (broker.Broker, func(context.Context) error, error) {
	bc := cfg.Broker
	switch bc.Kind {
	case config.BrokerSim:
		e := sim.NewEngine(broker.Account{ID: "sim", Balance: cfg.Sim.Balance},
			sim.WithUnitsPerLot(bc.UnitsPerLot))
		e.SetPrice(cfg.Symbol, cfg.Sim.InitialBid, cfg.Sim.InitialAsk)
		return e, nil, nil
	}

	client, err := oanda.NewClient(oanda.Config{
		Token:             bc.Token,
		AccountID:         bc.AccountID,
		Env:               bc.Env,
		UnitsPerLot:       bc.UnitsPerLot,
		RequestsPerSecond: bc.RateLimit,
		MaxRetries:        3,
		Logger:            &log,
	})
	if err != nil {
		return nil, nil, err
	}

	switch bc.Kind {
	case config.BrokerPaper:
		acct, err := client.GetBalance(context.Background())
		if err != nil {
			return nil, nil, fmt.Errorf("paper: seed balance: %w", err)
		}
		e := sim.NewEngine(broker.Account{ID: "paper-" + acct.ID, Currency: acct.Currency, Balance: acct.Balance},
			sim.WithFeed(client),
			sim.WithUnitsPerLot(bc.UnitsPerLot))
		if !bc.Stream {
			return e, nil, nil
		}
		return e, func(ctx context.Context) error { return client.Subscribe(ctx, cfg.Symbol) }, nil
	case config.BrokerOANDA:
		if !bc.Stream {
			return restOnly{client, client, client}, nil, nil
		}
		return client, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown broker kind %q", bc.Kind)
}
