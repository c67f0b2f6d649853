// Command controlplane is the control plane's entrypoint: a cobra CLI exposing a "serve"
// subcommand that wires the bot runtime, license gate, and news/calendar refresher behind the
// httpapi control surface, plus a "migrate-check" subcommand for operators to sanity-check a
// Postgres DSN before rollout.
//
// Grounded on the teacher's cmd/cryptorun/main.go: zerolog console writer bootstrap, a cobra
// root command with flag-bearing subcommands, RunE error propagation to log.Error+os.Exit.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/controlplane/internal/botruntime"
	"github.com/sawpanic/controlplane/internal/cache"
	"github.com/sawpanic/controlplane/internal/config"
	"github.com/sawpanic/controlplane/internal/httpapi"
	"github.com/sawpanic/controlplane/internal/license"
	"github.com/sawpanic/controlplane/internal/newsrisk"
	"github.com/sawpanic/controlplane/internal/notify"
)

const version = "v0.1.0"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     "controlplane",
		Short:   "Multi-tenant crypto market-making control plane",
		Version: version,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP control surface and background refreshers",
		RunE:  runServe,
	}
	serveCmd.Flags().String("addr", "127.0.0.1:8090", "HTTP listen address")
	serveCmd.Flags().String("config", "", "Path to a YAML config file (optional, env overrides always apply)")
	serveCmd.Flags().String("postgres-dsn", "", "Postgres DSN; empty uses in-memory stores")
	serveCmd.Flags().String("redis-addr", "", "Redis address for shared caches; empty uses in-memory cache")
	serveCmd.Flags().String("plan", "pro", "Static license plan to enforce (free|pro|enterprise)")

	migrateCheckCmd := &cobra.Command{
		Use:   "migrate-check",
		Short: "Verify the configured Postgres DSN is reachable",
		RunE:  runMigrateCheck,
	}
	migrateCheckCmd.Flags().String("postgres-dsn", "", "Postgres DSN to check")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCheckCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	cfgPath, _ := cmd.Flags().GetString("config")
	dsn, _ := cmd.Flags().GetString("postgres-dsn")
	redisAddr, _ := cmd.Flags().GetString("redis-addr")
	plan, _ := cmd.Flags().GetString("plan")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var store botruntime.Store
	var eventStore newsrisk.EventStore
	if dsn != "" {
		db, err := sqlx.Connect("postgres", dsn)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		store = botruntime.NewPostgresStore(db, 5*time.Second)
		eventStore = newsrisk.NewPostgresEventStore(db, 5*time.Second)
		log.Info().Msg("using postgres-backed stores")
	} else {
		store = botruntime.NewMemoryStore()
		eventStore = &memoryEventStore{}
		log.Warn().Msg("no --postgres-dsn given, using in-memory stores (state lost on restart)")
	}

	sharedCache := buildCache(redisAddr)

	entitlement := license.Entitlement{Plan: license.Plan(plan)}
	gate := license.NewGate(license.StaticSource{Entitlement: entitlement}, sharedCache, cfg.License.CacheTTLInterval())

	queue := botruntime.NewInMemoryQueue()
	calendar := newsrisk.NewRefresher(noopCalendarSource{}, eventStore, sharedCache, []string{"USD", "EUR"})
	notifier := notify.NewDryRunNotifier(log.Logger)

	licenseChecker := license.StartChecker{
		Gate: gate,
		Lookup: func(ctx context.Context, botID string) (license.CheckBotStartInput, error) {
			return license.CheckBotStartInput{UserID: botID, Exchange: "binance"}, nil
		},
	}

	server := httpapi.NewServer(httpapi.Config{
		Addr:         addr,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		ReqTimeout:   5 * time.Second,
	}, httpapi.Deps{
		Store:    store,
		Queue:    queue,
		License:  licenseChecker,
		Calendar: calendar,
		Notifier: notifier,
		Log:      log.Logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := calendar.RefreshEconomicCalendar(ctx); err != nil {
					log.Error().Err(err).Msg("calendar refresh failed")
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("control plane listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runMigrateCheck(cmd *cobra.Command, args []string) error {
	dsn, _ := cmd.Flags().GetString("postgres-dsn")
	if dsn == "" {
		return fmt.Errorf("--postgres-dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	fmt.Println("postgres reachable")
	return nil
}

func buildCache(redisAddr string) cache.Cache {
	if redisAddr == "" {
		return cache.NewMemory()
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	return cache.NewRedis(client)
}

// memoryEventStore is the in-memory EventStore used when no Postgres DSN is configured.
type memoryEventStore struct {
	events []newsrisk.Event
}

func (m *memoryEventStore) Upsert(ctx context.Context, events []newsrisk.Event) error {
	for _, e := range events {
		replaced := false
		for i := range m.events {
			if m.events[i].Source == e.Source && m.events[i].SourceID == e.SourceID {
				m.events[i] = e
				replaced = true
				break
			}
		}
		if !replaced {
			m.events = append(m.events, e)
		}
	}
	return nil
}

func (m *memoryEventStore) ForwardWindow(ctx context.Context, from, to time.Time, currencies []string) ([]newsrisk.Event, error) {
	var out []newsrisk.Event
	currencySet := make(map[string]bool, len(currencies))
	for _, c := range currencies {
		currencySet[c] = true
	}
	for _, e := range m.events {
		if (e.Timestamp.Equal(from) || e.Timestamp.After(from)) && (e.Timestamp.Equal(to) || e.Timestamp.Before(to)) && currencySet[e.Currency] {
			out = append(out, e)
		}
	}
	return out, nil
}

// noopCalendarSource is the default calendar upstream until a real provider (spec.md's
// Non-goals explicitly exclude naming one) is configured.
type noopCalendarSource struct{}

func (noopCalendarSource) FetchWindow(ctx context.Context, from, to time.Time, currencies []string) ([]newsrisk.Event, error) {
	return nil, nil
}
