package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"planner/internal/auth"
	"planner/internal/config"
	"planner/internal/httpapi"
	"planner/internal/instrument"
	"planner/internal/ledger"
	"planner/internal/metrics"
	"planner/internal/queue"
	"planner/internal/rewards"
	"planner/internal/schedule"
	"planner/internal/store"
)

func main() {
	cfg := config.Load()
	cfg.SetupLogging()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg); err != nil {
		log.Fatal("api failed", "err", err)
	}
}

func run(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, err := store.Open(store.Options{
		Backend:     cfg.StoreBackend,
		SQLitePath:  cfg.SQLitePath,
		DatabaseURL: cfg.DatabaseURL,
		RedisAddr:   cfg.RedisAddr,
	})
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer kv.Close()
	checks := map[string]httpapi.Checker{"store": kv.Ping}

	terms, err := loadTerms(cfg.TermsFile)
	if err != nil {
		return err
	}

	var q queue.Queue
	switch cfg.QueueBackend {
	case "redis":
		rc := store.NewRedis(cfg.RedisAddr)
		defer rc.Close()
		q = queue.NewRedisQueue(rc.Client, cfg.QueueKey)
		checks["queue"] = rc.Ping
	default:
		// no separate worker: rewards are processed in this process
		mem := queue.NewInMemory(64)
		msgs, err := mem.Consume(ctx)
		if err != nil {
			return err
		}
		go rewards.NewProcessor(rewards.NewMemory()).Run(ctx, msgs)
		q = mem
	}

	var (
		l          *ledger.Ledger
		collectors *instrument.Collectors
	)
	clock := func() time.Time { return time.Now().In(cfg.Timezone) }
	onMark := func(ctx context.Context, evt ledger.MarkEvent) {
		collectors.ObserveMark(evt.Attended)
		msg, err := queue.NewMessage(queue.TypeAttendanceMarked, rewards.Notice{
			MarkEvent: evt,
			Streak:    metrics.Streak(l.Records(), l.Today()),
		})
		if err == nil {
			pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			err = q.Publish(pubCtx, msg)
			cancel()
		}
		if err != nil {
			collectors.PublishFails.Inc()
			log.Warn("mark event not published", "event", evt.ID, "err", err)
		}
	}

	l, err = ledger.Open(ctx, kv, ledger.WithClock(clock), ledger.WithListener(onMark))
	if err != nil {
		return err
	}
	collectors, err = instrument.New(prometheus.DefaultRegisterer, metrics.NewEngine(l))
	if err != nil {
		return errors.Wrap(err, "register metrics")
	}

	if term, ok := terms.ActiveTermForDate(l.Today()); ok {
		n, err := l.EnsureRecordsForTerm(ctx, term)
		if err != nil {
			return errors.Wrap(err, "backfill active term")
		}
		collectors.Materialized.Add(float64(n))
		log.Info("active term ready", "term", term.Name, "inserted", n)
	} else {
		log.Warn("no active term for today", "date", schedule.FormatDate(l.Today()))
	}

	signer := auth.NewSigner(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
	h := httpapi.New(l, terms, signer, checks, func(n int) { collectors.Materialized.Add(float64(n)) })
	r := httpapi.NewRouter(h, httpapi.RouterConfig{
		RateLimitPerMin: cfg.RateLimitPerMin,
		Release:         cfg.Production(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "port", cfg.HTTPPort, "store", cfg.StoreBackend, "queue", cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced shutdown", "err", err)
	}
	log.Info("server exited")
	return nil
}

func loadTerms(path string) (*schedule.Catalog, error) {
	terms, err := schedule.LoadCatalog(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn("term catalog not found, starting without terms", "path", path)
		return &schedule.Catalog{}, nil
	}
	if err != nil {
		return nil, err
	}
	log.Info("term catalog loaded", "path", path, "terms", len(terms.Terms))
	return terms, nil
}
