package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/loviiin/scaptcha/pkg/captcha"
	"github.com/loviiin/scaptcha/pkg/config"
	"github.com/loviiin/scaptcha/pkg/journal"
	"github.com/loviiin/scaptcha/pkg/logging"
	"github.com/loviiin/scaptcha/pkg/metrics"
	"github.com/loviiin/scaptcha/pkg/slider"
	"github.com/loviiin/scaptcha/pkg/vision"
	"github.com/loviiin/scaptcha/services/solver/internal/browser"
	"github.com/loviiin/scaptcha/services/solver/internal/report"
	"github.com/loviiin/scaptcha/services/solver/internal/repository"
	"github.com/loviiin/scaptcha/services/solver/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("[Solver] encerrando com erro", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.LoadConfig()

	cleanup, err := logging.Setup(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return err
	}
	defer cleanup()

	slog.Info("[Solver] iniciando", "env", cfg.App.Env, "target", cfg.Target.URL, "runs", cfg.App.Runs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		slog.Info("[Solver] sinal recebido, encerrando...")
		cancel()
	}()

	// --- Redis ---
	var rec report.Recorder
	if cfg.Redis.Address != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		j := journal.NewJournal(rdb, cfg.Redis.TTLHours)
		defer j.Close()
		rec = j

		go func() {
			if err := metrics.StartMetricsServer(ctx, cfg.Metrics.Port, rdb, journal.MetricDefs()); err != nil {
				slog.Error("[Metrics] servidor caiu", "error", err)
			}
		}()
	}

	// --- Postgres ---
	var store report.Store
	if cfg.Database.URL != "" {
		repo, err := repository.NewAttemptRepository(ctx, cfg.Database.URL)
		if err != nil {
			slog.Warn("[DB] histórico desligado", "error", err)
		} else {
			defer repo.Close(context.Background())
			store = repo
		}
	}

	// --- NATS ---
	var (
		pub    report.Publisher
		finder slider.GapFinder
	)
	if cfg.Nats.URL != "" {
		nc, err := nats.Connect(cfg.Nats.URL)
		if err != nil {
			return fmt.Errorf("erro NATS: %w", err)
		}
		defer nc.Close()

		js, err := nc.JetStream()
		if err != nil {
			return fmt.Errorf("erro JetStream: %w", err)
		}
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     "SCAPTCHA",
			Subjects: []string{cfg.Nats.ResultSubject},
			Storage:  nats.FileStorage,
		})
		if err != nil {
			slog.Info("[NATS] stream SCAPTCHA já existe ou falhou", "error", err)
		}
		pub = js

		if cfg.Nats.RemoteLocator {
			timeout := time.Duration(cfg.Nats.TimeoutMS) * time.Millisecond
			finder = vision.NewClient(nc, cfg.Nats.Subject, timeout, slog.Default())
			slog.Info("[NATS] template matching remoto", "subject", cfg.Nats.Subject)
		}
	}
	reporter := report.NewReporter(pub, cfg.Nats.ResultSubject, rec, store, slog.Default())

	// --- Dataset ---
	var sink slider.ArtifactSink
	if cfg.Dataset.Enabled {
		sink = captcha.NewCollector(cfg.Dataset.Path, slog.Default())
	}
	go worker.StartSweeper(ctx, worker.SweeperOptions{
		DatasetDir:    cfg.Dataset.Path,
		DatasetTTL:    time.Duration(cfg.Dataset.RetentionHours) * time.Hour,
		ActiveProfile: cfg.Browser.StateDir,
		Interval:      time.Duration(cfg.Dataset.SweepMinutes) * time.Minute,
	}, slog.Default())

	// --- Browser ---
	bopts := browser.Options{
		Bin:         cfg.Browser.Bin,
		StateDir:    cfg.Browser.StateDir,
		Headless:    cfg.Browser.Headless,
		MonitorPort: cfg.Browser.MonitorPort,
		Stealth:     cfg.Browser.Stealth,
		Width:       cfg.Browser.Width,
		Height:      cfg.Browser.Height,
	}
	b, err := browser.NewBrowser(ctx, bopts)
	if err != nil {
		return err
	}
	defer b.Close()

	page, err := browser.OpenPage(b, bopts)
	if err != nil {
		return err
	}

	if err := page.Context(ctx).Navigate(cfg.Target.URL); err != nil {
		return fmt.Errorf("erro navegando para %s: %w", cfg.Target.URL, err)
	}
	if err := page.Context(ctx).WaitLoad(); err != nil {
		slog.Warn("[Solver] WaitLoad falhou, seguindo", "error", err)
	}
	clock := slider.RealClock()
	loadWait := time.Duration(cfg.Target.LoadWaitMS) * time.Millisecond
	if !waitLoad(ctx, clock, loadWait) {
		return nil
	}

	kind, err := captcha.WaitForCaptcha(ctx, page, 15*time.Second, 500*time.Millisecond)
	if err != nil {
		return err
	}
	if kind == captcha.KindRecaptcha {
		slog.Warn("[Solver] reCAPTCHA detectado, não suportado")
		return nil
	}

	runID := uuid.NewString()
	run := 0

	adapter := browser.NewPage(page)
	opts := []slider.Option{
		slider.WithLogger(slog.Default()),
		slider.WithClock(clock),
		slider.WithAttemptObserver(func(ctx context.Context, attempt int, res slider.AttemptResult) {
			reporter.ReportAttempt(ctx, runID, run, attempt, res)
		}),
	}
	if sink != nil {
		opts = append(opts, slider.WithArtifactSink(sink))
	}
	if finder != nil {
		opts = append(opts, slider.WithGapFinder(finder))
	}
	sup := slider.NewSupervisor(adapter, adapter, cfg.Captcha.Settings(), opts...)

	for i := 1; i <= cfg.App.Runs; i++ {
		if ctx.Err() != nil {
			break
		}
		run = i
		res := sup.Solve(ctx)
		slog.Info("[Solver] execução concluída",
			"run", i,
			"success", res.Success,
			"attempts", res.Attempts,
			"gap_x", res.GapX,
			"drag", res.DragDistance,
			"elapsed", res.Elapsed.Round(10*time.Millisecond),
		)
		reporter.Report(ctx, runID, i, res)

		if i < cfg.App.Runs && !res.Success {
			if err := page.Context(ctx).Reload(); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("[Solver] erro recarregando a página", "error", err)
			}
			if !waitLoad(ctx, clock, loadWait) {
				break
			}
		}
	}

	runs, solved, rate := reporter.Summary()
	slog.Info("[Solver] resumo", "run_id", runID, "runs", runs, "solved", solved, "success_rate", fmt.Sprintf("%.1f%%", rate*100))
	return nil
}

// waitLoad dá tempo para a página montar o widget. Devolve false se o ctx foi
// cancelado durante a espera.
func waitLoad(ctx context.Context, clock slider.Clock, d time.Duration) bool {
	if err := clock.Sleep(ctx, d); err != nil {
		slog.Info("[Solver] espera de carregamento interrompida", "error", err)
		return false
	}
	return true
}
