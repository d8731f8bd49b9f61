package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/loviiin/scaptcha/pkg/config"
	"github.com/loviiin/scaptcha/pkg/logging"
	"github.com/loviiin/scaptcha/pkg/vision"
)

// Serviço de template matching: responde pedidos em jobs.captcha.slider.
// Vários locators dividem a carga pelo queue group.
func main() {
	cfg := config.LoadConfig()

	cleanup, err := logging.Setup(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		slog.Error("[Locator] erro configurando logs", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	url := cfg.Nats.URL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, nats.Name("scaptcha-locator"))
	if err != nil {
		slog.Error("[Locator] erro NATS", "error", err)
		os.Exit(1)
	}
	defer nc.Close()

	handler := vision.NewHandler(cfg.Captcha.Settings().Locator, slog.Default())
	sub, err := nc.QueueSubscribe(cfg.Nats.Subject, "locator", handler.Serve)
	if err != nil {
		slog.Error("[Locator] erro criando subscriber", "error", err)
		os.Exit(1)
	}
	slog.Info("[Locator] ouvindo", "subject", sub.Subject, "queue", "locator")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	slog.Info("[Locator] sinal recebido, drenando...")
	if err := nc.Drain(); err != nil {
		slog.Warn("[Locator] erro no drain", "error", err)
	}
}
