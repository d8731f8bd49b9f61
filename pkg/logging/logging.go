// Package logging monta o slog dos serviços: texto no stdout e JSON rotacionado
// em arquivo.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controla o destino dos logs. File vazio desliga o arquivo.
type Options struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Console    io.Writer
}

// multiHandler despacha cada record para todos os handlers habilitados.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, hh := range h.handlers {
		if !hh.Enabled(ctx, r.Level) {
			continue
		}
		if err := hh.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		out[i] = hh.WithAttrs(attrs)
	}
	return &multiHandler{handlers: out}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		out[i] = hh.WithGroup(name)
	}
	return &multiHandler{handlers: out}
}

// ParseLevel aceita debug, info, warn e error; o resto vira info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New cria o logger e devolve o cleanup que fecha o arquivo.
// O arquivo recebe tudo a partir de debug; o console respeita Level.
func New(opts Options) (*slog.Logger, func(), error) {
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	handlers := []slog.Handler{
		slog.NewTextHandler(console, &slog.HandlerOptions{Level: ParseLevel(opts.Level)}),
	}
	cleanup := func() {}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, nil, err
		}
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 3),
			MaxAge:     opts.MaxAgeDays,
			LocalTime:  true,
		}
		handlers = append(handlers, slog.NewJSONHandler(lj, &slog.HandlerOptions{
			Level:     slog.LevelDebug,
			AddSource: true,
		}))
		cleanup = func() {
			if err := lj.Close(); err != nil {
				slog.Error("[Log] falha ao fechar arquivo de log", "error", err)
			}
		}
	}

	return slog.New(&multiHandler{handlers: handlers}), cleanup, nil
}

// Setup chama New e instala o logger como slog.Default.
func Setup(opts Options) (func(), error) {
	logger, cleanup, err := New(opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
