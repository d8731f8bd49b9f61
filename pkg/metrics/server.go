package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/redis/go-redis/v9"
)

// MetricDef define o mapeamento entre uma chave Redis e uma métrica Prometheus.
type MetricDef struct {
	RedisKey string
	PromName string
	Help     string
	Type     string // "counter" ou "gauge"
}

// Handler escreve as métricas no formato texto do Prometheus. Chave ausente vale 0.
func Handler(rdb *redis.Client, defs []MetricDef) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		for _, m := range defs {
			val, err := rdb.Get(ctx, m.RedisKey).Result()
			if errors.Is(err, redis.Nil) {
				val = "0"
			} else if err != nil {
				slog.Warn("[Metrics] erro ao ler chave", "key", m.RedisKey, "error", err)
				val = "0"
			}
			fmt.Fprintf(w, "# HELP %s %s\n", m.PromName, m.Help)
			fmt.Fprintf(w, "# TYPE %s %s\n", m.PromName, m.Type)
			fmt.Fprintf(w, "%s %s\n\n", m.PromName, val)
		}
	})
}

// StartMetricsServer sobe o /metrics e para quando o ctx é cancelado.
func StartMetricsServer(ctx context.Context, addr string, rdb *redis.Client, defs []MetricDef) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(rdb, defs))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("[Metrics] servidor ouvindo", "addr", addr+"/metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: falha ao iniciar servidor: %w", err)
	}
	return nil
}

// SnakeCase converte "VerificationTimeout" em "verification_timeout".
func SnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
