package slider

import (
	"context"
	"log/slog"
	"time"
)

// Retry repete fn até maxAttempts vezes, de forma sequencial, com uma pausa
// entre tentativas. Devolve o primeiro sucesso ou a última falha, com
// Attempts preenchido. Toda falha é tratada igual, sem olhar a causa.
func Retry(ctx context.Context, maxAttempts int, pause time.Duration, clock Clock, logger *slog.Logger, fn func(ctx context.Context, attempt int) AttemptResult) AttemptResult {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if clock == nil {
		clock = RealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}

	var last AttemptResult
	for n := 1; n <= maxAttempts; n++ {
		logger.Info("[Retry] tentativa", "n", n, "max", maxAttempts)
		last = fn(ctx, n).WithAttempts(n)
		if last.Success {
			return last
		}
		logger.Warn("[Retry] tentativa falhou", "n", n, "kind", last.Kind().String(), "error", last.Err)
		if n == maxAttempts {
			break
		}
		if err := clock.Sleep(ctx, pause); err != nil {
			logger.Warn("[Retry] cancelado entre tentativas", "error", err)
			break
		}
	}
	return last
}

// Solve roda Attempt dentro do Retry com o orçamento configurado.
func (s *Supervisor) Solve(ctx context.Context) AttemptResult {
	return Retry(ctx, s.settings.MaxAttempts, s.settings.RetryPause, s.clock, s.logger,
		func(ctx context.Context, n int) AttemptResult {
			res := s.Attempt(ctx).WithAttempts(n)
			if s.observer != nil {
				s.observer(ctx, n, res)
			}
			return res
		})
}
