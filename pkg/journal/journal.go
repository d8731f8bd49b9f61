// Package journal guarda cada tentativa no Redis com TTL e mantém os
// contadores que o servidor de métricas expõe.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/loviiin/scaptcha/pkg/metrics"
	"github.com/loviiin/scaptcha/pkg/slider"
)

const prefix = "scaptcha"

// Chaves dos contadores
const (
	KeyAttempts  = prefix + ":attempts_total"
	KeySolved    = prefix + ":solved_total"
	KeyFailed    = prefix + ":failed_total"
	KeyRuns      = prefix + ":runs_total"
	KeyLastGapX  = prefix + ":last_gap_x"
	KeyLastScore = prefix + ":last_score"
)

// ErrNotFound indica execução expirada ou nunca registrada.
var ErrNotFound = errors.New("tentativa não encontrada no journal")

// Journal registra tentativas por run.
type Journal struct {
	rdb      *redis.Client
	ttlHours int
}

// NewJournal cria o journal. Se ttlHours for 0, usa 48 horas.
func NewJournal(rdb *redis.Client, ttlHours int) *Journal {
	if ttlHours <= 0 {
		ttlHours = 48
	}
	return &Journal{rdb: rdb, ttlHours: ttlHours}
}

func attemptKey(runID string, run, attempt int) string {
	return fmt.Sprintf("%s:attempt:%s:%d:%d", prefix, runID, run, attempt)
}

func runKey(runID string, run int) string {
	return fmt.Sprintf("%s:run:%s:%d", prefix, runID, run)
}

// FailedKindKey é o contador de falhas por classe.
func FailedKindKey(kind slider.ErrorKind) string {
	return fmt.Sprintf("%s:failed:%s", prefix, kind)
}

// RecordAttempt salva uma tentativa individual (dentro do retry) e atualiza
// os contadores de tentativas, sucessos e falhas por classe.
func (j *Journal) RecordAttempt(ctx context.Context, runID string, run, attempt int, res slider.AttemptResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	ttl := time.Duration(j.ttlHours) * time.Hour

	_, err = j.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, attemptKey(runID, run, attempt), data, ttl)
		p.Incr(ctx, KeyAttempts)
		if res.Success {
			p.Incr(ctx, KeySolved)
		} else {
			p.Incr(ctx, KeyFailed)
			p.Incr(ctx, FailedKindKey(res.Kind()))
		}
		if res.Measured() {
			p.Set(ctx, KeyLastGapX, res.GapX, 0)
			p.Set(ctx, KeyLastScore, fmt.Sprintf("%.4f", res.Score), 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("erro gravando tentativa %s/%d/%d: %w", runID, run, attempt, err)
	}
	return nil
}

// Record salva o resultado final de uma execução (retry incluído) e conta a
// execução. Os contadores de tentativa ficam com RecordAttempt.
func (j *Journal) Record(ctx context.Context, runID string, run int, res slider.AttemptResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	ttl := time.Duration(j.ttlHours) * time.Hour

	_, err = j.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, runKey(runID, run), data, ttl)
		p.Incr(ctx, KeyRuns)
		return nil
	})
	if err != nil {
		return fmt.Errorf("erro gravando execução %s/%d: %w", runID, run, err)
	}
	return nil
}

// Get devolve o JSON gravado de uma execução.
func (j *Journal) Get(ctx context.Context, runID string, run int) (json.RawMessage, error) {
	data, err := j.rdb.Get(ctx, runKey(runID, run)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Exists informa se a execução ainda está no journal.
func (j *Journal) Exists(ctx context.Context, runID string, run int) (bool, error) {
	exists, err := j.rdb.Exists(ctx, runKey(runID, run)).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

// MetricDefs mapeia os contadores do journal para métricas Prometheus.
func MetricDefs() []metrics.MetricDef {
	defs := []metrics.MetricDef{
		{RedisKey: KeyRuns, PromName: "scaptcha_runs_total", Help: "Execuções completas do solver", Type: "counter"},
		{RedisKey: KeyAttempts, PromName: "scaptcha_attempts_total", Help: "Tentativas de resolver o slider", Type: "counter"},
		{RedisKey: KeySolved, PromName: "scaptcha_solved_total", Help: "Tentativas resolvidas", Type: "counter"},
		{RedisKey: KeyFailed, PromName: "scaptcha_failed_total", Help: "Tentativas falhas", Type: "counter"},
		{RedisKey: KeyLastGapX, PromName: "scaptcha_last_gap_x", Help: "Último gap localizado (px)", Type: "gauge"},
		{RedisKey: KeyLastScore, PromName: "scaptcha_last_match_score", Help: "Score do último template matching", Type: "gauge"},
	}
	for _, k := range []slider.ErrorKind{
		slider.KindElementNotFound,
		slider.KindExtraction,
		slider.KindLocator,
		slider.KindGeometry,
		slider.KindActuation,
		slider.KindVerificationTimeout,
		slider.KindLowConfidence,
	} {
		defs = append(defs, metrics.MetricDef{
			RedisKey: FailedKindKey(k),
			PromName: "scaptcha_failed_" + metrics.SnakeCase(k.String()) + "_total",
			Help:     "Falhas por " + k.String(),
			Type:     "counter",
		})
	}
	return defs
}

// Close fecha a conexão com o redis
func (j *Journal) Close() error {
	return j.rdb.Close()
}
