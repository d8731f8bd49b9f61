package journal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/loviiin/scaptcha/pkg/slider"
)

func setup(t *testing.T) (*miniredis.Miniredis, *Journal) {
	t.Helper()
	// MiniRedis pra rodar os testes sem precisar do Redis real subindo
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Erro ao iniciar miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewJournal(rdb, 24)
}

func TestRecordAttempt_RetryConta(t *testing.T) {
	mr, j := setup(t)
	ctx := context.Background()

	// execução em que a primeira tentativa falha e o retry resolve
	fail := slider.FailedAfterDrag(slider.KindVerificationTimeout, "widget presente", 150, 140, 0.61, 12*time.Second).WithAttempts(1)
	ok := slider.Solved(160, 149, 0.97, 7*time.Second).WithAttempts(2)

	if err := j.RecordAttempt(ctx, "run-1", 1, 1, fail); err != nil {
		t.Fatalf("RecordAttempt falha: %v", err)
	}
	if err := j.RecordAttempt(ctx, "run-1", 1, 2, ok); err != nil {
		t.Fatalf("RecordAttempt sucesso: %v", err)
	}
	if err := j.Record(ctx, "run-1", 1, ok); err != nil {
		t.Fatalf("Record: %v", err)
	}

	checks := map[string]string{
		KeyRuns:     "1",
		KeyAttempts: "2",
		KeySolved:   "1",
		KeyFailed:   "1",
		FailedKindKey(slider.KindVerificationTimeout): "1",
		KeyLastGapX: "160",
	}
	for key, want := range checks {
		got, err := mr.Get(key)
		if err != nil || got != want {
			t.Errorf("%s = %q (%v), esperava %q", key, got, err, want)
		}
	}

	raw, err := j.Get(ctx, "run-1", 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var stored map[string]any
	if err := json.Unmarshal(raw, &stored); err != nil {
		t.Fatal(err)
	}
	if stored["success"] != true || stored["gap_x"] != float64(160) || stored["attempts"] != float64(2) {
		t.Errorf("json gravado inesperado: %s", raw)
	}

	if ttl := mr.TTL(attemptKey("run-1", 1, 1)); ttl != 24*time.Hour {
		t.Errorf("TTL da tentativa = %s, esperava 24h", ttl)
	}
	if ttl := mr.TTL(runKey("run-1", 1)); ttl != 24*time.Hour {
		t.Errorf("TTL da execução = %s, esperava 24h", ttl)
	}
}

func TestRecord_Expira(t *testing.T) {
	mr, j := setup(t)
	ctx := context.Background()

	res := slider.Failed(slider.KindElementNotFound, "checkbox", nil, time.Second).WithAttempts(1)
	if err := j.RecordAttempt(ctx, "run-2", 1, 1, res); err != nil {
		t.Fatal(err)
	}
	if err := j.Record(ctx, "run-2", 1, res); err != nil {
		t.Fatal(err)
	}
	if ok, _ := j.Exists(ctx, "run-2", 1); !ok {
		t.Fatal("execução devia existir logo depois do Record")
	}

	mr.FastForward(25 * time.Hour)

	if ok, _ := j.Exists(ctx, "run-2", 1); ok {
		t.Error("execução devia ter expirado")
	}
	if _, err := j.Get(ctx, "run-2", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("esperava ErrNotFound, veio %v", err)
	}
	// contadores não expiram
	if got, _ := mr.Get(FailedKindKey(slider.KindElementNotFound)); got != "1" {
		t.Errorf("contador por kind = %q", got)
	}
}

func TestMetricDefs_NomesUnicos(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range MetricDefs() {
		if seen[d.PromName] {
			t.Errorf("métrica duplicada: %s", d.PromName)
		}
		seen[d.PromName] = true
	}
	if !seen["scaptcha_failed_verification_timeout_total"] {
		t.Errorf("faltou o contador de VerificationTimeout: %v", seen)
	}
}
