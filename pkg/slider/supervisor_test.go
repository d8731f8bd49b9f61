package slider

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"log/slog"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// widgetScene monta a página do cenário de referência: fundo 300px, peça
// 50px, trilho 280px, alça 40px, left 5px e gap em x=160.
func widgetScene(t *testing.T) *fakePage {
	t.Helper()
	p := newFakePage()
	p.elements[".scaptcha-anchor-checkbox"] = &fakeElement{attrs: map[string]string{"class": "scaptcha-anchor-checkbox"}}
	p.elements[".scaptcha-card-background"] = &fakeElement{styles: map[string]string{
		"background-image": dataURIStyle(t, canvas(300, 150, image.Rect(175, 55, 195, 75))),
	}}
	p.elements[".scaptcha-card-slider-puzzle"] = &fakeElement{styles: map[string]string{
		"background-image": dataURIStyle(t, canvas(50, 50, image.Rect(15, 15, 35, 35))),
		"left":             "5px",
	}}
	p.elements[".scaptcha-card-slider-track"] = &fakeElement{size: Size{W: 280, H: 40}}
	p.elements[".scaptcha-card-slider-control"] = &fakeElement{size: Size{W: 40, H: 40}}
	p.elements[".scaptcha-card-container"] = &fakeElement{}
	return p
}

func newTestSupervisor(p *fakePage, ptr *fakePointer, clock *fakeClock, opts ...Option) *Supervisor {
	base := []Option{WithClock(clock), WithLogger(quietLogger()), WithJitter(nil)}
	return NewSupervisor(p, ptr, Settings{}, append(base, opts...)...)
}

func TestAttempt_FimAFim(t *testing.T) {
	page := widgetScene(t)
	ptr := &fakePointer{}
	// o widget some quando o ponteiro solta
	ptr.onRelease = func() { delete(page.elements, ".scaptcha-card-container") }
	sink := &fakeSink{}

	res := newTestSupervisor(page, ptr, newFakeClock(), WithArtifactSink(sink)).Attempt(context.Background())
	if !res.Success {
		t.Fatalf("esperava sucesso, veio %+v (%v)", res, res.Err)
	}
	if res.GapX != 160 {
		t.Errorf("gap_x = %d, esperava 160", res.GapX)
	}
	if res.DragDistance != 149 {
		t.Errorf("drag_distance = %d, esperava 149", res.DragDistance)
	}
	if ptr.totalDX() != 149 {
		t.Errorf("o ponteiro andou %d, esperava 149", ptr.totalDX())
	}
	if page.elements[".scaptcha-anchor-checkbox"].clicks != 1 {
		t.Errorf("checkbox devia ser clicado uma vez")
	}
	if len(sink.saved) != 1 || sink.saved[0].GapX != 160 || !sink.saved[0].Solved || sink.saved[0].Debug == nil {
		t.Errorf("artefato inesperado: %+v", sink.saved)
	}
	// 3s ativação + 1s gesto + 3s validação, poll resolve na primeira leitura
	if res.Elapsed < 7*time.Second-time.Millisecond || res.Elapsed > 7*time.Second {
		t.Errorf("elapsed = %s, esperava ~7s", res.Elapsed)
	}
}

func TestAttempt_SeletorDeFallback(t *testing.T) {
	page := widgetScene(t)
	page.elements[".scaptcha-card-checkbox"] = page.elements[".scaptcha-anchor-checkbox"]
	delete(page.elements, ".scaptcha-anchor-checkbox")
	ptr := &fakePointer{onRelease: func() { delete(page.elements, ".scaptcha-card-container") }}

	res := newTestSupervisor(page, ptr, newFakeClock()).Attempt(context.Background())
	if !res.Success {
		t.Fatalf("o seletor alternativo devia funcionar: %v", res.Err)
	}
	if page.elements[".scaptcha-card-checkbox"].clicks != 1 {
		t.Error("checkbox alternativo não foi clicado")
	}
}

func TestAttempt_SemCheckbox(t *testing.T) {
	page := widgetScene(t)
	delete(page.elements, ".scaptcha-anchor-checkbox")
	ptr := &fakePointer{}

	res := newTestSupervisor(page, ptr, newFakeClock()).Attempt(context.Background())
	if res.Success || res.Kind() != KindElementNotFound {
		t.Fatalf("esperava ElementNotFound, veio %+v", res)
	}
	if res.Measured() {
		t.Error("falha antes do drag não devia ter medições")
	}
	if ptr.pressed {
		t.Error("não devia arrastar sem checkbox")
	}
	if !errors.Is(res.Err, ErrElementNotFound) {
		t.Errorf("a causa devia ser ErrElementNotFound: %v", res.Err)
	}
}

func TestAttempt_ImagemSemPayload(t *testing.T) {
	page := widgetScene(t)
	page.elements[".scaptcha-card-background"].styles["background-image"] = "none"

	res := newTestSupervisor(page, &fakePointer{}, newFakeClock()).Attempt(context.Background())
	if res.Kind() != KindExtraction {
		t.Fatalf("esperava ExtractionError, veio %s", res.Kind())
	}
}

func TestAttempt_TrilhoIlegivelUsaFallback(t *testing.T) {
	page := widgetScene(t)
	page.elements[".scaptcha-card-slider-track"].sizeErr = errors.New("sem layout")
	ptr := &fakePointer{onRelease: func() { delete(page.elements, ".scaptcha-card-container") }}

	res := newTestSupervisor(page, ptr, newFakeClock()).Attempt(context.Background())
	if !res.Success {
		t.Fatalf("leitura de geometria não é fatal: %v", res.Err)
	}
	// 300px >= 280 → ratio 0.81; round(155*0.81) = 126
	if res.DragDistance != 126 {
		t.Errorf("drag = %d, esperava 126", res.DragDistance)
	}
}

func TestAttempt_LeftIlegivelViraZero(t *testing.T) {
	page := widgetScene(t)
	page.elements[".scaptcha-card-slider-puzzle"].styles["left"] = "auto"
	ptr := &fakePointer{onRelease: func() { delete(page.elements, ".scaptcha-card-container") }}

	res := newTestSupervisor(page, ptr, newFakeClock()).Attempt(context.Background())
	// round(160*0.96) = 154
	if !res.Success || res.DragDistance != 154 {
		t.Fatalf("esperava drag 154, veio %d (%v)", res.DragDistance, res.Err)
	}
}

func TestAttempt_TimeoutDeVerificacao(t *testing.T) {
	page := widgetScene(t)
	sink := &fakeSink{err: errors.New("disco cheio")}

	res := newTestSupervisor(page, &fakePointer{}, newFakeClock(), WithArtifactSink(sink)).Attempt(context.Background())
	if res.Success || res.Kind() != KindVerificationTimeout {
		t.Fatalf("esperava VerificationTimeout, veio %+v", res)
	}
	if !res.Measured() || res.GapX != 160 || res.DragDistance != 149 {
		t.Errorf("falha pós-drag devia manter as medições: %+v", res)
	}
	if len(sink.saved) != 1 {
		t.Errorf("artefato devia ser tentado mesmo com falha")
	}
}

func TestVerify_WidgetRemovidoNoTerceiroPoll(t *testing.T) {
	page := widgetScene(t)
	page.onLookup = func(sel string, n int) {
		if sel == ".scaptcha-card-container" && n == 3 {
			delete(page.elements, sel)
		}
	}
	clock := newFakeClock()
	s := newTestSupervisor(page, &fakePointer{}, clock)

	solved, elapsed, err := s.Verify(context.Background(), page.elements[".scaptcha-anchor-checkbox"])
	if err != nil {
		t.Fatal(err)
	}
	if !solved {
		t.Fatal("esperava resolvido")
	}
	if elapsed != time.Second {
		t.Errorf("elapsed = %s, esperava 1s (polls 0 e 1 dormem 0.5s)", elapsed)
	}
}

func TestVerify_Marcadores(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *fakePage)
	}{
		{"checkbox verified", func(p *fakePage) {
			p.elements[".scaptcha-anchor-checkbox"].attrs["class"] = "scaptcha-anchor-checkbox verified"
		}},
		{"checkbox success", func(p *fakePage) {
			p.elements[".scaptcha-anchor-checkbox"].attrs["class"] = "scaptcha-anchor-checkbox--success"
		}},
		{"container oculto", func(p *fakePage) { p.elements[".scaptcha-card-container"].hidden = true }},
		{"container stale", func(p *fakePage) { p.elements[".scaptcha-card-container"].stale = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := widgetScene(t)
			tt.mutate(page)
			clock := newFakeClock()
			s := newTestSupervisor(page, &fakePointer{}, clock)
			solved, elapsed, err := s.Verify(context.Background(), page.elements[".scaptcha-anchor-checkbox"])
			if err != nil || !solved || elapsed != 0 {
				t.Fatalf("solved=%v elapsed=%s err=%v", solved, elapsed, err)
			}
		})
	}
}

func TestVerify_Esgotado(t *testing.T) {
	page := widgetScene(t)
	clock := newFakeClock()
	s := newTestSupervisor(page, &fakePointer{}, clock)
	solved, elapsed, err := s.Verify(context.Background(), page.elements[".scaptcha-anchor-checkbox"])
	if err != nil || solved {
		t.Fatalf("solved=%v err=%v", solved, err)
	}
	if elapsed != 10*time.Second {
		t.Errorf("20 polls de 0.5s deviam somar 10s, veio %s", elapsed)
	}
}

func TestVerify_ErroDeTransporteNaoResolve(t *testing.T) {
	page := widgetScene(t)
	page.elements[".scaptcha-card-container"].visErr = errors.New("websocket fechado")
	s := newTestSupervisor(page, &fakePointer{}, newFakeClock())

	solved, elapsed, err := s.Verify(context.Background(), page.elements[".scaptcha-anchor-checkbox"])
	if err != nil || solved {
		t.Fatalf("erro de transporte não devia contar como resolvido: solved=%v err=%v", solved, err)
	}
	if elapsed != 10*time.Second {
		t.Errorf("devia esgotar os polls, elapsed=%s", elapsed)
	}

	// o checkbox ainda decide quando o container não responde
	page.elements[".scaptcha-anchor-checkbox"].attrs["class"] = "scaptcha-anchor-checkbox verified"
	solved, _, err = s.Verify(context.Background(), page.elements[".scaptcha-anchor-checkbox"])
	if err != nil || !solved {
		t.Fatalf("marcador no checkbox devia resolver: solved=%v err=%v", solved, err)
	}
}

func TestSolve_ObservaCadaTentativa(t *testing.T) {
	page := widgetScene(t)
	ptr := &fakePointer{}
	releases := 0
	// primeira tentativa expira; na segunda o widget some ao soltar
	ptr.onRelease = func() {
		releases++
		if releases == 2 {
			delete(page.elements, ".scaptcha-card-container")
		}
	}
	type seen struct {
		n    int
		kind ErrorKind
	}
	var got []seen
	observer := func(_ context.Context, n int, res AttemptResult) {
		if res.Attempts != n {
			t.Errorf("tentativa %d chegou com Attempts=%d", n, res.Attempts)
		}
		got = append(got, seen{n, res.Kind()})
	}

	res := newTestSupervisor(page, ptr, newFakeClock(), WithAttemptObserver(observer)).Solve(context.Background())
	if !res.Success || res.Attempts != 2 {
		t.Fatalf("esperava sucesso na segunda tentativa, veio %+v", res)
	}
	want := []seen{{1, KindVerificationTimeout}, {2, KindNone}}
	if len(got) != len(want) {
		t.Fatalf("observer viu %d tentativas, esperava %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tentativa %d: %+v, esperava %+v", i+1, got[i], want[i])
		}
	}
}

func TestRetry(t *testing.T) {
	fail := Failed(KindVerificationTimeout, "widget ainda presente", nil, time.Second)
	ok := Solved(160, 149, 0.97, 2*time.Second)

	tests := []struct {
		name     string
		results  []AttemptResult
		want     bool
		attempts int
		pauses   int
	}{
		{"falha depois sucesso", []AttemptResult{fail, ok}, true, 2, 1},
		{"duas falhas", []AttemptResult{fail, Failed(KindActuation, "drag", nil, time.Second)}, false, 2, 1},
		{"sucesso de primeira", []AttemptResult{ok}, true, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			calls := 0
			res := Retry(context.Background(), 2, 2*time.Second, clock, quietLogger(), func(context.Context, int) AttemptResult {
				r := tt.results[calls]
				calls++
				return r
			})
			if res.Success != tt.want || res.Attempts != tt.attempts || calls != tt.attempts {
				t.Fatalf("success=%v attempts=%d calls=%d", res.Success, res.Attempts, calls)
			}
			if len(clock.sleeps) != tt.pauses {
				t.Errorf("pausas = %d, esperava %d", len(clock.sleeps), tt.pauses)
			}
			if !tt.want && res.Kind() != KindActuation {
				t.Errorf("devia devolver a última falha, veio %s", res.Kind())
			}
		})
	}
}

func TestResultJSON(t *testing.T) {
	raw, err := json.Marshal(Solved(160, 149, 0.97, 2340*time.Millisecond).WithAttempts(1))
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got["success"] != true || got["gap_x"] != float64(160) || got["drag_distance"] != float64(149) ||
		got["time_taken"] != 2.34 || got["attempts"] != float64(1) {
		t.Errorf("json inesperado: %s", raw)
	}
	if _, ok := got["error"]; ok {
		t.Errorf("sucesso não devia ter error: %s", raw)
	}

	raw, _ = json.Marshal(Failed(KindElementNotFound, "checkbox de ativação", ErrElementNotFound, time.Second))
	got = map[string]any{}
	_ = json.Unmarshal(raw, &got)
	if got["success"] != false || got["error_kind"] != "ElementNotFound" || got["error"] == "" {
		t.Errorf("json de falha inesperado: %s", raw)
	}
	if _, ok := got["gap_x"]; ok {
		t.Errorf("falha sem medições não devia ter gap_x: %s", raw)
	}
}
