package slider

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// DragStep é um movimento relativo do ponteiro.
type DragStep struct {
	DX int
	DY int
}

// DragTiming são as pausas do gesto.
type DragTiming struct {
	Settle   time.Duration
	Duration time.Duration
	Steps    int
}

const (
	DefaultDragSteps    = 30
	DefaultDragDuration = 800 * time.Millisecond
	DefaultDragSettle   = 200 * time.Millisecond
)

func (t DragTiming) withDefaults() DragTiming {
	if t.Steps <= 0 {
		t.Steps = DefaultDragSteps
	}
	if t.Duration <= 0 {
		t.Duration = DefaultDragDuration
	}
	if t.Settle <= 0 {
		t.Settle = DefaultDragSettle
	}
	return t
}

// Jitter devolve um desvio vertical em [-1, 1].
func Jitter() int { return rand.Intn(3) - 1 }

// PlanDrag divide distance em passos com ease-out 1-(1-t)². Cada passo anda
// até o alvo arredondado, então a soma dos DX é sempre exatamente distance.
// jitter só afeta DY; nil desliga.
func PlanDrag(distance, steps int, jitter func() int) []DragStep {
	if steps <= 0 {
		if distance == 0 {
			return nil
		}
		return []DragStep{{DX: distance}}
	}

	plan := make([]DragStep, 0, steps+1)
	cur := 0
	for i := 0; i < steps; i++ {
		t := float64(i+1) / float64(steps)
		ease := 1 - (1-t)*(1-t)
		dx := int(math.Round(float64(distance)*ease)) - cur
		dy := 0
		if jitter != nil && dx != 0 {
			dy = clampUnit(jitter())
		}
		plan = append(plan, DragStep{DX: dx, DY: dy})
		cur += dx
	}
	if rest := distance - cur; rest != 0 {
		plan = append(plan, DragStep{DX: rest})
	}
	return plan
}

func clampUnit(v int) int {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}

// Actuate pressiona a alça, executa o plano e solta. O release acontece
// mesmo quando um movimento falha.
func Actuate(ctx context.Context, p Pointer, handle Element, plan []DragStep, timing DragTiming, clock Clock) (err error) {
	timing = timing.withDefaults()
	if clock == nil {
		clock = RealClock()
	}

	if err := p.Press(ctx, handle); err != nil {
		return fmt.Errorf("press na alça: %w", err)
	}
	defer func() {
		if relErr := p.Release(ctx); relErr != nil && err == nil {
			err = fmt.Errorf("release: %w", relErr)
		}
	}()

	if err := clock.Sleep(ctx, timing.Settle); err != nil {
		return err
	}

	interval := timing.Duration / time.Duration(timing.Steps)
	for _, s := range plan {
		if s.DX != 0 || s.DY != 0 {
			if err := p.MoveBy(ctx, s.DX, s.DY); err != nil {
				return fmt.Errorf("move (%d,%d): %w", s.DX, s.DY, err)
			}
		}
		if err := clock.Sleep(ctx, interval); err != nil {
			return err
		}
	}
	return nil
}
