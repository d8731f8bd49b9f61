package slider

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Verify faz polling até o widget sumir ou o checkbox ganhar um marcador de
// sucesso. Devolve o tempo gasto no polling; só devolve erro quando o ctx é
// cancelado.
func (s *Supervisor) Verify(ctx context.Context, activation Element) (bool, time.Duration, error) {
	start := s.clock.Now()
	for i := 0; i < s.settings.PollCount; i++ {
		solved, reason, err := s.poll(ctx, activation)
		if err != nil {
			return false, s.clock.Now().Sub(start), err
		}
		if solved {
			elapsed := s.clock.Now().Sub(start)
			s.logger.Info("[Slider] captcha resolvido", "reason", reason, "poll", i, "elapsed", elapsed)
			return true, elapsed, nil
		}
		if err := s.clock.Sleep(ctx, s.settings.PollInterval); err != nil {
			return false, s.clock.Now().Sub(start), err
		}
	}
	return false, s.clock.Now().Sub(start), nil
}

func (s *Supervisor) poll(ctx context.Context, activation Element) (bool, string, error) {
	container, _, err := FirstMatch(ctx, s.page, s.settings.Selectors.Container)
	switch {
	case err == nil:
		visible, vErr := container.Visible(ctx)
		switch {
		case vErr == nil && !visible:
			return true, "container oculto", nil
		case vErr == nil:
		case ctx.Err() != nil:
			return false, "", ctx.Err()
		case errors.Is(vErr, ErrStaleElement):
			// nó destacado do DOM: o widget foi removido
			return true, "container stale", nil
		default:
			// erro de transporte não prova nada; segue para o checkbox
			s.logger.Warn("[Slider] visibilidade do container falhou", "error", vErr)
		}
	case errors.Is(err, ErrElementNotFound):
		return true, "container removido", nil
	case ctx.Err() != nil:
		return false, "", ctx.Err()
	default:
		s.logger.Debug("[Slider] lookup do container falhou", "error", err)
	}

	if activation == nil {
		return false, "", nil
	}
	class, err := activation.Attribute(ctx, "class")
	if err != nil {
		return false, "", nil
	}
	for _, m := range s.settings.SuccessMarkers {
		if strings.Contains(class, m) {
			return true, "checkbox " + m, nil
		}
	}
	return false, "", nil
}
