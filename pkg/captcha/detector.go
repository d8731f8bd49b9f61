package captcha

import (
	"context"
	"errors"
	"time"

	"github.com/go-rod/rod"
)

// Kind é o tipo de captcha presente na página.
type Kind int

const (
	KindUnknown Kind = iota
	KindSlider
	KindRecaptcha
)

func (k Kind) String() string {
	switch k {
	case KindSlider:
		return "slider"
	case KindRecaptcha:
		return "recaptcha"
	default:
		return "unknown"
	}
}

// ErrNoCaptcha indica que nenhum widget conhecido apareceu dentro do prazo.
var ErrNoCaptcha = errors.New("nenhum captcha detectado na página")

var (
	SliderSelectors = []string{
		".scaptcha-container",
		".scaptcha-anchor-checkbox",
		".scaptcha-card-container",
	}
	RecaptchaSelectors = []string{
		".g-recaptcha",
		"iframe[src*='recaptcha']",
	}
)

// Querier é a consulta instantânea de presença; *rod.Page satisfaz.
type Querier interface {
	Has(selector string) (bool, *rod.Element, error)
}

// Detect olha a página uma vez. O slider tem prioridade sobre o reCAPTCHA.
func Detect(q Querier) Kind {
	if anyPresent(q, SliderSelectors) {
		return KindSlider
	}
	if anyPresent(q, RecaptchaSelectors) {
		return KindRecaptcha
	}
	return KindUnknown
}

func anyPresent(q Querier, selectors []string) bool {
	for _, sel := range selectors {
		if ok, _, err := q.Has(sel); err == nil && ok {
			return true
		}
	}
	return false
}

// WaitForCaptcha faz polling até algum widget aparecer ou o timeout estourar.
func WaitForCaptcha(ctx context.Context, q Querier, timeout, interval time.Duration) (Kind, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if k := Detect(q); k != KindUnknown {
			return k, nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return KindUnknown, ErrNoCaptcha
			}
			return KindUnknown, ctx.Err()
		case <-ticker.C:
		}
	}
}
