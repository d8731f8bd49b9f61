package slider

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrElementNotFound indica que nenhum seletor candidato encontrou o elemento
	ErrElementNotFound = errors.New("elemento do captcha não encontrado")
	// ErrStaleElement indica que o elemento foi removido da página depois de localizado
	ErrStaleElement = errors.New("elemento não está mais anexado ao DOM")
	// ErrLowConfidence indica que o melhor match ficou abaixo do score mínimo configurado
	ErrLowConfidence = errors.New("match do gap abaixo da confiança mínima")
	// ErrPieceTooLarge indica que a peça não cabe dentro do background
	ErrPieceTooLarge = errors.New("peça maior que o background")
	// ErrDegenerateGeometry indica larguras que tornam o scale ratio indefinido
	ErrDegenerateGeometry = errors.New("geometria degenerada: largura útil da imagem <= 0")
)

// ErrorKind classifica a causa de uma tentativa falha.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindElementNotFound
	KindExtraction
	KindLocator
	KindGeometry
	KindActuation
	KindVerificationTimeout
	KindLowConfidence
)

func (k ErrorKind) String() string {
	switch k {
	case KindElementNotFound:
		return "ElementNotFound"
	case KindExtraction:
		return "ExtractionError"
	case KindLocator:
		return "LocatorError"
	case KindGeometry:
		return "GeometryError"
	case KindActuation:
		return "ActuationError"
	case KindVerificationTimeout:
		return "VerificationTimeout"
	case KindLowConfidence:
		return "LowConfidence"
	default:
		return "None"
	}
}

// AttemptError é a variante de falha de um AttemptResult.
type AttemptError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *AttemptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// AttemptResult é o valor terminal de uma tentativa. Só é criado por Solved ou
// Failed e nunca é alterado depois; WithAttempts devolve uma cópia.
type AttemptResult struct {
	Success      bool
	GapX         int
	DragDistance int
	Score        float64
	Elapsed      time.Duration
	Attempts     int
	Err          *AttemptError

	measured bool
}

// Solved constrói o resultado de sucesso com as medições da tentativa.
func Solved(gapX, dragDistance int, score float64, elapsed time.Duration) AttemptResult {
	return AttemptResult{
		Success:      true,
		GapX:         gapX,
		DragDistance: dragDistance,
		Score:        score,
		Elapsed:      elapsed,
		measured:     true,
	}
}

// Failed constrói um resultado de falha sem medições (falha antes do drag).
func Failed(kind ErrorKind, msg string, err error, elapsed time.Duration) AttemptResult {
	return AttemptResult{
		Elapsed: elapsed,
		Err:     &AttemptError{Kind: kind, Msg: msg, Err: err},
	}
}

// FailedAfterDrag mantém gap e distância para diagnóstico quando o drag
// aconteceu mas a verificação não confirmou.
func FailedAfterDrag(kind ErrorKind, msg string, gapX, dragDistance int, score float64, elapsed time.Duration) AttemptResult {
	r := Failed(kind, msg, nil, elapsed)
	r.GapX = gapX
	r.DragDistance = dragDistance
	r.Score = score
	r.measured = true
	return r
}

// Measured informa se gap_x e drag_distance fazem parte do resultado.
func (r AttemptResult) Measured() bool { return r.measured }

// WithAttempts devolve uma cópia com o número de tentativas usadas.
func (r AttemptResult) WithAttempts(n int) AttemptResult {
	r.Attempts = n
	return r
}

// Kind devolve a classe do erro, ou KindNone para sucesso.
func (r AttemptResult) Kind() ErrorKind {
	if r.Err == nil {
		return KindNone
	}
	return r.Err.Kind
}

type resultWire struct {
	Success      bool     `json:"success"`
	GapX         *int     `json:"gap_x,omitempty"`
	DragDistance *int     `json:"drag_distance,omitempty"`
	TimeTaken    *float64 `json:"time_taken,omitempty"`
	Attempts     *int     `json:"attempts,omitempty"`
	Error        string   `json:"error,omitempty"`
	ErrorKind    string   `json:"error_kind,omitempty"`
}

// MarshalJSON segue o contrato {success, gap_x?, drag_distance?, time_taken?, attempts?, error?}.
func (r AttemptResult) MarshalJSON() ([]byte, error) {
	w := resultWire{Success: r.Success}
	if r.measured {
		gap, dist := r.GapX, r.DragDistance
		w.GapX = &gap
		w.DragDistance = &dist
		secs := math.Round(r.Elapsed.Seconds()*100) / 100
		w.TimeTaken = &secs
	}
	if r.Attempts > 0 {
		n := r.Attempts
		w.Attempts = &n
	}
	if r.Err != nil {
		w.Error = r.Err.Error()
		w.ErrorKind = r.Err.Kind.String()
	}
	return json.Marshal(w)
}
