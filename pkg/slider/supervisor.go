package slider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// State é a etapa corrente de uma tentativa.
type State int

const (
	StateIdle State = iota
	StateCheckboxClicked
	StateImagesExtracted
	StateGapLocated
	StateDragging
	StateVerifying
	StateSolved
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateCheckboxClicked:
		return "CheckboxClicked"
	case StateImagesExtracted:
		return "ImagesExtracted"
	case StateGapLocated:
		return "GapLocated"
	case StateDragging:
		return "Dragging"
	case StateVerifying:
		return "Verifying"
	case StateSolved:
		return "Solved"
	case StateFailed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Settings reúne seletores, tempos e opções de uma tentativa. Zero values
// assumem os defaults do widget scaptcha.
type Settings struct {
	Selectors Selectors

	ActivationWait  time.Duration
	ValidationDelay time.Duration
	PollInterval    time.Duration
	PollCount       int
	SuccessMarkers  []string

	Drag        DragTiming
	Locator     LocatorOptions
	Calibration CalibrationOptions

	MaxAttempts int
	RetryPause  time.Duration
}

const (
	DefaultActivationWait  = 3 * time.Second
	DefaultValidationDelay = 3 * time.Second
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultPollCount       = 20
	DefaultMaxAttempts     = 2
	DefaultRetryPause      = 2 * time.Second
)

// DefaultSettings devolve a configuração completa com todos os defaults.
func DefaultSettings() Settings {
	return Settings{}.WithDefaults()
}

// WithDefaults preenche todo campo zerado.
func (s Settings) WithDefaults() Settings {
	s.Selectors = s.Selectors.withDefaults()
	if s.ActivationWait <= 0 {
		s.ActivationWait = DefaultActivationWait
	}
	if s.ValidationDelay <= 0 {
		s.ValidationDelay = DefaultValidationDelay
	}
	if s.PollInterval <= 0 {
		s.PollInterval = DefaultPollInterval
	}
	if s.PollCount <= 0 {
		s.PollCount = DefaultPollCount
	}
	if len(s.SuccessMarkers) == 0 {
		s.SuccessMarkers = []string{"verified", "success"}
	}
	s.Drag = s.Drag.withDefaults()
	s.Locator = s.Locator.withDefaults()
	s.Calibration = s.Calibration.withDefaults()
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = DefaultMaxAttempts
	}
	if s.RetryPause <= 0 {
		s.RetryPause = DefaultRetryPause
	}
	return s
}

// Supervisor conduz uma tentativa completa sobre uma página que já mostra o
// widget. É dono exclusivo da página durante a tentativa.
type Supervisor struct {
	page     Page
	pointer  Pointer
	settings Settings
	finder   GapFinder

	sink   ArtifactSink
	clock  Clock
	logger *slog.Logger
	jitter func() int
	// observer recebe cada tentativa do Solve, antes do retry decidir
	observer func(ctx context.Context, attempt int, res AttemptResult)

	attempts int
}

// Option configura o Supervisor.
type Option func(*Supervisor)

func WithClock(c Clock) Option { return func(s *Supervisor) { s.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(s *Supervisor) { s.logger = l } }

func WithArtifactSink(sink ArtifactSink) Option { return func(s *Supervisor) { s.sink = sink } }

// WithGapFinder troca o Locator local por outro GapFinder.
func WithGapFinder(f GapFinder) Option { return func(s *Supervisor) { s.finder = f } }

// WithJitter troca o desvio vertical do drag; nil desliga.
func WithJitter(j func() int) Option { return func(s *Supervisor) { s.jitter = j } }

// WithAttemptObserver registra um callback chamado após cada tentativa do Solve.
func WithAttemptObserver(fn func(ctx context.Context, attempt int, res AttemptResult)) Option {
	return func(s *Supervisor) { s.observer = fn }
}

func NewSupervisor(page Page, pointer Pointer, settings Settings, opts ...Option) *Supervisor {
	settings = settings.WithDefaults()
	s := &Supervisor{
		page:     page,
		pointer:  pointer,
		settings: settings,
		finder:   NewLocator(settings.Locator),
		clock:    RealClock(),
		jitter:   Jitter,
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = RealClock()
	}
	if s.finder == nil {
		s.finder = NewLocator(settings.Locator)
	}
	return s
}

// Settings devolve a configuração efetiva, já com defaults.
func (s *Supervisor) Settings() Settings { return s.settings }

// attempt guarda o que foi medido até agora, para o artefato e para o resultado.
type attempt struct {
	n     int
	start time.Time
	state State

	background *Raster
	piece      *Raster
	loc        *GapLocation
	ratio      float64
	drag       int
}

func (s *Supervisor) transition(a *attempt, next State, args ...any) {
	s.logger.Info("[Slider] transição",
		append([]any{"attempt", a.n, "from", a.state.String(), "to", next.String()}, args...)...)
	a.state = next
}

// Attempt executa Idle → CheckboxClicked → ImagesExtracted → GapLocated →
// Dragging → Verifying → Solved|Failed. Nenhuma falha escapa como erro.
func (s *Supervisor) Attempt(ctx context.Context) AttemptResult {
	s.attempts++
	a := &attempt{n: s.attempts, start: s.clock.Now(), state: StateIdle}

	res := s.run(ctx, a)
	if res.Success {
		s.transition(a, StateSolved, "gap_x", res.GapX, "drag", res.DragDistance, "elapsed", res.Elapsed)
	} else {
		s.transition(a, StateFailed, "kind", res.Kind().String(), "error", res.Err.Error())
	}
	s.saveArtifact(ctx, a, res.Success)
	return res
}

func (s *Supervisor) elapsed(a *attempt) time.Duration {
	return s.clock.Now().Sub(a.start)
}

func (s *Supervisor) run(ctx context.Context, a *attempt) AttemptResult {
	sel := s.settings.Selectors

	activation, used, err := FirstMatch(ctx, s.page, sel.Activation)
	if err != nil {
		return Failed(KindElementNotFound, "checkbox de ativação", err, s.elapsed(a))
	}
	if err := activation.Click(ctx); err != nil {
		return Failed(kindOf(err, KindActuation), "click no checkbox", err, s.elapsed(a))
	}
	s.transition(a, StateCheckboxClicked, "selector", used)

	if err := s.clock.Sleep(ctx, s.settings.ActivationWait); err != nil {
		return Failed(KindActuation, "espera pós-ativação", err, s.elapsed(a))
	}

	bg, err := s.extract(ctx, sel.Background)
	if err != nil {
		return Failed(kindOf(err, KindExtraction), "imagem de fundo", err, s.elapsed(a))
	}
	pieceEl, _, err := FirstMatch(ctx, s.page, sel.Piece)
	if err != nil {
		return Failed(KindElementNotFound, "peça do puzzle", err, s.elapsed(a))
	}
	piece, err := extractFrom(ctx, pieceEl)
	if err != nil {
		return Failed(kindOf(err, KindExtraction), "peça do puzzle", err, s.elapsed(a))
	}
	a.background, a.piece = bg, piece
	s.transition(a, StateImagesExtracted,
		"bg", fmt.Sprintf("%dx%d", bg.Width(), bg.Height()),
		"piece", fmt.Sprintf("%dx%d", piece.Width(), piece.Height()),
		"piece_alpha", piece.HasAlpha())

	geo := s.measure(ctx, bg, piece, pieceEl)
	ratio, fallback, err := ScaleRatio(geo, s.settings.Calibration)
	if err != nil {
		return Failed(KindGeometry, "scale ratio", err, s.elapsed(a))
	}
	a.ratio = ratio
	if fallback {
		s.logger.Warn("[Slider] trilho/alça sem medida, usando ratio de fallback",
			"image_width", geo.ImageWidth, "ratio", ratio)
	}

	loc, err := s.finder.FindGap(ctx, bg, piece)
	if err != nil {
		if errors.Is(err, ErrLowConfidence) {
			a.loc = &loc
			return Failed(KindLowConfidence, "localização do gap", err, s.elapsed(a))
		}
		return Failed(KindLocator, "localização do gap", err, s.elapsed(a))
	}
	a.loc = &loc
	a.drag = DragDistance(loc.X, geo.PieceLeft, ratio)
	s.transition(a, StateGapLocated,
		"gap_x", loc.X, "score", loc.Score, "piece_left", geo.PieceLeft,
		"ratio", fmt.Sprintf("%.3f", ratio), "drag", a.drag)

	handle, _, err := FirstMatch(ctx, s.page, sel.Handle)
	if err != nil {
		return Failed(KindElementNotFound, "alça do slider", err, s.elapsed(a))
	}
	s.transition(a, StateDragging)
	plan := PlanDrag(a.drag, s.settings.Drag.Steps, s.jitter)
	if err := Actuate(ctx, s.pointer, handle, plan, s.settings.Drag, s.clock); err != nil {
		return Failed(KindActuation, "drag", err, s.elapsed(a))
	}

	if err := s.clock.Sleep(ctx, s.settings.ValidationDelay); err != nil {
		return FailedAfterDrag(KindVerificationTimeout, "espera de validação: "+err.Error(), loc.X, a.drag, loc.Score, s.elapsed(a))
	}
	s.transition(a, StateVerifying)

	solved, pollElapsed, err := s.Verify(ctx, activation)
	if err != nil {
		return FailedAfterDrag(KindVerificationTimeout, "verificação: "+err.Error(), loc.X, a.drag, loc.Score, s.elapsed(a))
	}
	if !solved {
		msg := fmt.Sprintf("widget ainda presente após %d polls (%s)", s.settings.PollCount, pollElapsed)
		return FailedAfterDrag(KindVerificationTimeout, msg, loc.X, a.drag, loc.Score, s.elapsed(a))
	}
	return Solved(loc.X, a.drag, loc.Score, s.elapsed(a))
}

func (s *Supervisor) extract(ctx context.Context, candidates []string) (*Raster, error) {
	el, _, err := FirstMatch(ctx, s.page, candidates)
	if err != nil {
		return nil, err
	}
	return extractFrom(ctx, el)
}

func extractFrom(ctx context.Context, el Element) (*Raster, error) {
	style, err := el.ComputedStyle(ctx, "background-image")
	if err != nil {
		return nil, err
	}
	return ExtractFromStyle(style)
}

// measure lê trilho, alça e left da peça. Qualquer leitura falha aqui é
// recuperada localmente (fallback de ratio, left 0).
func (s *Supervisor) measure(ctx context.Context, bg, piece *Raster, pieceEl Element) Geometry {
	g := Geometry{ImageWidth: bg.Width(), PieceWidth: piece.Width()}

	track, handle, err := s.trackAndHandle(ctx)
	if err != nil {
		s.logger.Warn("[Slider] não foi possível medir o slider", "error", err)
	} else {
		g.TrackWidth, g.HandleWidth, g.TrackKnown = track, handle, true
	}

	left, err := pieceEl.ComputedStyle(ctx, "left")
	if err == nil {
		g.PieceLeft, err = ParsePixels(left)
	}
	if err != nil {
		s.logger.Warn("[Slider] left da peça ilegível, assumindo 0", "error", err)
		g.PieceLeft = 0
	}
	return g
}

func (s *Supervisor) trackAndHandle(ctx context.Context) (int, int, error) {
	trackEl, _, err := FirstMatch(ctx, s.page, s.settings.Selectors.Track)
	if err != nil {
		return 0, 0, err
	}
	trackSize, err := trackEl.Size(ctx)
	if err != nil {
		return 0, 0, err
	}
	handleEl, _, err := FirstMatch(ctx, s.page, s.settings.Selectors.Handle)
	if err != nil {
		return 0, 0, err
	}
	handleSize, err := handleEl.Size(ctx)
	if err != nil {
		return 0, 0, err
	}
	return int(trackSize.W), int(handleSize.W), nil
}

func (s *Supervisor) saveArtifact(ctx context.Context, a *attempt, solved bool) {
	if s.sink == nil || a.background == nil {
		return
	}
	art := Artifact{
		Attempt:    a.n,
		Background: a.background,
		Piece:      a.piece,
		Ratio:      a.ratio,
		Drag:       a.drag,
		Solved:     solved,
	}
	if a.loc != nil {
		art.Debug = a.loc.Debug
		art.GapX = a.loc.X
		art.Score = a.loc.Score
	}
	if err := s.sink.SaveArtifact(ctx, art); err != nil {
		s.logger.Warn("[Slider] falha ao salvar artefato de debug", "attempt", a.n, "error", err)
	}
}

// kindOf mapeia elemento sumido para ElementNotFound; o resto fica com def.
func kindOf(err error, def ErrorKind) ErrorKind {
	if errors.Is(err, ErrElementNotFound) || errors.Is(err, ErrStaleElement) {
		return KindElementNotFound
	}
	return def
}
