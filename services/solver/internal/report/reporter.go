package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/loviiin/scaptcha/pkg/slider"
)

// Publisher é o pedaço do JetStream usado aqui; nats.JetStreamContext satisfaz.
type Publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Recorder é o journal no Redis.
type Recorder interface {
	RecordAttempt(ctx context.Context, runID string, run, attempt int, res slider.AttemptResult) error
	Record(ctx context.Context, runID string, run int, res slider.AttemptResult) error
}

// Store é o histórico no Postgres, uma linha por tentativa.
type Store interface {
	Save(ctx context.Context, runID string, run, attempt int, res slider.AttemptResult) (string, error)
}

// Event é o que sai em captcha.slider.result.
type Event struct {
	RunID     string               `json:"run_id"`
	Run       int                  `json:"run"`
	Result    slider.AttemptResult `json:"result"`
	Timestamp string               `json:"timestamp"`
}

// Reporter distribui cada resultado final para os destinos configurados.
// Qualquer destino pode ser nil; falhas são logadas e não interrompem o loop.
type Reporter struct {
	pub     Publisher
	subject string
	rec     Recorder
	store   Store
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	runs   int
	solved int
}

func NewReporter(pub Publisher, subject string, rec Recorder, store Store, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{pub: pub, subject: subject, rec: rec, store: store, logger: logger, now: time.Now}
}

// ReportAttempt registra uma tentativa individual do retry no journal e no
// histórico. É o callback do slider.WithAttemptObserver.
func (r *Reporter) ReportAttempt(ctx context.Context, runID string, run, attempt int, res slider.AttemptResult) {
	if r.rec != nil {
		if err := r.rec.RecordAttempt(ctx, runID, run, attempt, res); err != nil {
			r.logger.Warn("[Report] erro no journal", "run_id", runID, "run", run, "attempt", attempt, "error", err)
		}
	}
	if r.store != nil {
		id, err := r.store.Save(ctx, runID, run, attempt, res)
		if err != nil {
			r.logger.Warn("[Report] erro salvando no postgres", "run_id", runID, "error", err)
		} else {
			r.logger.Debug("[Report] tentativa salva", "id", id)
		}
	}
}

// Report registra o resultado de uma execução completa (retry incluído).
func (r *Reporter) Report(ctx context.Context, runID string, run int, res slider.AttemptResult) {
	r.mu.Lock()
	r.runs++
	if res.Success {
		r.solved++
	}
	r.mu.Unlock()

	if r.rec != nil {
		if err := r.rec.Record(ctx, runID, run, res); err != nil {
			r.logger.Warn("[Report] erro no journal", "run_id", runID, "error", err)
		}
	}

	if r.pub != nil {
		if err := r.publish(runID, run, res); err != nil {
			r.logger.Warn("[Report] erro publicando resultado", "subject", r.subject, "error", err)
		}
	}
}

func (r *Reporter) publish(runID string, run int, res slider.AttemptResult) error {
	data, err := json.Marshal(Event{
		RunID:     runID,
		Run:       run,
		Result:    res,
		Timestamp: r.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("erro serializando evento: %w", err)
	}
	_, err = r.pub.Publish(r.subject, data, nats.MsgId(fmt.Sprintf("%s-%d", runID, run)))
	return err
}

// Summary devolve execuções, sucessos e a taxa de sucesso.
func (r *Reporter) Summary() (runs, solved int, rate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runs > 0 {
		rate = float64(r.solved) / float64(r.runs)
	}
	return r.runs, r.solved, rate
}
