package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/loviiin/scaptcha/pkg/slider"
)

// SliderLabel é o JSON salvo ao lado de cada sample.
type SliderLabel struct {
	ID           string  `json:"id"`
	Attempt      int     `json:"attempt"`
	GapX         int     `json:"gap_x"`
	Score        float64 `json:"score"`
	DragDistance int     `json:"drag_distance"`
	ScaleRatio   float64 `json:"scale_ratio"`
	Solved       bool    `json:"solved"`
	Timestamp    string  `json:"timestamp"`
}

var sampleFile = regexp.MustCompile(`^\d+_[0-9a-f]{8}_(bg\.png|piece\.png|match\.png|label\.json)$`)

// IsSampleFile reconhece os arquivos gerados pelo Collector.
func IsSampleFile(name string) bool {
	return sampleFile.MatchString(name)
}

// Collector grava o material de debug de cada tentativa num diretório.
// Implementa slider.ArtifactSink.
type Collector struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

func NewCollector(dir string, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{dir: dir, logger: logger, now: time.Now}
}

// SaveArtifact grava fundo, peça, match anotado e label. Se qualquer arquivo
// falhar, os já gravados são removidos.
func (c *Collector) SaveArtifact(ctx context.Context, a slider.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("erro criando diretório dataset '%s': %w", c.dir, err)
	}

	// uuid evita colisão entre tentativas no mesmo milissegundo
	id := fmt.Sprintf("%d_%s", c.now().UnixMilli(), uuid.NewString()[:8])
	var written []string
	fail := func(err error) error {
		c.cleanup(written)
		return err
	}

	write := func(suffix string, encode func(f *os.File) error) error {
		path := filepath.Join(c.dir, id+"_"+suffix)
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		written = append(written, path)
		if err := encode(f); err != nil {
			f.Close()
			return fmt.Errorf("erro salvando %s: %w", suffix, err)
		}
		return f.Close()
	}

	if a.Background != nil {
		if err := write("bg.png", func(f *os.File) error { return a.Background.Encode(f) }); err != nil {
			return fail(err)
		}
	}
	if a.Piece != nil {
		if err := write("piece.png", func(f *os.File) error { return a.Piece.Encode(f) }); err != nil {
			return fail(err)
		}
	}
	if a.Debug != nil {
		if err := write("match.png", func(f *os.File) error { return png.Encode(f, image.Image(a.Debug)) }); err != nil {
			return fail(err)
		}
	}

	label := SliderLabel{
		ID:           id,
		Attempt:      a.Attempt,
		GapX:         a.GapX,
		Score:        a.Score,
		DragDistance: a.Drag,
		ScaleRatio:   a.Ratio,
		Solved:       a.Solved,
		Timestamp:    c.now().UTC().Format(time.RFC3339),
	}
	if err := write("label.json", func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(label)
	}); err != nil {
		return fail(err)
	}

	c.logger.Info("[Shadow] sample salvo", "id", id, "gap_x", a.GapX, "solved", a.Solved, "dir", c.dir)
	return nil
}

func (c *Collector) cleanup(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("[Shadow] erro removendo arquivo", "path", p, "error", err)
		}
	}
}
