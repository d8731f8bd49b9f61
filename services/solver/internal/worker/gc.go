package worker

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loviiin/scaptcha/pkg/captcha"
)

const (
	profilePrefix    = "scaptcha_profile_"
	orphanProfileTTL = 90 * time.Minute
)

// SweeperOptions controla a limpeza periódica do disco.
type SweeperOptions struct {
	DatasetDir string
	DatasetTTL time.Duration
	// ProfileDir é onde ficam os perfis temporários do browser (os.TempDir por padrão)
	ProfileDir string
	// ActiveProfile nunca é removido, mesmo velho
	ActiveProfile string
	Interval      time.Duration
}

// StartSweeper roda até o ctx ser cancelado, removendo samples de dataset
// vencidos e perfis de browser órfãos deixados por crashes.
func StartSweeper(ctx context.Context, opts SweeperOptions, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ProfileDir == "" {
		opts.ProfileDir = os.TempDir()
	}
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Minute
	}
	logger.Info("[GC] iniciando sweeper", "dataset", opts.DatasetDir, "interval", opts.Interval)

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if opts.DatasetDir != "" && opts.DatasetTTL > 0 {
				sweepStaleSamples(opts.DatasetDir, opts.DatasetTTL, logger)
			}
			sweepOrphanProfiles(opts.ProfileDir, orphanProfileTTL, opts.ActiveProfile, logger)
		}
	}
}

// sweepStaleSamples remove arquivos do Collector mais velhos que ttl.
// Arquivos que não seguem o padrão de nome ficam intocados.
func sweepStaleSamples(dir string, ttl time.Duration, logger *slog.Logger) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("[GC] erro lendo dataset", "dir", dir, "error", err)
		}
		return 0
	}

	removed := 0
	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() || !captcha.IsSampleFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= ttl {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			logger.Warn("[GC] erro removendo sample", "path", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("[GC] samples vencidos removidos", "count", removed, "dir", dir)
	}
	return removed
}

func sweepOrphanProfiles(baseDir string, ttl time.Duration, active string, logger *slog.Logger) int {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		logger.Warn("[GC] erro lendo diretório base", "dir", baseDir, "error", err)
		return 0
	}

	removed := 0
	now := time.Now()
	activeAbs, _ := filepath.Abs(active)
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || !strings.HasPrefix(name, profilePrefix) {
			continue
		}
		fullPath := filepath.Join(baseDir, name)
		if abs, _ := filepath.Abs(fullPath); active != "" && abs == activeAbs {
			continue
		}
		info, err := entry.Info()
		if err != nil || now.Sub(info.ModTime()) <= ttl {
			continue
		}
		if err := os.RemoveAll(fullPath); err != nil {
			logger.Warn("[GC] erro removendo perfil órfão", "path", fullPath, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("[GC] 🧹 perfis órfãos removidos", "count", removed)
	}
	return removed
}
