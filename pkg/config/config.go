package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/loviiin/scaptcha/pkg/slider"
)

// Config representa a estrutura completa do config.yaml
type Config struct {
	App struct {
		Env string `yaml:"env"`
		// Runs repete o solve completo (com retry) N vezes e loga a taxa de sucesso
		Runs int `yaml:"runs"`
	} `yaml:"app"`

	Target struct {
		URL        string `yaml:"url"`
		LoadWaitMS int    `yaml:"load_wait_ms"`
	} `yaml:"target"`

	Browser struct {
		Headless    bool   `yaml:"headless"`
		Bin         string `yaml:"bin"`
		StateDir    string `yaml:"state_dir"`
		MonitorPort string `yaml:"monitor_port"`
		Stealth     bool   `yaml:"stealth"`
		Width       int    `yaml:"width"`
		Height      int    `yaml:"height"`
	} `yaml:"browser"`

	Captcha Captcha `yaml:"captcha"`

	// Amostras de debug (fundo, peça, match anotado, label)
	Dataset struct {
		Enabled        bool   `yaml:"enabled"`
		Path           string `yaml:"path"`
		RetentionHours int    `yaml:"retention_hours"`
		SweepMinutes   int    `yaml:"sweep_minutes"`
	} `yaml:"dataset"`

	// Infraestrutura Compartilhada
	Nats struct {
		URL           string `yaml:"url"`
		Subject       string `yaml:"subject"`
		ResultSubject string `yaml:"result_subject"`
		TimeoutMS     int    `yaml:"timeout_ms"`
		// RemoteLocator manda o template matching para o serviço locator
		RemoteLocator bool `yaml:"remote_locator"`
	} `yaml:"nats"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTLHours int    `yaml:"ttl_hours"`
	} `yaml:"redis"`

	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`

	Metrics struct {
		Port string `yaml:"port"`
	} `yaml:"metrics"`

	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
}

// Captcha espelha slider.Settings em unidades amigáveis ao YAML (ms).
type Captcha struct {
	Selectors struct {
		Activation []string `yaml:"activation"`
		Background []string `yaml:"background"`
		Piece      []string `yaml:"piece"`
		Track      []string `yaml:"track"`
		Handle     []string `yaml:"handle"`
		Container  []string `yaml:"container"`
	} `yaml:"selectors"`

	ActivationWaitMS  int `yaml:"activation_wait_ms"`
	ValidationDelayMS int `yaml:"validation_delay_ms"`

	Verify struct {
		PollIntervalMS int      `yaml:"poll_interval_ms"`
		Polls          int      `yaml:"polls"`
		SuccessMarkers []string `yaml:"success_markers"`
	} `yaml:"verify"`

	Drag struct {
		Steps      int `yaml:"steps"`
		DurationMS int `yaml:"duration_ms"`
		SettleMS   int `yaml:"settle_ms"`
	} `yaml:"drag"`

	Calibration struct {
		SmallImageWidth int     `yaml:"small_image_width"`
		FallbackRatio   float64 `yaml:"fallback_ratio"`
	} `yaml:"calibration"`

	Locator struct {
		CannyLow         float64 `yaml:"canny_low"`
		CannyHigh        float64 `yaml:"canny_high"`
		ExclusionColumns int     `yaml:"exclusion_columns"`
		MinScore         float64 `yaml:"min_score"`
	} `yaml:"locator"`

	Retry struct {
		MaxAttempts int `yaml:"max_attempts"`
		PauseMS     int `yaml:"pause_ms"`
	} `yaml:"retry"`
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// Settings converte a seção captcha; campos ausentes ficam com os defaults do slider.
func (c Captcha) Settings() slider.Settings {
	s := slider.Settings{
		Selectors: slider.Selectors{
			Activation: c.Selectors.Activation,
			Background: c.Selectors.Background,
			Piece:      c.Selectors.Piece,
			Track:      c.Selectors.Track,
			Handle:     c.Selectors.Handle,
			Container:  c.Selectors.Container,
		},
		ActivationWait:  ms(c.ActivationWaitMS),
		ValidationDelay: ms(c.ValidationDelayMS),
		PollInterval:    ms(c.Verify.PollIntervalMS),
		PollCount:       c.Verify.Polls,
		SuccessMarkers:  c.Verify.SuccessMarkers,
		Drag: slider.DragTiming{
			Steps:    c.Drag.Steps,
			Duration: ms(c.Drag.DurationMS),
			Settle:   ms(c.Drag.SettleMS),
		},
		Locator: slider.LocatorOptions{
			CannyLow:         c.Locator.CannyLow,
			CannyHigh:        c.Locator.CannyHigh,
			ExclusionColumns: c.Locator.ExclusionColumns,
			MinScore:         c.Locator.MinScore,
		},
		Calibration: slider.CalibrationOptions{
			SmallImageWidth: c.Calibration.SmallImageWidth,
			FallbackRatio:   c.Calibration.FallbackRatio,
		},
		MaxAttempts: c.Retry.MaxAttempts,
		RetryPause:  ms(c.Retry.PauseMS),
	}
	return s.WithDefaults()
}

// applyDefaults preenche o que não é do slider.
func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.Runs <= 0 {
		c.App.Runs = 1
	}
	if c.Target.URL == "" {
		c.Target.URL = "http://localhost:3000"
	}
	if c.Target.LoadWaitMS <= 0 {
		c.Target.LoadWaitMS = 2000
	}
	if c.Browser.StateDir == "" {
		c.Browser.StateDir = filepath.Join(os.TempDir(), "scaptcha_profile_default")
	}
	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		c.Browser.Width, c.Browser.Height = 1366, 900
	}
	if c.Dataset.Path == "" {
		c.Dataset.Path = "debug_slider"
	}
	if c.Dataset.RetentionHours <= 0 {
		c.Dataset.RetentionHours = 72
	}
	if c.Dataset.SweepMinutes <= 0 {
		c.Dataset.SweepMinutes = 30
	}
	if c.Nats.Subject == "" {
		c.Nats.Subject = "jobs.captcha.slider"
	}
	if c.Nats.ResultSubject == "" {
		c.Nats.ResultSubject = "captcha.slider.result"
	}
	if c.Nats.TimeoutMS <= 0 {
		c.Nats.TimeoutMS = 30000
	}
	if c.Redis.TTLHours <= 0 {
		c.Redis.TTLHours = 48
	}
	if c.Metrics.Port == "" {
		c.Metrics.Port = ":9102"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Load lê um arquivo YAML específico. Arquivo inexistente devolve só os defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Warn("[Config] arquivo não encontrado, usando defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("erro abrindo config %s: %w", path, err)
	default:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("erro ao decodificar YAML: %w", err)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Locate acha o config.yaml: CONFIG_PATH primeiro, depois subindo pastas
// (útil quando rodamos 'go run' de dentro de services/*).
func Locate() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	for _, candidate := range []string{
		"config.yaml",
		"config/config.yaml",
		"../../config/config.yaml",
	} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return "config/config.yaml"
}

// LoadConfig carrega o config padrão do serviço e aborta em YAML inválido.
func LoadConfig() *Config {
	path := Locate()
	absPath, _ := filepath.Abs(path)
	slog.Info("[Config] carregando config", "path", absPath)

	cfg, err := Load(path)
	if err != nil {
		slog.Error("[Config] erro fatal lendo config", "error", err)
		os.Exit(1)
	}
	return cfg
}
