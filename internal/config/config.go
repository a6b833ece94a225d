package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/YannKr/imgrestore/internal/denoise"
	"github.com/YannKr/imgrestore/internal/enhance"
	"github.com/YannKr/imgrestore/internal/nlmeans"
	"github.com/YannKr/imgrestore/internal/pipeline"
)

type Config struct {
	ListenAddr     string
	DataDir        string
	LogLevel       string
	MaxUploadBytes int64
	CacheSize      int
	MinFreePct     float64

	Wavelet           string
	WaveletLevel      int
	NLMStrength       float64
	NLMTemplateWindow int
	NLMSearchWindow   int
	Gamma             float64
	CLAHEClip         float64
	CLAHETiles        int

	RetentionHours      int
	CleanupIntervalMins int
}

func Load() *Config {
	nlm := nlmeans.DefaultParams()
	return &Config{
		ListenAddr:     envOr("LISTEN_ADDR", ":8080"),
		DataDir:        envOr("DATA_DIR", "./data"),
		LogLevel:       envOr("LOG_LEVEL", "info"),
		MaxUploadBytes: envInt64Or("MAX_UPLOAD_BYTES", 32*1024*1024),
		CacheSize:      envIntOr("CACHE_SIZE", 64),
		MinFreePct:     envFloatOr("MIN_FREE_PCT", 1),

		Wavelet:           envOr("WAVELET", denoise.DefaultWavelet),
		WaveletLevel:      envIntOr("WAVELET_LEVEL", denoise.DefaultLevel),
		NLMStrength:       envFloatOr("NLM_STRENGTH", nlm.H),
		NLMTemplateWindow: envIntOr("NLM_TEMPLATE_WINDOW", nlm.TemplateWindow),
		NLMSearchWindow:   envIntOr("NLM_SEARCH_WINDOW", nlm.SearchWindow),
		Gamma:             envFloatOr("GAMMA", enhance.DefaultGamma),
		CLAHEClip:         envFloatOr("CLAHE_CLIP", enhance.DefaultClipLimit),
		CLAHETiles:        envIntOr("CLAHE_TILES", enhance.DefaultTiles),

		RetentionHours:      envIntOr("RETENTION_HOURS", 72),
		CleanupIntervalMins: envIntOr("CLEANUP_INTERVAL_MINS", 30),
	}
}

// Params returns the pipeline parameters configured through the environment.
func (c *Config) Params() pipeline.Params {
	p := pipeline.DefaultParams()
	p.Denoise = denoise.Options{Wavelet: c.Wavelet, Level: c.WaveletLevel}
	p.NLM = nlmeans.Params{H: c.NLMStrength, TemplateWindow: c.NLMTemplateWindow, SearchWindow: c.NLMSearchWindow}
	p.Gamma = c.Gamma
	p.ClipLimit = c.CLAHEClip
	p.Tiles = c.CLAHETiles
	return p
}

func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMins) * time.Minute
}

// ParseLevel maps LOG_LEVEL values to slog levels, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64Or(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
