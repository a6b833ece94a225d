package handler

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/YannKr/imgrestore/internal/config"
	"github.com/YannKr/imgrestore/internal/diskstat"
)

type Handler struct {
	DB        *sql.DB
	Cfg       *config.Config
	DiskCache *diskstat.Cache

	// results maps an image digest plus parameter key to the run that
	// produced it.
	results *lru.Cache[string, string]
}

func New(database *sql.DB, cfg *config.Config) (*Handler, error) {
	size := cfg.CacheSize
	if size < 1 {
		size = 1
	}
	results, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("result cache: %w", err)
	}
	return &Handler{DB: database, Cfg: cfg, results: results}, nil
}

// diskLow reports whether the data directory is too full to store new runs.
func (h *Handler) diskLow() bool {
	return h.DiskCache != nil && h.DiskCache.Get().Low(h.Cfg.MinFreePct)
}

func (h *Handler) runDir(id string) string {
	return filepath.Join(h.Cfg.DataDir, "runs", id)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func jsonOK(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
