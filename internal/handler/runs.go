package handler

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/YannKr/imgrestore/internal/db"
	"github.com/YannKr/imgrestore/internal/metrics"
	"github.com/YannKr/imgrestore/internal/model"
	"github.com/YannKr/imgrestore/internal/pipeline"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type stageResponse struct {
	Name  string         `json:"name"`
	URL   string         `json:"url"`
	Score *metrics.Score `json:"score,omitempty"`
}

type runResponse struct {
	ID         string          `json:"id"`
	SourceName string          `json:"source_name"`
	Digest     string          `json:"digest"`
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	Wavelet    string          `json:"wavelet"`
	Level      int             `json:"level"`
	Sigma      float64         `json:"sigma"`
	Threshold  float64         `json:"threshold"`
	ElapsedMS  int64           `json:"elapsed_ms"`
	CreatedAt  string          `json:"created_at"`
	Cached     bool            `json:"cached,omitempty"`
	Stages     []stageResponse `json:"stages,omitempty"`
	SheetURL   string          `json:"sheet_url,omitempty"`
}

func stageURL(id, stage string) string {
	return "/api/v1/runs/" + id + "/stages/" + stage + ".png"
}

func runSummary(run *model.Run) runResponse {
	return runResponse{
		ID:         run.ID,
		SourceName: run.SourceName,
		Digest:     run.Digest,
		Width:      run.Width,
		Height:     run.Height,
		Wavelet:    run.Wavelet,
		Level:      run.Level,
		Sigma:      run.Sigma,
		Threshold:  run.Threshold,
		ElapsedMS:  run.ElapsedMS,
		CreatedAt:  run.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func newRunResponse(run *model.Run) runResponse {
	resp := runSummary(run)
	for _, name := range pipeline.StageNames() {
		st := stageResponse{Name: name, URL: stageURL(run.ID, name)}
		if s, ok := run.Score(name); ok {
			st.Score = &metrics.Score{PSNR: s.PSNR, SSIM: s.SSIM}
		}
		resp.Stages = append(resp.Stages, st)
	}
	resp.SheetURL = stageURL(run.ID, SheetStage)
	return resp
}

// RunList handles GET /api/v1/runs?limit=N.
func (h *Handler) RunList(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			jsonError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxListLimit)
	}
	runs, err := db.ListRuns(h.DB, limit)
	if err != nil {
		slog.Error("list runs", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	out := make([]runResponse, 0, len(runs))
	for i := range runs {
		out = append(out, runSummary(&runs[i]))
	}
	jsonOK(w, map[string]interface{}{"runs": out})
}

// RunGet handles GET /api/v1/runs/{id}.
func (h *Handler) RunGet(w http.ResponseWriter, r *http.Request) {
	run, err := db.GetRun(h.DB, chi.URLParam(r, "id"))
	if err != nil {
		slog.Error("get run", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if run == nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	jsonOK(w, newRunResponse(run))
}

// RunStageImage handles GET /api/v1/runs/{id}/stages/{stage}.png.
func (h *Handler) RunStageImage(w http.ResponseWriter, r *http.Request) {
	stage := chi.URLParam(r, "stage")
	if stage != SheetStage && !slices.Contains(pipeline.StageNames(), stage) {
		jsonError(w, "unknown stage", http.StatusNotFound)
		return
	}
	run, err := db.GetRun(h.DB, chi.URLParam(r, "id"))
	if err != nil {
		slog.Error("get run", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if run == nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	path := filepath.Join(h.runDir(run.ID), stage+".png")
	if _, err := os.Stat(path); err != nil {
		jsonError(w, "stage image expired", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeFile(w, r, path)
}
