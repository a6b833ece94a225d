package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/YannKr/imgrestore/internal/db"
	"github.com/YannKr/imgrestore/internal/denoise"
	"github.com/YannKr/imgrestore/internal/enhance"
	"github.com/YannKr/imgrestore/internal/imageio"
	"github.com/YannKr/imgrestore/internal/metrics"
	"github.com/YannKr/imgrestore/internal/model"
	"github.com/YannKr/imgrestore/internal/montage"
	"github.com/YannKr/imgrestore/internal/nlmeans"
	"github.com/YannKr/imgrestore/internal/pipeline"
	"github.com/YannKr/imgrestore/internal/wavelet"
)

// SheetStage names the contact sheet stored next to the stage images.
const SheetStage = "sheet"

const multipartMemory = 8 << 20

// Restore handles POST /api/v1/restore. The multipart form carries the image
// as "file" plus optional overrides: wavelet, level, nlm_h, gamma,
// noise_sigma and noise_seed.
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.Cfg.MaxUploadBytes {
		jsonError(w, "upload too large", http.StatusRequestEntityTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.Cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, "upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	img, err := imageio.Decode(file)
	if err != nil {
		jsonError(w, "cannot decode image", http.StatusBadRequest)
		return
	}

	params, err := h.formParams(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	digest := imageio.Digest(img)
	pkey := params.Key()
	if run := h.cachedRun(digest, pkey); run != nil {
		slog.Debug("restore cache hit", "run", run.ID, "digest", digest)
		resp := newRunResponse(run)
		resp.Cached = true
		jsonOK(w, resp)
		return
	}
	if h.diskLow() {
		slog.Warn("restore: refusing new run, disk space low", "min_free_pct", h.Cfg.MinFreePct)
		jsonError(w, "insufficient storage", http.StatusInsufficientStorage)
		return
	}

	report, err := pipeline.Run(r.Context(), img, params)
	if err != nil {
		if isInputError(err) {
			jsonError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		slog.Error("restore: pipeline", "error", err)
		jsonError(w, "restoration failed", http.StatusInternalServerError)
		return
	}

	run := report.Record(uuid.New().String(), filepath.Base(header.Filename), digest, pkey)

	if err := h.writeStages(run.ID, report); err != nil {
		slog.Error("restore: write stages", "run", run.ID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := db.InsertRun(h.DB, run); err != nil {
		os.RemoveAll(h.runDir(run.ID))
		slog.Error("restore: insert run", "run", run.ID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.results.Add(digest+":"+pkey, run.ID)

	slog.Info("restore complete", "run", run.ID, "source", run.SourceName,
		"width", run.Width, "height", run.Height, "elapsed_ms", run.ElapsedMS)
	jsonOK(w, newRunResponse(run))
}

// cachedRun returns an earlier run of the same image and parameters whose
// stage images are still on disk.
func (h *Handler) cachedRun(digest, pkey string) *model.Run {
	key := digest + ":" + pkey
	var run *model.Run
	var err error
	if id, ok := h.results.Get(key); ok {
		run, err = db.GetRun(h.DB, id)
	} else {
		run, err = db.FindRunByDigest(h.DB, digest, pkey)
	}
	if err != nil {
		slog.Warn("restore: cache lookup", "error", err)
		return nil
	}
	if run == nil {
		h.results.Remove(key)
		return nil
	}
	if _, err := os.Stat(h.runDir(run.ID)); err != nil {
		h.results.Remove(key)
		return nil
	}
	h.results.Add(key, run.ID)
	return run
}

func (h *Handler) writeStages(id string, report *pipeline.Report) error {
	dir := h.runDir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, s := range report.Stages {
		if err := imageio.Save(filepath.Join(dir, s.Name+".png"), s.Image); err != nil {
			os.RemoveAll(dir)
			return fmt.Errorf("save %s: %w", s.Name, err)
		}
	}
	sheet := montage.Sheet(report.Panels(), montage.DefaultCols, montage.DefaultCell)
	if err := imageio.Save(filepath.Join(dir, SheetStage+".png"), sheet); err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("save sheet: %w", err)
	}
	return nil
}

func (h *Handler) formParams(r *http.Request) (pipeline.Params, error) {
	p := h.Cfg.Params()
	if v := strings.TrimSpace(r.FormValue("wavelet")); v != "" {
		p.Denoise.Wavelet = strings.ToLower(v)
	}
	if v := r.FormValue("level"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, fmt.Errorf("invalid level %q", v)
		}
		p.Denoise.Level = n
	}
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"nlm_h", &p.NLM.H},
		{"gamma", &p.Gamma},
		{"noise_sigma", &p.NoiseSigma},
	} {
		if v := r.FormValue(f.name); v != "" {
			x, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return p, fmt.Errorf("invalid %s %q", f.name, v)
			}
			*f.dst = x
		}
	}
	if v := r.FormValue("noise_seed"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return p, fmt.Errorf("invalid noise_seed %q", v)
		}
		p.NoiseSeed = n
	}
	return p, nil
}

func isInputError(err error) bool {
	return denoise.IsInvalidShape(err) ||
		errors.Is(err, wavelet.ErrUnknownWavelet) ||
		errors.Is(err, nlmeans.ErrInvalidParams) ||
		errors.Is(err, enhance.ErrInvalidParams) ||
		errors.Is(err, metrics.ErrTooSmall)
}
