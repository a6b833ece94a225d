// Package pipeline runs the full restoration sequence on one image: wavelet
// denoising, non-local means refinement, the four enhancement operators and
// quality scoring of every stage.
package pipeline

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"github.com/YannKr/imgrestore/internal/denoise"
	"github.com/YannKr/imgrestore/internal/enhance"
	"github.com/YannKr/imgrestore/internal/imageio"
	"github.com/YannKr/imgrestore/internal/metrics"
	"github.com/YannKr/imgrestore/internal/model"
	"github.com/YannKr/imgrestore/internal/montage"
	"github.com/YannKr/imgrestore/internal/nlmeans"
)

// Stage names, in report order.
const (
	StageOriginal = "original"
	StageNoisy    = "noisy"
	StageDenoised = "denoised"
	StageEqualize = enhance.OpEqualize
	StageCLAHE    = enhance.OpCLAHE
	StageGamma    = enhance.OpGamma
	StageSharpen  = enhance.OpSharpen
)

var titles = map[string]string{
	StageOriginal: "Original",
	StageNoisy:    "Noisy",
	StageDenoised: "Final Denoised",
	StageEqualize: "Histogram Equalized",
	StageCLAHE:    "CLAHE",
	StageGamma:    "Gamma Corrected",
	StageSharpen:  "Sharpened",
}

// StageNames lists every stage Run produces, in order.
func StageNames() []string {
	return []string{StageOriginal, StageNoisy, StageDenoised, StageEqualize, StageCLAHE, StageGamma, StageSharpen}
}

// Params controls every tunable step of Run.
type Params struct {
	Denoise   denoise.Options `json:"denoise"`
	NLM       nlmeans.Params  `json:"nlm"`
	Gamma     float64         `json:"gamma"`
	ClipLimit float64         `json:"clip_limit"`
	Tiles     int             `json:"tiles"`

	// NoiseSigma > 0 adds synthetic Gaussian noise before denoising.
	NoiseSigma float64 `json:"noise_sigma"`
	NoiseSeed  uint64  `json:"noise_seed"`
}

// DefaultParams mirrors the classic configuration: db8 at depth 3, NLM
// strength 20, gamma 1.2 and an 8x8 CLAHE grid clipped at 3.
func DefaultParams() Params {
	return Params{
		Denoise:   denoise.DefaultOptions(),
		NLM:       nlmeans.DefaultParams(),
		Gamma:     enhance.DefaultGamma,
		ClipLimit: enhance.DefaultClipLimit,
		Tiles:     enhance.DefaultTiles,
	}
}

// Key fingerprints the parameters that affect the output, for matching
// repeated runs of the same image.
func (p Params) Key() string {
	p.Denoise.Wavelet = strings.ToLower(p.Denoise.Wavelet)
	if p.Denoise.Wavelet == "" {
		p.Denoise.Wavelet = denoise.DefaultWavelet
	}
	data, _ := json.Marshal(p)
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

// Stage is one intermediate or final image. Score compares it against its
// reference: the original for the denoised stage, the denoised image for
// enhancements. Original and noisy stages carry no score.
type Stage struct {
	Name  string         `json:"name"`
	Title string         `json:"title"`
	Image *image.Gray    `json:"-"`
	Score *metrics.Score `json:"score,omitempty"`
}

// Report is the outcome of one Run.
type Report struct {
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	Wavelet   string        `json:"wavelet"`
	Level     int           `json:"level"`
	Sigma     float64       `json:"sigma"`
	Threshold float64       `json:"threshold"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Stages    []Stage       `json:"stages"`
}

// Stage returns the stage with the given name.
func (r *Report) Stage(name string) (Stage, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}

// Panels returns the stages as contact-sheet panels.
func (r *Report) Panels() []montage.Panel {
	panels := make([]montage.Panel, len(r.Stages))
	for i, s := range r.Stages {
		panels[i] = montage.Panel{Title: s.Title, Image: s.Image}
	}
	return panels
}

// Record converts the report into a storable run.
func (r *Report) Record(id, source, digest, paramsKey string) *model.Run {
	run := &model.Run{
		ID:         id,
		SourceName: source,
		Digest:     digest,
		ParamsKey:  paramsKey,
		Width:      r.Width,
		Height:     r.Height,
		Wavelet:    r.Wavelet,
		Level:      r.Level,
		Sigma:      r.Sigma,
		Threshold:  r.Threshold,
		ElapsedMS:  r.Elapsed.Milliseconds(),
	}
	for _, s := range r.Stages {
		if s.Score != nil {
			run.Scores = append(run.Scores, model.StageScore{Stage: s.Name, PSNR: s.Score.PSNR, SSIM: s.Score.SSIM})
		}
	}
	return run
}

// Run restores img. The input is not modified.
func Run(ctx context.Context, img *image.Gray, p Params) (*Report, error) {
	start := time.Now()
	if img == nil || img.Bounds().Empty() {
		return nil, denoise.ErrEmptyImage
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	original := imageio.Clone(img)

	noisy := original
	if p.NoiseSigma > 0 {
		noisy = imageio.AddGaussianNoise(original, p.NoiseSigma, p.NoiseSeed)
	}

	res, err := denoise.Wavelet(noisy, p.Denoise)
	if err != nil {
		return nil, fmt.Errorf("wavelet denoise: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	refined, err := nlmeans.Denoise(res.Image, p.NLM)
	if err != nil {
		return nil, fmt.Errorf("non-local means: %w", err)
	}
	denoised := imageio.Crop(refined, w, h)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ops, err := p.operators()
	if err != nil {
		return nil, err
	}
	enhanced := make([]*image.Gray, len(ops))
	g, gctx := errgroup.WithContext(ctx)
	for i, op := range ops {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			enhanced[i] = imageio.Crop(op.fn(denoised), w, h)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		Width:     w,
		Height:    h,
		Wavelet:   res.Wavelet,
		Level:     res.Level,
		Sigma:     res.Sigma,
		Threshold: res.Threshold,
	}
	report.add(StageOriginal, original, nil)
	report.add(StageNoisy, noisy, nil)

	base, err := metrics.Compare(original, denoised)
	if err != nil {
		return nil, fmt.Errorf("score %s: %w", StageDenoised, err)
	}
	report.add(StageDenoised, denoised, &base)

	for i, op := range ops {
		sc, err := metrics.Compare(denoised, enhanced[i])
		if err != nil {
			return nil, fmt.Errorf("score %s: %w", op.name, err)
		}
		report.add(op.name, enhanced[i], &sc)
	}
	report.Elapsed = time.Since(start)

	slog.Info("pipeline finished",
		"width", w, "height", h,
		"wavelet", res.Wavelet, "level", res.Level,
		"sigma", res.Sigma, "psnr", base.PSNR, "ssim", base.SSIM,
		"elapsed", report.Elapsed)
	return report, nil
}

type namedOp struct {
	name string
	fn   enhance.Operator
}

func (p Params) operators() ([]namedOp, error) {
	clahe, err := enhance.CLAHE(p.ClipLimit, p.Tiles, p.Tiles)
	if err != nil {
		return nil, err
	}
	gamma, err := enhance.Gamma(p.Gamma)
	if err != nil {
		return nil, err
	}
	return []namedOp{
		{StageEqualize, enhance.Equalize},
		{StageCLAHE, clahe},
		{StageGamma, gamma},
		{StageSharpen, enhance.Sharpen},
	}, nil
}

func (r *Report) add(name string, img *image.Gray, sc *metrics.Score) {
	r.Stages = append(r.Stages, Stage{Name: name, Title: titles[name], Image: img, Score: sc})
}
