// Command imgrestore denoises and enhances one grayscale image, prints the
// quality report and writes every stage to disk.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/YannKr/imgrestore"
	"github.com/YannKr/imgrestore/internal/config"
	"github.com/YannKr/imgrestore/internal/db"
	"github.com/YannKr/imgrestore/internal/enhance"
	"github.com/YannKr/imgrestore/internal/imageio"
	"github.com/YannKr/imgrestore/internal/metrics"
	"github.com/YannKr/imgrestore/internal/montage"
	"github.com/YannKr/imgrestore/internal/pipeline"
)

var errNoInput = errors.New("no image selected")

// combinedOp selects enhance.Enhance for -op.
const combinedOp = "enhance"

// customStage names the output of the -op chain.
const customStage = "custom"

type options struct {
	input   string
	outDir  string
	record  bool
	dataDir string
	cols    int
	cell    int
	ops     string
	custom  func(*image.Gray) (*image.Gray, error)
	params  pipeline.Params
}

func main() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.ParseLevel(cfg.LogLevel)})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, err := parseFlags(os.Args[1:], cfg, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseFlags(args []string, cfg *config.Config, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("imgrestore", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: imgrestore -i input [-o outdir] [flags]\n")
		fs.PrintDefaults()
	}

	p := cfg.Params()
	o := &options{}
	fs.StringVar(&o.input, "i", "", "Input image (jpg, png, bmp, gif, tiff, webp).")
	fs.StringVar(&o.outDir, "o", "", "Directory for stage PNGs and the contact sheet; nothing is written when empty.")
	fs.BoolVar(&o.record, "record", false, "Record the run in the history database under -data.")
	fs.StringVar(&o.dataDir, "data", cfg.DataDir, "Data directory holding the history database.")
	fs.IntVar(&o.cols, "cols", montage.DefaultCols, "Contact sheet columns.")
	fs.IntVar(&o.cell, "cell", montage.DefaultCell, "Contact sheet cell size in pixels.")
	fs.StringVar(&p.Denoise.Wavelet, "wavelet", p.Denoise.Wavelet, "Wavelet family: haar or db1..db10.")
	fs.IntVar(&p.Denoise.Level, "level", p.Denoise.Level, "Decomposition depth.")
	fs.Float64Var(&p.NLM.H, "nlm-h", p.NLM.H, "Non-local means strength.")
	fs.IntVar(&p.NLM.TemplateWindow, "nlm-template", p.NLM.TemplateWindow, "Non-local means template window (odd).")
	fs.IntVar(&p.NLM.SearchWindow, "nlm-search", p.NLM.SearchWindow, "Non-local means search window (odd).")
	fs.Float64Var(&p.Gamma, "gamma", p.Gamma, "Gamma correction exponent.")
	fs.Float64Var(&p.ClipLimit, "clip", p.ClipLimit, "CLAHE clip limit.")
	fs.IntVar(&p.Tiles, "tiles", p.Tiles, "CLAHE tile grid size.")
	fs.Float64Var(&p.NoiseSigma, "noise", 0, "Add Gaussian noise with this sigma before denoising.")
	fs.Uint64Var(&p.NoiseSeed, "seed", 1, "Seed for -noise.")
	fs.StringVar(&o.ops, "op", "", fmt.Sprintf(
		"Extra operators applied in order to the denoised image, comma separated (%s), or %q for the combined chain.",
		strings.Join(enhance.Names(), ", "), combinedOp))

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.input == "" && fs.NArg() > 0 {
		o.input = fs.Arg(0)
	}
	if o.input == "" {
		fs.Usage()
		return nil, errNoInput
	}
	if o.ops != "" {
		custom, err := parseOps(o.ops)
		if err != nil {
			return nil, err
		}
		o.custom = custom
	}
	o.params = p
	return o, nil
}

// parseOps builds the -op chain. The combined chain cannot be mixed with
// individual operators.
func parseOps(list string) (func(*image.Gray) (*image.Gray, error), error) {
	names := strings.Split(list, ",")
	if len(names) == 1 && strings.EqualFold(strings.TrimSpace(names[0]), combinedOp) {
		return enhance.Enhance, nil
	}
	ops := make([]enhance.Operator, 0, len(names))
	for _, name := range names {
		op, err := enhance.Lookup(strings.TrimSpace(name))
		if err != nil {
			return nil, fmt.Errorf("-op: %w", err)
		}
		ops = append(ops, op)
	}
	chain := enhance.Chain(ops...)
	return func(img *image.Gray) (*image.Gray, error) {
		return chain(img), nil
	}, nil
}

func run(ctx context.Context, o *options, stdout io.Writer) error {
	img, err := imageio.Load(o.input)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}

	report, err := pipeline.Run(ctx, img, o.params)
	if err != nil {
		return err
	}
	if err := report.WriteText(stdout); err != nil {
		return err
	}

	if o.outDir != "" {
		if err := writeStages(o.outDir, report, o.cols, o.cell); err != nil {
			return err
		}
		slog.Info("stages written", "dir", o.outDir)
	}

	if o.custom != nil {
		if err := runCustom(o, report, stdout); err != nil {
			return err
		}
	}

	if o.record {
		id, err := record(o, img, report)
		if err != nil {
			return fmt.Errorf("record run: %w", err)
		}
		fmt.Fprintf(stdout, "Recorded run %s\n", id)
	}
	return nil
}

// runCustom applies the -op chain to the denoised stage, prints its score
// against the denoised image and saves it next to the other stages.
func runCustom(o *options, report *pipeline.Report, stdout io.Writer) error {
	denoised, ok := report.Stage(pipeline.StageDenoised)
	if !ok {
		return fmt.Errorf("report has no %s stage", pipeline.StageDenoised)
	}
	out, err := o.custom(denoised.Image)
	if err != nil {
		return fmt.Errorf("-op %s: %w", o.ops, err)
	}
	score, err := metrics.Compare(denoised.Image, out)
	if err != nil {
		return fmt.Errorf("-op %s: %w", o.ops, err)
	}
	fmt.Fprintf(stdout, "Custom (%s): PSNR = %.4f dB, SSIM = %.4f\n", o.ops, score.PSNR, score.SSIM)

	if o.outDir != "" {
		if err := imageio.Save(filepath.Join(o.outDir, customStage+".png"), out); err != nil {
			return err
		}
	}
	return nil
}

func writeStages(dir string, report *pipeline.Report, cols, cell int) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, s := range report.Stages {
		if err := imageio.Save(filepath.Join(dir, s.Name+".png"), s.Image); err != nil {
			return err
		}
	}
	return imageio.Save(filepath.Join(dir, "sheet.png"), montage.Sheet(report.Panels(), cols, cell))
}

func record(o *options, img *image.Gray, report *pipeline.Report) (string, error) {
	database, err := db.Open(o.dataDir)
	if err != nil {
		return "", err
	}
	defer database.Close()
	if err := db.Migrate(database, imgrestore.MigrationFS); err != nil {
		return "", err
	}

	run := report.Record(uuid.New().String(), filepath.Base(o.input), imageio.Digest(img), o.params.Key())
	if err := db.InsertRun(database, run); err != nil {
		return "", err
	}
	return run.ID, nil
}
