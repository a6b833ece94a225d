package pipeline

import (
	"bufio"
	"fmt"
	"io"
)

const rule = "======================================"

var textLabels = map[string]string{
	StageEqualize: "HE     ",
	StageCLAHE:    "CLAHE  ",
	StageGamma:    "Gamma  ",
	StageSharpen:  "Sharpen",
}

// WriteText renders the console metric report.
func (r *Report) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "\n%s\n         IMAGE QUALITY METRICS\n%s\n", rule, rule)

	fmt.Fprintf(bw, "\n--- MAIN DENOISING RESULT ---\n")
	fmt.Fprintf(bw, "Wavelet                    : %s (level %d)\n", r.Wavelet, r.Level)
	fmt.Fprintf(bw, "Noise sigma / threshold    : %.4f / %.4f\n", r.Sigma, r.Threshold)
	if s, ok := r.Stage(StageDenoised); ok && s.Score != nil {
		fmt.Fprintf(bw, "PSNR (Original → Denoised) : %.4f\n", s.Score.PSNR)
		fmt.Fprintf(bw, "SSIM (Original → Denoised) : %.4f\n", s.Score.SSIM)
	}

	fmt.Fprintf(bw, "\n--- ENHANCEMENT RESULTS ---\n")
	for _, s := range r.Stages {
		label, ok := textLabels[s.Name]
		if !ok || s.Score == nil {
			continue
		}
		fmt.Fprintf(bw, "%s: %.4f %.4f\n", label, s.Score.PSNR, s.Score.SSIM)
	}
	fmt.Fprintf(bw, "%s\n\n", rule)
	return bw.Flush()
}
