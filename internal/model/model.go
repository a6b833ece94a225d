package model

import "time"

// Run is one recorded restoration.
type Run struct {
	ID         string
	SourceName string
	Digest     string
	ParamsKey  string
	Width      int
	Height     int
	Wavelet    string
	Level      int
	Sigma      float64
	Threshold  float64
	ElapsedMS  int64
	CreatedAt  time.Time
	Scores     []StageScore
}

// StageScore is the quality of one stage against its reference. PSNR is
// +Inf when the stage equals its reference.
type StageScore struct {
	Stage string
	PSNR  float64
	SSIM  float64
}

// Score returns the score recorded for stage.
func (r *Run) Score(stage string) (StageScore, bool) {
	for _, s := range r.Scores {
		if s.Stage == stage {
			return s, true
		}
	}
	return StageScore{}, false
}
