package db

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/YannKr/imgrestore/internal/model"
)

const runColumns = `id, source_name, digest, params_key, width, height, wavelet, level,
	sigma, threshold, elapsed_ms, created_at`

// InsertRun stores a run and its stage scores in one transaction.
func InsertRun(database *sql.DB, r *model.Run) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	tx, err := database.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SourceName, r.Digest, r.ParamsKey, r.Width, r.Height, r.Wavelet, r.Level,
		r.Sigma, r.Threshold, r.ElapsedMS, r.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for _, s := range r.Scores {
		var psnr sql.NullFloat64
		if !math.IsInf(s.PSNR, 0) && !math.IsNaN(s.PSNR) {
			psnr = sql.NullFloat64{Float64: s.PSNR, Valid: true}
		}
		if _, err := tx.Exec(
			`INSERT INTO run_scores (run_id, stage, psnr, ssim) VALUES (?, ?, ?, ?)`,
			r.ID, s.Stage, psnr, s.SSIM,
		); err != nil {
			return fmt.Errorf("insert score %s: %w", s.Stage, err)
		}
	}
	return tx.Commit()
}

// GetRun returns the run with the given id, or nil if there is none.
func GetRun(database *sql.DB, id string) (*model.Run, error) {
	r, err := scanRun(database.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := loadScores(database, r); err != nil {
		return nil, err
	}
	return r, nil
}

// FindRunByDigest returns the most recent run of the same image with the
// same parameters, or nil.
func FindRunByDigest(database *sql.DB, digest, paramsKey string) (*model.Run, error) {
	r, err := scanRun(database.QueryRow(
		`SELECT `+runColumns+` FROM runs WHERE digest = ? AND params_key = ?
		 ORDER BY created_at DESC LIMIT 1`, digest, paramsKey,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := loadScores(database, r); err != nil {
		return nil, err
	}
	return r, nil
}

// ListRuns returns up to limit runs, newest first, without scores.
func ListRuns(database *sql.DB, limit int) ([]model.Run, error) {
	rows, err := database.Query(`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// DeleteRunsBefore removes runs created before cutoff and returns their ids.
func DeleteRunsBefore(database *sql.DB, cutoff time.Time) ([]string, error) {
	rows, err := database.Query(
		`DELETE FROM runs WHERE created_at < ? RETURNING id`,
		cutoff.UTC().Format(timeFormat),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*model.Run, error) {
	r := &model.Run{}
	var createdAt SQLiteTime
	err := row.Scan(
		&r.ID, &r.SourceName, &r.Digest, &r.ParamsKey, &r.Width, &r.Height,
		&r.Wavelet, &r.Level, &r.Sigma, &r.Threshold, &r.ElapsedMS, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = createdAt.Time
	return r, nil
}

func loadScores(database *sql.DB, r *model.Run) error {
	rows, err := database.Query(
		`SELECT stage, psnr, ssim FROM run_scores WHERE run_id = ? ORDER BY rowid`, r.ID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var s model.StageScore
		var psnr sql.NullFloat64
		if err := rows.Scan(&s.Stage, &psnr, &s.SSIM); err != nil {
			return err
		}
		s.PSNR = math.Inf(1)
		if psnr.Valid {
			s.PSNR = psnr.Float64
		}
		r.Scores = append(r.Scores, s)
	}
	return rows.Err()
}
