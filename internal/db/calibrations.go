package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CalibrationRecord is one solved projector calibration.
type CalibrationRecord struct {
	ID              string    `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	Coefficients    []float64 `json:"coefficients"`
	PairCount       int       `json:"pair_count"`
	RMSResidual     float64   `json:"rms_residual"`
	ProjectorWidth  int       `json:"projector_width"`
	ProjectorHeight int       `json:"projector_height"`
}

// InsertCalibration stores rec. An empty ID is replaced with a new UUID and
// a zero CreatedAt with the current time; the stored record is returned.
func (db *DB) InsertCalibration(ctx context.Context, rec CalibrationRecord) (CalibrationRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	coeffs, err := json.Marshal(rec.Coefficients)
	if err != nil {
		return rec, fmt.Errorf("encode coefficients: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO calibrations (
			calibration_id, created_unix, coefficients, pair_count,
			rms_residual, projector_width, projector_height
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, unixSeconds(rec.CreatedAt), string(coeffs), rec.PairCount,
		rec.RMSResidual, rec.ProjectorWidth, rec.ProjectorHeight,
	)
	if err != nil {
		return rec, fmt.Errorf("insert calibration: %w", err)
	}
	return rec, nil
}

const calibrationColumns = `calibration_id, created_unix, coefficients, pair_count,
	rms_residual, projector_width, projector_height`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCalibration(row rowScanner) (CalibrationRecord, error) {
	var (
		rec     CalibrationRecord
		created float64
		coeffs  string
	)
	if err := row.Scan(&rec.ID, &created, &coeffs, &rec.PairCount,
		&rec.RMSResidual, &rec.ProjectorWidth, &rec.ProjectorHeight); err != nil {
		return rec, err
	}
	rec.CreatedAt = fromUnixSeconds(created)
	if err := json.Unmarshal([]byte(coeffs), &rec.Coefficients); err != nil {
		return rec, fmt.Errorf("decode coefficients of %s: %w", rec.ID, err)
	}
	return rec, nil
}

// LatestCalibration returns the most recently created calibration, or
// ErrNotFound.
func (db *DB) LatestCalibration(ctx context.Context) (CalibrationRecord, error) {
	row := db.QueryRowContext(ctx, `SELECT `+calibrationColumns+`
		FROM calibrations ORDER BY created_unix DESC, rowid DESC LIMIT 1`)
	rec, err := scanCalibration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, ErrNotFound
	}
	return rec, err
}

// ListCalibrations returns up to limit calibrations, newest first.
func (db *DB) ListCalibrations(ctx context.Context, limit int) ([]CalibrationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `SELECT `+calibrationColumns+`
		FROM calibrations ORDER BY created_unix DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CalibrationRecord
	for rows.Next() {
		rec, err := scanCalibration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
