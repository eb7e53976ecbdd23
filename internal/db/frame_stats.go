package db

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/sandtable/internal/depth/pipeline"
)

// FrameStatsRow is one persisted snapshot of acquisition counters.
type FrameStatsRow struct {
	SessionID       string    `json:"session_id"`
	RecordedAt      time.Time `json:"recorded_at"`
	Reason          string    `json:"reason"`
	FramesProcessed uint64    `json:"frames_processed"`
	SensorErrors    uint64    `json:"sensor_errors"`
	StablePixels    int64     `json:"stable_pixels"`
	ROIPixels       int       `json:"roi_pixels"`
	Stabilized      bool      `json:"stabilized"`
	LastPassMs      float64   `json:"last_pass_ms"`
	FilteredDropped uint64    `json:"filtered_dropped"`
	ColorDropped    uint64    `json:"color_dropped"`
	GradientDropped uint64    `json:"gradient_dropped"`
}

// RecordFrameStats stores st; it satisfies pipeline.StatsSink.
func (db *DB) RecordFrameStats(ctx context.Context, reason string, st pipeline.Stats) error {
	stabilized := 0
	if st.Stabilized {
		stabilized = 1
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO frame_stats (
			session_id, recorded_unix, reason, frames_processed, sensor_errors,
			stable_pixels, roi_pixels, stabilized, last_pass_ms,
			filtered_dropped, color_dropped, gradient_dropped
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.SessionID, unixSeconds(time.Now()), reason, int64(st.FramesProcessed), int64(st.SensorErrors),
		st.StablePixels, st.ROIPixels, stabilized, float64(st.LastPass)/float64(time.Millisecond),
		int64(st.Filtered.Dropped), int64(st.Colors.Dropped), int64(st.Gradients.Dropped),
	)
	if err != nil {
		return fmt.Errorf("insert frame stats: %w", err)
	}
	return nil
}

// RecentFrameStats returns up to limit rows, newest first.
func (db *DB) RecentFrameStats(ctx context.Context, limit int) ([]FrameStatsRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT session_id, recorded_unix, reason, frames_processed, sensor_errors,
			stable_pixels, roi_pixels, stabilized, last_pass_ms,
			filtered_dropped, color_dropped, gradient_dropped
		FROM frame_stats ORDER BY stats_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FrameStatsRow
	for rows.Next() {
		var (
			r                   FrameStatsRow
			recorded            float64
			frames, errs        int64
			fDrop, cDrop, gDrop int64
			stabilized          int
		)
		if err := rows.Scan(&r.SessionID, &recorded, &r.Reason, &frames, &errs,
			&r.StablePixels, &r.ROIPixels, &stabilized, &r.LastPassMs,
			&fDrop, &cDrop, &gDrop); err != nil {
			return nil, err
		}
		r.RecordedAt = fromUnixSeconds(recorded)
		r.FramesProcessed, r.SensorErrors = uint64(frames), uint64(errs)
		r.Stabilized = stabilized != 0
		r.FilteredDropped, r.ColorDropped, r.GradientDropped = uint64(fDrop), uint64(cDrop), uint64(gDrop)
		out = append(out, r)
	}
	return out, rows.Err()
}
