package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/foam/internal/pipeline"
)

// Run is one invocation of the pipeline.
type Run struct {
	RunID      string `json:"run_id"`
	Detector   string `json:"detector"`
	ModuleRows int    `json:"module_rows"`
	ModuleCols int    `json:"module_cols"`
	ConfigJSON string `json:"config_json,omitempty"`
	StartedAt  int64  `json:"started_at"`
}

// RunStore persists runs.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db.DB}
}

// Start records a new run and returns it with a fresh UUID.
func (s *RunStore) Start(detector string, rows, cols int, configJSON string) (*Run, error) {
	r := &Run{
		RunID:      uuid.New().String(),
		Detector:   detector,
		ModuleRows: rows,
		ModuleCols: cols,
		ConfigJSON: configJSON,
		StartedAt:  time.Now().UnixNano(),
	}
	err := retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO runs (run_id, detector, module_rows, module_cols, config_json, started_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			r.RunID, r.Detector, r.ModuleRows, r.ModuleCols, r.ConfigJSON, r.StartedAt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	return r, nil
}

// ErrRunNotFound is returned by Get for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Get returns the run with the given id.
func (s *RunStore) Get(runID string) (*Run, error) {
	var r Run
	var cfg sql.NullString
	err := s.db.QueryRow(`
		SELECT run_id, detector, module_rows, module_cols, config_json, started_at
		FROM runs WHERE run_id = ?`, runID).
		Scan(&r.RunID, &r.Detector, &r.ModuleRows, &r.ModuleCols, &cfg, &r.StartedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	r.ConfigJSON = cfg.String
	return &r, nil
}

// TrainRecord is the stored summary of one train.
type TrainRecord struct {
	RunID      string  `json:"run_id"`
	TrainID    uint64  `json:"train_id"`
	Source     string  `json:"source"`
	Skipped    bool    `json:"skipped"`
	Error      string  `json:"error,omitempty"`
	Pulses     int     `json:"pulses"`
	FOM        float64 `json:"fom"` // NaN when skipped or fully masked
	MaCount    int     `json:"ma_count"`
	ElapsedNs  int64   `json:"elapsed_ns"`
	RecordedAt int64   `json:"recorded_at"`
}

// TrainStore persists per-train results for one run. It implements
// pipeline.Sink.
type TrainStore struct {
	db    *sql.DB
	runID string
}

var _ pipeline.Sink = (*TrainStore)(nil)

// NewTrainStore returns a store that records trains under runID.
func NewTrainStore(db *DB, runID string) *TrainStore {
	return &TrainStore{db: db.DB, runID: runID}
}

// RunID returns the run trains are recorded under.
func (s *TrainStore) RunID() string { return s.runID }

// RecordTrain stores the summary of a processed or skipped train.
func (s *TrainStore) RecordTrain(ctx context.Context, r pipeline.Result) error {
	rec := TrainRecord{
		RunID:      s.runID,
		TrainID:    r.TrainID,
		Source:     r.Source,
		Skipped:    r.Skipped(),
		FOM:        math.NaN(),
		ElapsedNs:  r.Elapsed.Nanoseconds(),
		RecordedAt: time.Now().UnixNano(),
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	if t := r.Train; t != nil {
		rec.FOM = t.FOM
		rec.MaCount = t.MaCount
		if t.Assembled.Rank() == 3 {
			rec.Pulses = t.Assembled.Shape[0]
		}
	}
	return s.insert(ctx, &rec)
}

func (s *TrainStore) insert(ctx context.Context, rec *TrainRecord) error {
	var fom sql.NullFloat64
	if !math.IsNaN(rec.FOM) && !math.IsInf(rec.FOM, 0) {
		fom = sql.NullFloat64{Float64: rec.FOM, Valid: true}
	}
	var errText sql.NullString
	if rec.Error != "" {
		errText = sql.NullString{String: rec.Error, Valid: true}
	}
	err := retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO trains (
				run_id, train_id, source, skipped, error,
				pulses, fom, ma_count, elapsed_ns, recorded_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.RunID, int64(rec.TrainID), rec.Source, rec.Skipped, errText,
			rec.Pulses, fom, rec.MaCount, rec.ElapsedNs, rec.RecordedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to record train %d: %w", rec.TrainID, err)
	}
	return nil
}

// ListByRun returns every train recorded under runID in train order.
func (s *TrainStore) ListByRun(runID string) ([]*TrainRecord, error) {
	rows, err := s.db.Query(`
		SELECT run_id, train_id, source, skipped, error,
		       pulses, fom, ma_count, elapsed_ns, recorded_at
		FROM trains
		WHERE run_id = ?
		ORDER BY train_id, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trains: %w", err)
	}
	defer rows.Close()

	var out []*TrainRecord
	for rows.Next() {
		var rec TrainRecord
		var trainID int64
		var errText sql.NullString
		var fom sql.NullFloat64
		if err := rows.Scan(&rec.RunID, &trainID, &rec.Source, &rec.Skipped, &errText,
			&rec.Pulses, &fom, &rec.MaCount, &rec.ElapsedNs, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan train: %w", err)
		}
		rec.TrainID = uint64(trainID)
		rec.Error = errText.String
		rec.FOM = math.NaN()
		if fom.Valid {
			rec.FOM = fom.Float64
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// CountSkipped returns how many trains of runID were skipped.
func (s *TrainStore) CountSkipped(runID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM trains WHERE run_id = ? AND skipped = 1`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count skipped trains: %w", err)
	}
	return n, nil
}
