// Package store persists classification run summaries and their class
// models in SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	_ "modernc.org/sqlite"

	"github.com/ironsheep/landcover-mcp/internal/mlc"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned by GetRun for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// Run is the persisted summary of one classification run.
type Run struct {
	RunID       string       `json:"run_id"`
	CreatedAt   int64        `json:"created_at_ns"`
	InputPath   string       `json:"input_path"`
	OutputPath  string       `json:"output_path,omitempty"`
	PreviewPath string       `json:"preview_path,omitempty"`
	BandMode    string       `json:"band_mode"`
	Rows        int          `json:"rows"`
	Cols        int          `json:"cols"`
	Bands       int          `json:"bands"`
	Threshold   float64      `json:"threshold"`
	Seeds       []mlc.Seed   `json:"seeds"`
	ClassCounts []int        `json:"class_counts"`
	ElapsedMS   int64        `json:"elapsed_ms"`
	Models      []ClassModel `json:"models,omitempty"`
}

// ClassModel is the persisted form of one estimated class model.
// Covariance is stored row-major.
type ClassModel struct {
	ClassIndex int       `json:"class_index"`
	Name       string    `json:"name,omitempty"`
	SeedRow    int       `json:"seed_row"`
	SeedCol    int       `json:"seed_col"`
	Pixels     int       `json:"pixels"`
	Mean       []float64 `json:"mean"`
	Covariance []float64 `json:"covariance"`
	LogDet     float64   `json:"log_det"`
}

// NewRun summarises a pipeline result for storage.
func NewRun(res *mlc.Result, input, bandMode string, bands int) *Run {
	run := &Run{
		InputPath:   input,
		BandMode:    bandMode,
		Rows:        res.Labels.Rows,
		Cols:        res.Labels.Cols,
		Bands:       bands,
		Threshold:   res.Threshold,
		Seeds:       res.Seeds,
		ClassCounts: res.ClassCounts,
		ElapsedMS:   res.Elapsed.Milliseconds(),
	}
	for i, m := range res.Models {
		run.Models = append(run.Models, ModelFrom(i, m))
	}
	return run
}

// ModelFrom flattens an estimated class model.
func ModelFrom(index int, m mlc.ClassModel) ClassModel {
	n := m.Bands()
	cov := make([]float64, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			cov = append(cov, m.Covariance.At(i, j))
		}
	}
	logDet, _ := mat.LogDet(m.Covariance)
	return ClassModel{
		ClassIndex: index,
		Name:       m.Seed.Name,
		SeedRow:    m.Seed.Row,
		SeedCol:    m.Seed.Col,
		Pixels:     m.Pixels,
		Mean:       append([]float64(nil), m.Mean...),
		Covariance: cov,
		LogDet:     logDet,
	}
}

// Store is a SQLite-backed run history.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. An empty path opens a private in-memory database.
func Open(path string) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun inserts run and its models in one transaction and returns the run
// ID. A UUID is generated when RunID is empty.
func (s *Store) SaveRun(ctx context.Context, run *Run) (string, error) {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}

	seedsJSON, err := json.Marshal(run.Seeds)
	if err != nil {
		return "", fmt.Errorf("marshal seeds: %w", err)
	}
	countsJSON, err := json.Marshal(run.ClassCounts)
	if err != nil {
		return "", fmt.Errorf("marshal class counts: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO classification_runs (
			run_id, created_at_ns, input_path, output_path, preview_path,
			band_mode, raster_rows, raster_cols, bands, threshold,
			seeds_json, class_counts, elapsed_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.CreatedAt, run.InputPath, run.OutputPath, run.PreviewPath,
		run.BandMode, run.Rows, run.Cols, run.Bands, run.Threshold,
		string(seedsJSON), string(countsJSON), run.ElapsedMS,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for _, m := range run.Models {
		meanJSON, err := json.Marshal(m.Mean)
		if err != nil {
			return "", fmt.Errorf("marshal mean: %w", err)
		}
		covJSON, err := json.Marshal(m.Covariance)
		if err != nil {
			return "", fmt.Errorf("marshal covariance: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO class_models (
				run_id, class_index, name, seed_row, seed_col,
				pixels, mean_json, covariance_json, log_det
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, m.ClassIndex, m.Name, m.SeedRow, m.SeedCol,
			m.Pixels, string(meanJSON), string(covJSON), m.LogDet,
		)
		if err != nil {
			return "", fmt.Errorf("insert class model %d: %w", m.ClassIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run: %w", err)
	}
	return run.RunID, nil
}

const runColumns = `run_id, created_at_ns, input_path, output_path, preview_path,
		       band_mode, raster_rows, raster_cols, bands, threshold,
		       seeds_json, class_counts, elapsed_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var output, preview sql.NullString
	var seedsJSON, countsJSON string
	err := row.Scan(
		&r.RunID, &r.CreatedAt, &r.InputPath, &output, &preview,
		&r.BandMode, &r.Rows, &r.Cols, &r.Bands, &r.Threshold,
		&seedsJSON, &countsJSON, &r.ElapsedMS,
	)
	if err != nil {
		return nil, err
	}
	r.OutputPath = output.String
	r.PreviewPath = preview.String
	if err := json.Unmarshal([]byte(seedsJSON), &r.Seeds); err != nil {
		return nil, fmt.Errorf("decode seeds: %w", err)
	}
	if err := json.Unmarshal([]byte(countsJSON), &r.ClassCounts); err != nil {
		return nil, fmt.Errorf("decode class counts: %w", err)
	}
	return &r, nil
}

// ListRuns returns up to limit runs, newest first, without their models.
// A non-positive limit returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM classification_runs
		ORDER BY created_at_ns DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run with its class models in class order.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM classification_runs
		WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT class_index, name, seed_row, seed_col, pixels,
		       mean_json, covariance_json, log_det
		FROM class_models
		WHERE run_id = ?
		ORDER BY class_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query class models: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m ClassModel
		var name sql.NullString
		var meanJSON, covJSON string
		if err := rows.Scan(&m.ClassIndex, &name, &m.SeedRow, &m.SeedCol, &m.Pixels,
			&meanJSON, &covJSON, &m.LogDet); err != nil {
			return nil, fmt.Errorf("scan class model: %w", err)
		}
		m.Name = name.String
		if err := json.Unmarshal([]byte(meanJSON), &m.Mean); err != nil {
			return nil, fmt.Errorf("decode mean: %w", err)
		}
		if err := json.Unmarshal([]byte(covJSON), &m.Covariance); err != nil {
			return nil, fmt.Errorf("decode covariance: %w", err)
		}
		r.Models = append(r.Models, m)
	}
	return r, rows.Err()
}
