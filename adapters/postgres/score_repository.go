package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"genescore/domain/core"
	"genescore/domain/dataset"
	"genescore/domain/run"
	"genescore/domain/scoring"
	"genescore/ports"

	"github.com/jmoiron/sqlx"
)

// insertChunk bounds the rows per multi-row INSERT; postgres allows at most
// 65535 bind parameters per statement.
const insertChunk = 4000

// scoreRepository implements the ScoreRepository interface
type scoreRepository struct {
	db *sqlx.DB
}

// NewScoreRepository creates a new score repository
func NewScoreRepository(db *sqlx.DB) ports.ScoreRepository {
	return &scoreRepository{db: db}
}

// runRow mirrors a score_runs record
type runRow struct {
	ID          string         `db:"id"`
	Status      string         `db:"status"`
	Fingerprint string         `db:"fingerprint"`
	Manifest    []byte         `db:"manifest"`
	Params      []byte         `db:"params"`
	SetCount    int            `db:"set_count"`
	GlobalFDR   bool           `db:"global_fdr"`
	Failures    []byte         `db:"failures"`
	Error       sql.NullString `db:"error_message"`
	CreatedAt   time.Time      `db:"created_at"`
	CompletedAt sql.NullTime   `db:"completed_at"`
}

// setRow mirrors a set_results record
type setRow struct {
	Position     int    `db:"position"`
	Name         string `db:"set_name"`
	Description  string `db:"description"`
	SetSize      int    `db:"set_size"`
	Mode         string `db:"mode"`
	PoolSize     int    `db:"pool_size"`
	Permutations int    `db:"permutations"`
	Frozen       int    `db:"frozen"`
	Significance bool   `db:"significance"`
	WithBounds   bool   `db:"with_bounds"`
	DurationNS   int64  `db:"duration_ns"`
}

// cellRow mirrors a cell_scores record. Columns that only exist for some
// runs are nullable.
type cellRow struct {
	RunID     string          `db:"run_id"`
	SetName   string          `db:"set_name"`
	CellIndex int             `db:"cell_index"`
	CellID    string          `db:"cell_id"`
	Score     float64         `db:"score"`
	PValue    sql.NullFloat64 `db:"p_value"`
	FDR       sql.NullFloat64 `db:"fdr"`
	K         sql.NullInt64   `db:"k"`
	N         sql.NullInt64   `db:"n"`
	PValueCI  sql.NullFloat64 `db:"p_value_ci"`
	FDRLow    sql.NullFloat64 `db:"fdr_low"`
	FDRHigh   sql.NullFloat64 `db:"fdr_high"`
	GlobalFDR sql.NullFloat64 `db:"global_fdr"`
}

// SaveRun stores the run and all of its result rows in one transaction. An
// existing run with the same id is replaced.
func (r *scoreRepository) SaveRun(ctx context.Context, rn *run.Run) error {
	if err := rn.Validate(); err != nil {
		return err
	}

	row, err := toRunRow(rn)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM score_runs WHERE id = $1`, row.ID); err != nil {
		return fmt.Errorf("failed to clear run %s: %w", row.ID, err)
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO score_runs (
			id, status, fingerprint, manifest, params, set_count, global_fdr,
			failures, error_message, created_at, completed_at
		) VALUES (
			:id, :status, :fingerprint, :manifest, :params, :set_count, :global_fdr,
			:failures, :error_message, :created_at, :completed_at
		)`, row)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if rn.Result != nil {
		for i, set := range rn.Result.Sets {
			if err := insertSet(ctx, tx, row.ID, toSetRow(i, set)); err != nil {
				return err
			}
			if err := insertCells(ctx, tx, row.ID, toCellRows(set)); err != nil {
				return fmt.Errorf("failed to insert cells for %s: %w", set.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", row.ID, err)
	}
	return nil
}

func insertSet(ctx context.Context, tx *sqlx.Tx, runID string, s setRow) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO set_results (
			run_id, position, set_name, description, set_size, mode, pool_size,
			permutations, frozen, significance, with_bounds, duration_ns
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		runID, s.Position, s.Name, s.Description, s.SetSize, s.Mode, s.PoolSize,
		s.Permutations, s.Frozen, s.Significance, s.WithBounds, s.DurationNS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert set %s: %w", s.Name, err)
	}
	return nil
}

// insertCells writes rows in chunks using sqlx's batch named insert
func insertCells(ctx context.Context, tx *sqlx.Tx, runID string, rows []cellRow) error {
	for i := range rows {
		rows[i].RunID = runID
	}

	for start := 0; start < len(rows); start += insertChunk {
		batch := rows[start:min(start+insertChunk, len(rows))]
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO cell_scores (
				run_id, set_name, cell_index, cell_id, score, p_value, fdr, k, n,
				p_value_ci, fdr_low, fdr_high, global_fdr
			) VALUES (
				:run_id, :set_name, :cell_index, :cell_id, :score, :p_value, :fdr, :k, :n,
				:p_value_ci, :fdr_low, :fdr_high, :global_fdr
			)`, batch)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetRun loads a run with its set results and cell rows
func (r *scoreRepository) GetRun(ctx context.Context, id core.RunID) (*run.Run, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, status, fingerprint, manifest, params, set_count, global_fdr,
			failures, error_message, created_at, completed_at
		FROM score_runs WHERE id = $1`, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	rn, failures, err := fromRunRow(row)
	if err != nil {
		return nil, err
	}
	if rn.Status != run.StatusCompleted {
		return rn, nil
	}

	var sets []setRow
	err = r.db.SelectContext(ctx, &sets, `
		SELECT position, set_name, description, set_size, mode, pool_size,
			permutations, frozen, significance, with_bounds, duration_ns
		FROM set_results WHERE run_id = $1 ORDER BY position`, row.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get set results: %w", err)
	}

	var cells []cellRow
	err = r.db.SelectContext(ctx, &cells, `
		SELECT set_name, cell_index, cell_id, score, p_value, fdr, k, n,
			p_value_ci, fdr_low, fdr_high, global_fdr
		FROM cell_scores WHERE run_id = $1 ORDER BY set_name, cell_index`, row.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cell scores: %w", err)
	}

	rn.Result = assembleResult(sets, cells, failures, row.GlobalFDR)
	return rn, nil
}

// ListRuns returns the most recent runs first
func (r *scoreRepository) ListRuns(ctx context.Context, limit int) ([]run.Summary, error) {
	if limit <= 0 {
		limit = 50
	}

	var summaries []run.Summary
	err := r.db.SelectContext(ctx, &summaries, `
		SELECT id, status, set_count, created_at
		FROM score_runs
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return summaries, nil
}

func toRunRow(rn *run.Run) (runRow, error) {
	manifestJSON, err := json.Marshal(rn.Manifest)
	if err != nil {
		return runRow{}, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	paramsJSON, err := json.Marshal(rn.Params)
	if err != nil {
		return runRow{}, fmt.Errorf("failed to marshal params: %w", err)
	}

	failures := []scoring.SetFailure{}
	row := runRow{
		ID:          rn.ID.String(),
		Status:      string(rn.Status),
		Fingerprint: rn.Fingerprint.String(),
		Manifest:    manifestJSON,
		Params:      paramsJSON,
		Error:       sql.NullString{String: rn.Error, Valid: rn.Error != ""},
		CreatedAt:   rn.CreatedAt,
	}
	if rn.CompletedAt != nil {
		row.CompletedAt = sql.NullTime{Time: *rn.CompletedAt, Valid: true}
	}
	if rn.Result != nil {
		row.SetCount = len(rn.Result.Sets)
		row.GlobalFDR = rn.Result.GlobalFDR
		if len(rn.Result.Failures) > 0 {
			failures = rn.Result.Failures
		}
	}
	if row.Failures, err = json.Marshal(failures); err != nil {
		return runRow{}, fmt.Errorf("failed to marshal failures: %w", err)
	}
	return row, nil
}

func fromRunRow(row runRow) (*run.Run, []scoring.SetFailure, error) {
	rn := &run.Run{
		ID:          core.RunID(row.ID),
		Status:      run.Status(row.Status),
		Fingerprint: core.Hash(row.Fingerprint),
		Error:       row.Error.String,
		CreatedAt:   row.CreatedAt,
	}
	if row.CompletedAt.Valid {
		t := row.CompletedAt.Time
		rn.CompletedAt = &t
	}

	rn.Manifest = &dataset.Manifest{}
	if err := json.Unmarshal(row.Manifest, rn.Manifest); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	if err := json.Unmarshal(row.Params, &rn.Params); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal params: %w", err)
	}

	var failures []scoring.SetFailure
	if len(row.Failures) > 0 {
		if err := json.Unmarshal(row.Failures, &failures); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal failures: %w", err)
		}
	}
	if len(failures) == 0 {
		failures = nil
	}
	return rn, failures, nil
}

func toSetRow(position int, s *scoring.SetResult) setRow {
	return setRow{
		Position:     position,
		Name:         s.Name,
		Description:  s.Description,
		SetSize:      s.SetSize,
		Mode:         string(s.Mode),
		PoolSize:     s.PoolSize,
		Permutations: s.Permutations,
		Frozen:       s.Frozen,
		Significance: s.Significance,
		WithBounds:   s.WithBounds,
		DurationNS:   int64(s.Duration),
	}
}

func toCellRows(s *scoring.SetResult) []cellRow {
	rows := make([]cellRow, len(s.Cells))
	for i, c := range s.Cells {
		row := cellRow{SetName: s.Name, CellIndex: i, CellID: c.CellID, Score: c.Score}
		if s.Significance {
			row.PValue = sql.NullFloat64{Float64: c.PValue, Valid: true}
			row.FDR = sql.NullFloat64{Float64: c.FDR, Valid: true}
			row.K = sql.NullInt64{Int64: int64(c.K), Valid: true}
			row.N = sql.NullInt64{Int64: int64(c.N), Valid: true}
		}
		if c.Bounds != nil {
			row.PValueCI = sql.NullFloat64{Float64: c.Bounds.PValueCI, Valid: true}
			row.FDRLow = sql.NullFloat64{Float64: c.Bounds.FDRLow, Valid: true}
			row.FDRHigh = sql.NullFloat64{Float64: c.Bounds.FDRHigh, Valid: true}
		}
		if c.GlobalFDR != nil {
			row.GlobalFDR = sql.NullFloat64{Float64: *c.GlobalFDR, Valid: true}
		}
		rows[i] = row
	}
	return rows
}

// assembleResult rebuilds a batch from stored rows. sets must be ordered by
// position and cells by (set_name, cell_index).
func assembleResult(sets []setRow, cells []cellRow, failures []scoring.SetFailure, globalFDR bool) *scoring.BatchResult {
	bySet := make(map[string][]scoring.CellResult, len(sets))
	for _, c := range cells {
		cell := scoring.CellResult{
			CellID: c.CellID,
			Score:  c.Score,
			PValue: c.PValue.Float64,
			FDR:    c.FDR.Float64,
			K:      int(c.K.Int64),
			N:      int(c.N.Int64),
		}
		if c.PValueCI.Valid {
			cell.Bounds = &scoring.CellBounds{
				PValueCI: c.PValueCI.Float64,
				FDRLow:   c.FDRLow.Float64,
				FDRHigh:  c.FDRHigh.Float64,
			}
		}
		if c.GlobalFDR.Valid {
			v := c.GlobalFDR.Float64
			cell.GlobalFDR = &v
		}
		bySet[c.SetName] = append(bySet[c.SetName], cell)
	}

	result := &scoring.BatchResult{
		Sets:      make([]*scoring.SetResult, 0, len(sets)),
		Failures:  failures,
		GlobalFDR: globalFDR,
	}
	for _, s := range sets {
		result.Sets = append(result.Sets, &scoring.SetResult{
			Name:         s.Name,
			Description:  s.Description,
			SetSize:      s.SetSize,
			Cells:        bySet[s.Name],
			Mode:         scoring.SamplingMode(s.Mode),
			PoolSize:     s.PoolSize,
			Permutations: s.Permutations,
			Frozen:       s.Frozen,
			Significance: s.Significance,
			WithBounds:   s.WithBounds,
			Duration:     time.Duration(s.DurationNS),
		})
	}
	return result
}
