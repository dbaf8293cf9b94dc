package store

import (
	"database/sql"
	"fmt"
)

// --- Run operations ---

func (s *Store) InsertRun(r *Run) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO runs (design_hash, evaluator, tops, started_at) VALUES (?, ?, ?, ?)",
		r.DesignHash, r.Evaluator, marshalStrings(r.Tops), r.StartedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	return id, nil
}

// FinishRun records the totals of a completed run.
func (s *Store) FinishRun(runID int64, instances, diagnostics int) error {
	_, err := s.db.Exec(
		"UPDATE runs SET instance_count = ?, diagnostic_count = ? WHERE id = ?",
		instances, diagnostics, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

const runCols = `id, design_hash, evaluator, tops, started_at, instance_count, diagnostic_count`

func scanRun(sc scanner) (*Run, error) {
	r := &Run{}
	var tops string
	if err := sc.Scan(&r.ID, &r.DesignHash, &r.Evaluator, &tops, &r.StartedAt, &r.InstanceCount, &r.DiagnosticCount); err != nil {
		return nil, err
	}
	r.Tops = unmarshalStrings(tops)
	return r, nil
}

// LatestRun returns the most recent run, or nil when none exists.
func (s *Store) LatestRun() (*Run, error) {
	r, err := scanRun(s.db.QueryRow("SELECT " + runCols + " FROM runs ORDER BY id DESC LIMIT 1"))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return r, nil
}

func (s *Store) RunByID(id int64) (*Run, error) {
	r, err := scanRun(s.db.QueryRow("SELECT "+runCols+" FROM runs WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("run by id: %w", err)
	}
	return r, nil
}

// --- File operations ---

func (s *Store) InsertFile(f *File) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO files (run_id, path, format, hash, node_count) VALUES (?, ?, ?, ?, ?)",
		f.RunID, f.Path, f.Format, f.Hash, f.NodeCount,
	)
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	f.ID = id
	return id, nil
}

func (s *Store) FilesByRun(runID int64) ([]*File, error) {
	rows, err := s.db.Query(
		"SELECT id, run_id, path, format, hash, node_count FROM files WHERE run_id = ? ORDER BY path", runID,
	)
	if err != nil {
		return nil, fmt.Errorf("files by run: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(&f.ID, &f.RunID, &f.Path, &f.Format, &f.Hash, &f.NodeCount); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
