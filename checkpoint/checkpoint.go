// Package checkpoint persists per-chunk progress for video conversion jobs
// so an interrupted run can resume without redoing finished chunks.
package checkpoint

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Job represents a tracked video conversion job.
type Job struct {
	ID          string
	InputPath   string
	OutputPath  string
	Mode        string
	ChunkSize   int
	TotalChunks int
	Completed   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store persists jobs and chunk completion records in sqlite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the checkpoint database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}
	return NewStore(db)
}

// NewStore wraps an existing database connection and ensures the schema exists.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// createTables creates the jobs and chunks tables if they don't exist
func (s *Store) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		input_path TEXT NOT NULL,
		output_path TEXT NOT NULL,
		mode TEXT NOT NULL,
		chunk_size INTEGER NOT NULL,
		total_chunks INTEGER NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP,
		updated_at TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS chunks (
		job_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		frames INTEGER NOT NULL DEFAULT 0,
		path TEXT NOT NULL DEFAULT '',
		completed_at TIMESTAMP,
		PRIMARY KEY (job_id, chunk_index)
	);
	`
	_, err := s.db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint tables: %w", err)
	}
	return nil
}

// OpenJob finds an incomplete job matching the given parameters, or creates a
// new one. The second return value reports whether an existing job was resumed.
func (s *Store) OpenJob(inputPath, outputPath, mode string, chunkSize, totalChunks int) (*Job, bool, error) {
	row := s.db.QueryRow(`
		SELECT id, created_at, updated_at FROM jobs
		WHERE input_path = ? AND output_path = ? AND mode = ?
		  AND chunk_size = ? AND total_chunks = ? AND completed = 0
		ORDER BY created_at DESC LIMIT 1`,
		inputPath, outputPath, mode, chunkSize, totalChunks)

	job := &Job{
		InputPath:   inputPath,
		OutputPath:  outputPath,
		Mode:        mode,
		ChunkSize:   chunkSize,
		TotalChunks: totalChunks,
	}

	err := row.Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	if err == nil {
		return job, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("failed to query jobs: %w", err)
	}

	// No resumable job; create one
	job.ID = uuid.New().String()
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO jobs (id, input_path, output_path, mode, chunk_size, total_chunks, completed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		job.ID, inputPath, outputPath, mode, chunkSize, totalChunks, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert job: %w", err)
	}

	return job, false, nil
}

// MarkChunkDone records a completed chunk and the path of its encoded output.
func (s *Store) MarkChunkDone(jobID string, index int, frames int, path string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO chunks (job_id, chunk_index, frames, path, completed_at)
		VALUES (?, ?, ?, ?, ?)`,
		jobID, index, frames, path, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark chunk %d done: %w", index, err)
	}

	_, err = s.db.Exec(`UPDATE jobs SET updated_at = ? WHERE id = ?`, time.Now(), jobID)
	if err != nil {
		return fmt.Errorf("failed to touch job: %w", err)
	}
	return nil
}

// DoneChunks returns the completed chunk indices for a job mapped to their
// encoded output paths.
func (s *Store) DoneChunks(jobID string) (map[int]string, error) {
	rows, err := s.db.Query(`SELECT chunk_index, path FROM chunks WHERE job_id = ?`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	done := make(map[int]string)
	for rows.Next() {
		var index int
		var path string
		if err := rows.Scan(&index, &path); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		done[index] = path
	}
	return done, rows.Err()
}

// CompleteJob marks a job finished and removes its chunk records.
func (s *Store) CompleteJob(jobID string) error {
	_, err := s.db.Exec(`UPDATE jobs SET completed = 1, updated_at = ? WHERE id = ?`, time.Now(), jobID)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	_, err = s.db.Exec(`DELETE FROM chunks WHERE job_id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}
	return nil
}

// DeleteJob removes a job and its chunk records entirely.
func (s *Store) DeleteJob(jobID string) error {
	if _, err := s.db.Exec(`DELETE FROM chunks WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM jobs WHERE id = ?`, jobID); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
