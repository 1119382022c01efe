package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"kw_crawler/models"
)

// SQLiteStore is the operational store: the scrape job queue, the command
// channel, and per-run bookkeeping. Domain data lives in Postgres.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scrape_jobs (
		id INTEGER PRIMARY KEY,
		job_type TEXT NOT NULL,
		site_id TEXT NOT NULL,
		url TEXT NOT NULL,
		force_rescrape BOOLEAN DEFAULT FALSE,
		status TEXT DEFAULT 'pending',
		attempts INTEGER DEFAULT 0,
		last_error TEXT,
		scheduled_at DATETIME NOT NULL,
		claimed_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS scrape_runs (
		id INTEGER PRIMARY KEY,
		site_id TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		urls_discovered INTEGER DEFAULT 0,
		jobs_scheduled INTEGER DEFAULT 0,
		errors_count INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS scrape_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		site_id TEXT
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_due ON scrape_jobs(status, scheduled_at);
	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_logs_run ON scrape_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON scrape_runs(status, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// Job queue
// =============================================================================

// EnqueueScrape is fire-and-forget: the job becomes due after delay.
func (s *SQLiteStore) EnqueueScrape(siteID, url string, force bool, delay time.Duration) error {
	_, err := s.db.Exec(`
		INSERT INTO scrape_jobs (job_type, site_id, url, force_rescrape, status, scheduled_at)
		VALUES (?, ?, ?, ?, 'pending', ?)`,
		models.JobTypeScrape, siteID, url, force, time.Now().Add(delay))
	return err
}

// ClaimDueJobs moves due pending jobs to processing and returns them.
// Delivery is at-least-once: a crashed worker leaves jobs in processing,
// which ReleaseStuckJobs hands back to the queue.
func (s *SQLiteStore) ClaimDueJobs(limit int) ([]models.ScrapeJob, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.Query(`
		SELECT id, job_type, site_id, url, force_rescrape, status, attempts, last_error, scheduled_at, created_at, finished_at
		FROM scrape_jobs
		WHERE status = 'pending' AND scheduled_at <= ?
		ORDER BY scheduled_at
		LIMIT ?`, time.Now(), limit)
	if err != nil {
		return nil, err
	}

	var jobs []models.ScrapeJob
	for rows.Next() {
		var job models.ScrapeJob
		var lastErr sql.NullString
		if err := rows.Scan(&job.ID, &job.Type, &job.SiteID, &job.URL, &job.Force, &job.Status,
			&job.Attempts, &lastErr, &job.ScheduledAt, &job.CreatedAt, &job.FinishedAt); err != nil {
			rows.Close()
			return nil, err
		}
		if lastErr.Valid {
			job.LastError = &lastErr.String
		}
		jobs = append(jobs, job)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	for i := range jobs {
		if _, err := tx.Exec(`UPDATE scrape_jobs SET status = 'processing', claimed_at = ? WHERE id = ?`, now, jobs[i].ID); err != nil {
			return nil, err
		}
		jobs[i].Status = models.JobStatusProcessing
	}

	return jobs, tx.Commit()
}

func (s *SQLiteStore) MarkJobDone(id int64) error {
	_, err := s.db.Exec(`
		UPDATE scrape_jobs SET status = 'done', finished_at = ? WHERE id = ?`,
		time.Now(), id)
	return err
}

// MarkJobFailed requeues the job with a delay until maxAttempts is
// reached, then parks it as failed.
func (s *SQLiteStore) MarkJobFailed(id int64, errMsg string, maxAttempts int, retryDelay time.Duration) error {
	_, err := s.db.Exec(`
		UPDATE scrape_jobs
		SET attempts = attempts + 1,
			last_error = ?,
			status = CASE WHEN attempts + 1 >= ? THEN 'failed' ELSE 'pending' END,
			scheduled_at = ?,
			finished_at = CASE WHEN attempts + 1 >= ? THEN ? ELSE NULL END
		WHERE id = ?`,
		errMsg, maxAttempts, time.Now().Add(retryDelay), maxAttempts, time.Now(), id)
	return err
}

// ReleaseStuckJobs hands jobs back to the queue when their claim is older
// than olderThan. The cutoff runs on claimed_at, not scheduled_at: a job
// claimed long past its due time is still legitimately in flight.
func (s *SQLiteStore) ReleaseStuckJobs(olderThan time.Duration) (int64, error) {
	result, err := s.db.Exec(`
		UPDATE scrape_jobs SET status = 'pending', claimed_at = NULL
		WHERE status = 'processing' AND claimed_at < ?`,
		time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *SQLiteStore) PendingJobCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM scrape_jobs WHERE status = 'pending'`).Scan(&count)
	return count, err
}

// =============================================================================
// Runs and logs
// =============================================================================

func (s *SQLiteStore) CreateRun(run *models.ScrapeRun) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO scrape_runs (site_id, started_at, status, urls_discovered, jobs_scheduled, errors_count)
		VALUES (?, ?, ?, 0, 0, 0)`,
		run.SiteID, run.StartedAt, run.Status)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(run *models.ScrapeRun) error {
	_, err := s.db.Exec(`
		UPDATE scrape_runs SET finished_at = ?, status = ?, urls_discovered = ?,
			jobs_scheduled = ?, errors_count = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.URLsDiscovered, run.JobsScheduled, run.ErrorsCount, run.ID)
	return err
}

func (s *SQLiteStore) Log(runID *int64, level models.LogLevel, message, siteID string) error {
	_, err := s.db.Exec(`
		INSERT INTO scrape_logs (run_id, timestamp, level, message, site_id)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now(), level, message, siteID)
	return err
}

// =============================================================================
// Commands
// =============================================================================

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, params, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params sql.NullString
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt, &cmd.ProcessedAt); err != nil {
			return nil, err
		}
		if params.Valid {
			cmd.Params = json.RawMessage(params.String)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

func (s *SQLiteStore) ParseCommandParams(cmd *models.Command) (*models.CommandParams, error) {
	if cmd.Params == nil || string(cmd.Params) == "null" {
		return &models.CommandParams{}, nil
	}
	var params models.CommandParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return nil, err
	}
	return &params, nil
}
