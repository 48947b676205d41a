package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ue_scraper/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS terms (
		term_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		academic_year TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_scraped BOOLEAN NOT NULL DEFAULT FALSE,
		program_count INTEGER NOT NULL DEFAULT 0,
		last_scraped_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS filter_fields (
		term_id TEXT PRIMARY KEY,
		universities TEXT[] NOT NULL DEFAULT '{}',
		programs TEXT[] NOT NULL DEFAULT '{}',
		degrees TEXT[] NOT NULL DEFAULT '{}',
		languages TEXT[] NOT NULL DEFAULT '{}',
		campuses TEXT[] NOT NULL DEFAULT '{}',
		last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS programs (
		term_id TEXT NOT NULL,
		program_id TEXT NOT NULL,
		program_name TEXT NOT NULL DEFAULT '',
		alternative_program_name TEXT NOT NULL DEFAULT '',
		university_name TEXT NOT NULL DEFAULT '',
		university_id TEXT NOT NULL DEFAULT '',
		university_logo TEXT NOT NULL DEFAULT '',
		program_degree TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		campus TEXT NOT NULL DEFAULT '',
		tuition_fee DOUBLE PRECISION NOT NULL DEFAULT 0,
		discounted_tuition_fee DOUBLE PRECISION NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT '',
		deposit_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		prep_school_fee DOUBLE PRECISION NOT NULL DEFAULT 0,
		cash_payment_fee TEXT NOT NULL DEFAULT '',
		quota_full BOOLEAN NOT NULL DEFAULT FALSE,
		semester TEXT NOT NULL DEFAULT '',
		term_settings TEXT NOT NULL DEFAULT '',
		academic_year TEXT NOT NULL DEFAULT '',
		fingerprint TEXT NOT NULL DEFAULT '',
		last_scraped TIMESTAMPTZ NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		PRIMARY KEY (term_id, program_id)
	);

	CREATE TABLE IF NOT EXISTS scrape_jobs (
		id TEXT PRIMARY KEY,
		term_id TEXT NOT NULL,
		term_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		programs_scraped INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		current_page INTEGER NOT NULL DEFAULT 0,
		total_pages INTEGER NOT NULL DEFAULT 0,
		percentage INTEGER NOT NULL DEFAULT 0,
		initiated_by TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS job_logs (
		id BIGSERIAL PRIMARY KEY,
		job_id TEXT NOT NULL REFERENCES scrape_jobs(id) ON DELETE CASCADE,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		level TEXT NOT NULL,
		message TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_terms_unscraped ON terms(is_scraped, created_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON scrape_jobs(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_term ON scrape_jobs(term_id, status);
	CREATE INDEX IF NOT EXISTS idx_logs_job ON job_logs(job_id, id);
	`)
	return err
}

// =============================================================================
// Terms
// =============================================================================

const pgTermColumns = `term_id, name, academic_year, is_active, is_scraped, program_count,
	last_scraped_at, created_at, updated_at`

func scanPgTerm(row pgx.Row) (*models.Term, error) {
	var t models.Term
	err := row.Scan(&t.TermID, &t.Name, &t.AcademicYear, &t.IsActive, &t.IsScraped, &t.ProgramCount,
		&t.LastScrapedAt, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) UpsertTerm(ctx context.Context, t models.Term) (*models.Term, error) {
	query := `
		INSERT INTO terms (term_id, name, academic_year, is_active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (term_id) DO UPDATE SET
			name = EXCLUDED.name,
			academic_year = EXCLUDED.academic_year,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
		RETURNING ` + pgTermColumns

	return scanPgTerm(s.pool.QueryRow(ctx, query, t.TermID, t.Name, t.AcademicYear, t.IsActive))
}

func (s *PostgresStore) GetTerm(ctx context.Context, termID string) (*models.Term, error) {
	return scanPgTerm(s.pool.QueryRow(ctx, `SELECT `+pgTermColumns+` FROM terms WHERE term_id = $1`, termID))
}

func (s *PostgresStore) ListTerms(ctx context.Context) ([]models.Term, error) {
	return s.queryTerms(ctx, `SELECT `+pgTermColumns+` FROM terms ORDER BY created_at DESC, term_id DESC`)
}

func (s *PostgresStore) ListUnscrapedTerms(ctx context.Context) ([]models.Term, error) {
	return s.queryTerms(ctx, `SELECT `+pgTermColumns+` FROM terms WHERE NOT is_scraped ORDER BY created_at DESC, term_id DESC`)
}

func (s *PostgresStore) queryTerms(ctx context.Context, query string, args ...any) ([]models.Term, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var terms []models.Term
	for rows.Next() {
		t, err := scanPgTerm(rows)
		if err != nil {
			return nil, err
		}
		terms = append(terms, *t)
	}
	return terms, rows.Err()
}

func (s *PostgresStore) MarkTermScraped(ctx context.Context, termID string, programCount int) (*models.Term, error) {
	query := `
		UPDATE terms SET is_scraped = TRUE, program_count = $2, last_scraped_at = NOW(), updated_at = NOW()
		WHERE term_id = $1
		RETURNING ` + pgTermColumns
	return scanPgTerm(s.pool.QueryRow(ctx, query, termID, programCount))
}

// =============================================================================
// Filter fields
// =============================================================================

func (s *PostgresStore) ReplaceFilterFields(ctx context.Context, ff models.FilterFields) error {
	ff = ff.Dedupe()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO filter_fields (term_id, universities, programs, degrees, languages, campuses, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (term_id) DO UPDATE SET
			universities = EXCLUDED.universities,
			programs = EXCLUDED.programs,
			degrees = EXCLUDED.degrees,
			languages = EXCLUDED.languages,
			campuses = EXCLUDED.campuses,
			last_updated = NOW()`,
		ff.TermID, ff.Universities, ff.Programs, ff.Degrees, ff.Languages, ff.Campuses)
	return err
}

func (s *PostgresStore) GetFilterFields(ctx context.Context, termID string) (*models.FilterFields, error) {
	var ff models.FilterFields
	err := s.pool.QueryRow(ctx, `
		SELECT term_id, universities, programs, degrees, languages, campuses, last_updated
		FROM filter_fields WHERE term_id = $1`, termID).Scan(
		&ff.TermID, &ff.Universities, &ff.Programs, &ff.Degrees, &ff.Languages, &ff.Campuses, &ff.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ff, nil
}

// =============================================================================
// Programs
// =============================================================================

// BulkUpsertPrograms sends one batch inside a transaction. xmax = 0 on the
// returned row marks a fresh insert.
func (s *PostgresStore) BulkUpsertPrograms(ctx context.Context, programs []models.Program) (models.UpsertResult, error) {
	var res models.UpsertResult
	if len(programs) == 0 {
		return res, nil
	}

	query := `
		INSERT INTO programs (term_id, program_id, program_name, alternative_program_name, university_name,
			university_id, university_logo, program_degree, language, campus, tuition_fee, discounted_tuition_fee,
			currency, deposit_price, prep_school_fee, cash_payment_fee, quota_full, semester, term_settings,
			academic_year, fingerprint, last_scraped, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT (term_id, program_id) DO UPDATE SET
			program_name = EXCLUDED.program_name,
			alternative_program_name = EXCLUDED.alternative_program_name,
			university_name = EXCLUDED.university_name,
			university_id = EXCLUDED.university_id,
			university_logo = EXCLUDED.university_logo,
			program_degree = EXCLUDED.program_degree,
			language = EXCLUDED.language,
			campus = EXCLUDED.campus,
			tuition_fee = EXCLUDED.tuition_fee,
			discounted_tuition_fee = EXCLUDED.discounted_tuition_fee,
			currency = EXCLUDED.currency,
			deposit_price = EXCLUDED.deposit_price,
			prep_school_fee = EXCLUDED.prep_school_fee,
			cash_payment_fee = EXCLUDED.cash_payment_fee,
			quota_full = EXCLUDED.quota_full,
			semester = EXCLUDED.semester,
			term_settings = EXCLUDED.term_settings,
			academic_year = EXCLUDED.academic_year,
			fingerprint = EXCLUDED.fingerprint,
			last_scraped = EXCLUDED.last_scraped,
			is_active = EXCLUDED.is_active
		RETURNING (xmax = 0)`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return res, err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, p := range programs {
		batch.Queue(query,
			p.TermID, p.ProgramID, p.ProgramName, p.AlternativeProgramName, p.UniversityName,
			p.UniversityID, p.UniversityLogo, p.ProgramDegree, p.Language, p.Campus, p.TuitionFee, p.DiscountedTuitionFee,
			p.Currency, p.DepositPrice, p.PrepSchoolFee, p.CashPaymentFee, p.QuotaFull, p.Semester, p.TermSettings,
			p.AcademicYear, p.Fingerprint, p.LastScraped, p.IsActive)
	}

	br := tx.SendBatch(ctx, batch)
	for _, p := range programs {
		var inserted bool
		if err := br.QueryRow().Scan(&inserted); err != nil {
			br.Close()
			return models.UpsertResult{}, fmt.Errorf("upsert program %s/%s: %w", p.TermID, p.ProgramID, err)
		}
		if inserted {
			res.UpsertedCount++
		} else {
			res.ModifiedCount++
		}
	}
	if err := br.Close(); err != nil {
		return models.UpsertResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.UpsertResult{}, err
	}
	return res, nil
}

func (s *PostgresStore) CountPrograms(ctx context.Context, termID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM programs WHERE term_id = $1`, termID).Scan(&n)
	return n, err
}

// =============================================================================
// Jobs
// =============================================================================

const pgJobColumns = `id, term_id, term_name, status, started_at, completed_at, programs_scraped, error,
	current_page, total_pages, percentage, initiated_by, created_at, updated_at`

func scanPgJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.TermID, &j.TermName, &j.Status, &j.StartedAt, &j.CompletedAt, &j.ProgramsScraped,
		&j.Error, &j.Progress.CurrentPage, &j.Progress.TotalPages, &j.Progress.Percentage, &j.InitiatedBy,
		&j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, nj models.NewJob) (string, error) {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scrape_jobs (id, term_id, term_name, status, initiated_by)
		VALUES ($1, $2, $3, $4, $5)`,
		id, nj.TermID, nj.TermName, string(models.JobStatusPending), nj.InitiatedBy)
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) AppendJobLog(ctx context.Context, jobID string, level models.LogLevel, message string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO job_logs (job_id, level, message) VALUES ($1, $2, $3)`,
		jobID, string(level), message)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `UPDATE scrape_jobs SET updated_at = NOW() WHERE id = $1`, jobID)
	return err
}

func (s *PostgresStore) SetJobStatus(ctx context.Context, jobID string, status models.JobStatus, errMsg string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM scrape_jobs WHERE id = $1 FOR UPDATE`, jobID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := checkTransition(models.JobStatus(current), status); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE scrape_jobs SET
			status = $2,
			started_at = CASE WHEN $3 THEN NOW() ELSE started_at END,
			completed_at = CASE WHEN $4 THEN NOW() ELSE completed_at END,
			error = CASE WHEN $5 <> '' THEN $5 ELSE error END,
			updated_at = NOW()
		WHERE id = $1`,
		jobID, string(status), status == models.JobStatusRunning, status.IsTerminal(), errMsg)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) SetJobProgress(ctx context.Context, jobID string, p models.JobProgress) error {
	return s.updateJob(ctx, `UPDATE scrape_jobs SET current_page = $2, total_pages = $3, percentage = $4, updated_at = NOW()
		WHERE id = $1`, jobID, p.CurrentPage, p.TotalPages, p.Percentage)
}

func (s *PostgresStore) SetJobProgramsScraped(ctx context.Context, jobID string, n int) error {
	return s.updateJob(ctx, `UPDATE scrape_jobs SET programs_scraped = $2, updated_at = NOW() WHERE id = $1`, jobID, n)
}

func (s *PostgresStore) updateJob(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	j, err := scanPgJob(s.pool.QueryRow(ctx, `SELECT `+pgJobColumns+` FROM scrape_jobs WHERE id = $1`, jobID))
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, timestamp, level, message FROM job_logs WHERE job_id = $1 ORDER BY id`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	j.Logs = []models.JobLog{}
	for rows.Next() {
		var l models.JobLog
		var level string
		if err := rows.Scan(&l.ID, &l.JobID, &l.Timestamp, &level, &l.Message); err != nil {
			return nil, err
		}
		l.Level = models.LogLevel(level)
		j.Logs = append(j.Logs, l)
	}
	return j, rows.Err()
}

func (s *PostgresStore) ListJobs(ctx context.Context, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryJobs(ctx, `SELECT `+pgJobColumns+` FROM scrape_jobs ORDER BY created_at DESC LIMIT $1`, limit)
}

func (s *PostgresStore) ListActiveJobs(ctx context.Context) ([]models.Job, error) {
	return s.queryJobs(ctx, `SELECT `+pgJobColumns+` FROM scrape_jobs WHERE status IN ('pending', 'running') ORDER BY created_at`)
}

func (s *PostgresStore) FindActiveJob(ctx context.Context, termID string) (*models.Job, error) {
	jobs, err := s.queryJobs(ctx, `SELECT `+pgJobColumns+` FROM scrape_jobs
		WHERE term_id = $1 AND status IN ('pending', 'running') ORDER BY created_at DESC LIMIT 1`, termID)
	if err != nil || len(jobs) == 0 {
		return nil, err
	}
	return &jobs[0], nil
}

func (s *PostgresStore) queryJobs(ctx context.Context, query string, args ...any) ([]models.Job, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		j, err := scanPgJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}
