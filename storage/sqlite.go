package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"ue_scraper/models"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS terms (
		term_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		academic_year TEXT,
		is_active BOOLEAN DEFAULT TRUE,
		is_scraped BOOLEAN DEFAULT FALSE,
		program_count INTEGER DEFAULT 0,
		last_scraped_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS filter_fields (
		term_id TEXT PRIMARY KEY,
		universities JSON,
		programs JSON,
		degrees JSON,
		languages JSON,
		campuses JSON,
		last_updated DATETIME
	);

	CREATE TABLE IF NOT EXISTS programs (
		term_id TEXT NOT NULL,
		program_id TEXT NOT NULL,
		program_name TEXT,
		alternative_program_name TEXT,
		university_name TEXT,
		university_id TEXT,
		university_logo TEXT,
		program_degree TEXT,
		language TEXT,
		campus TEXT,
		tuition_fee REAL,
		discounted_tuition_fee REAL,
		currency TEXT,
		deposit_price REAL,
		prep_school_fee REAL,
		cash_payment_fee TEXT,
		quota_full BOOLEAN,
		semester TEXT,
		term_settings TEXT,
		academic_year TEXT,
		fingerprint TEXT,
		last_scraped DATETIME,
		is_active BOOLEAN DEFAULT TRUE,
		PRIMARY KEY (term_id, program_id)
	);

	CREATE TABLE IF NOT EXISTS scrape_jobs (
		id TEXT PRIMARY KEY,
		term_id TEXT NOT NULL,
		term_name TEXT,
		status TEXT NOT NULL,
		started_at DATETIME,
		completed_at DATETIME,
		programs_scraped INTEGER DEFAULT 0,
		error TEXT,
		current_page INTEGER DEFAULT 0,
		total_pages INTEGER DEFAULT 0,
		percentage INTEGER DEFAULT 0,
		initiated_by TEXT,
		created_at DATETIME,
		updated_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS job_logs (
		id INTEGER PRIMARY KEY,
		job_id TEXT NOT NULL REFERENCES scrape_jobs(id),
		timestamp DATETIME,
		level TEXT,
		message TEXT
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_terms_unscraped ON terms(is_scraped, created_at);
	CREATE INDEX IF NOT EXISTS idx_programs_university ON programs(term_id, university_id);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON scrape_jobs(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_term ON scrape_jobs(term_id, status);
	CREATE INDEX IF NOT EXISTS idx_logs_job ON job_logs(job_id, id);
	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// Terms
// =============================================================================

const termColumns = `term_id, name, COALESCE(academic_year, ''), is_active, is_scraped, program_count,
	last_scraped_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTerm(row rowScanner) (*models.Term, error) {
	var t models.Term
	var lastScraped sql.NullTime
	if err := row.Scan(&t.TermID, &t.Name, &t.AcademicYear, &t.IsActive, &t.IsScraped, &t.ProgramCount,
		&lastScraped, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if lastScraped.Valid {
		ts := lastScraped.Time
		t.LastScrapedAt = &ts
	}
	return &t, nil
}

// UpsertTerm inserts a newly discovered term or refreshes its name. Scrape
// state is never touched, so a rediscovered term keeps is_scraped.
func (s *SQLiteStore) UpsertTerm(ctx context.Context, t models.Term) (*models.Term, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO terms (term_id, name, academic_year, is_active, is_scraped, program_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, FALSE, 0, ?, ?)
		ON CONFLICT(term_id) DO UPDATE SET
			name = excluded.name,
			academic_year = excluded.academic_year,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		t.TermID, t.Name, t.AcademicYear, t.IsActive, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert term %s: %w", t.TermID, err)
	}
	return s.GetTerm(ctx, t.TermID)
}

func (s *SQLiteStore) GetTerm(ctx context.Context, termID string) (*models.Term, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+termColumns+` FROM terms WHERE term_id = ?`, termID)
	t, err := scanTerm(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *SQLiteStore) ListTerms(ctx context.Context) ([]models.Term, error) {
	return s.queryTerms(ctx, `SELECT `+termColumns+` FROM terms ORDER BY created_at DESC, rowid DESC`)
}

func (s *SQLiteStore) ListUnscrapedTerms(ctx context.Context) ([]models.Term, error) {
	return s.queryTerms(ctx, `SELECT `+termColumns+` FROM terms WHERE is_scraped = FALSE ORDER BY created_at DESC, rowid DESC`)
}

func (s *SQLiteStore) queryTerms(ctx context.Context, query string, args ...any) ([]models.Term, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var terms []models.Term
	for rows.Next() {
		t, err := scanTerm(rows)
		if err != nil {
			return nil, err
		}
		terms = append(terms, *t)
	}
	return terms, rows.Err()
}

func (s *SQLiteStore) MarkTermScraped(ctx context.Context, termID string, programCount int) (*models.Term, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE terms SET is_scraped = TRUE, program_count = ?, last_scraped_at = ?, updated_at = ?
		WHERE term_id = ?`, programCount, now, now, termID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetTerm(ctx, termID)
}

// =============================================================================
// Filter fields
// =============================================================================

func (s *SQLiteStore) ReplaceFilterFields(ctx context.Context, ff models.FilterFields) error {
	ff = ff.Dedupe()
	cols := make([]any, 0, 5)
	for _, list := range [][]string{ff.Universities, ff.Programs, ff.Degrees, ff.Languages, ff.Campuses} {
		b, err := json.Marshal(list)
		if err != nil {
			return err
		}
		cols = append(cols, string(b))
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO filter_fields (term_id, universities, programs, degrees, languages, campuses, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(term_id) DO UPDATE SET
			universities = excluded.universities,
			programs = excluded.programs,
			degrees = excluded.degrees,
			languages = excluded.languages,
			campuses = excluded.campuses,
			last_updated = excluded.last_updated`,
		ff.TermID, cols[0], cols[1], cols[2], cols[3], cols[4], time.Now().UTC())
	return err
}

func (s *SQLiteStore) GetFilterFields(ctx context.Context, termID string) (*models.FilterFields, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT term_id, universities, programs, degrees, languages, campuses, last_updated
		FROM filter_fields WHERE term_id = ?`, termID)

	var ff models.FilterFields
	var raw [5]string
	err := row.Scan(&ff.TermID, &raw[0], &raw[1], &raw[2], &raw[3], &raw[4], &ff.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	dests := []*[]string{&ff.Universities, &ff.Programs, &ff.Degrees, &ff.Languages, &ff.Campuses}
	for i, d := range dests {
		if err := json.Unmarshal([]byte(raw[i]), d); err != nil {
			return nil, fmt.Errorf("decode filter fields for %s: %w", termID, err)
		}
	}
	return &ff, nil
}

// =============================================================================
// Programs
// =============================================================================

// BulkUpsertPrograms writes programs keyed on (term_id, program_id) in one
// transaction. Rows that already existed count as modified.
func (s *SQLiteStore) BulkUpsertPrograms(ctx context.Context, programs []models.Program) (models.UpsertResult, error) {
	var res models.UpsertResult
	if len(programs) == 0 {
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	exists, err := tx.PrepareContext(ctx, `SELECT 1 FROM programs WHERE term_id = ? AND program_id = ?`)
	if err != nil {
		return res, err
	}
	defer exists.Close()

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO programs (term_id, program_id, program_name, alternative_program_name, university_name,
			university_id, university_logo, program_degree, language, campus, tuition_fee, discounted_tuition_fee,
			currency, deposit_price, prep_school_fee, cash_payment_fee, quota_full, semester, term_settings,
			academic_year, fingerprint, last_scraped, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(term_id, program_id) DO UPDATE SET
			program_name = excluded.program_name,
			alternative_program_name = excluded.alternative_program_name,
			university_name = excluded.university_name,
			university_id = excluded.university_id,
			university_logo = excluded.university_logo,
			program_degree = excluded.program_degree,
			language = excluded.language,
			campus = excluded.campus,
			tuition_fee = excluded.tuition_fee,
			discounted_tuition_fee = excluded.discounted_tuition_fee,
			currency = excluded.currency,
			deposit_price = excluded.deposit_price,
			prep_school_fee = excluded.prep_school_fee,
			cash_payment_fee = excluded.cash_payment_fee,
			quota_full = excluded.quota_full,
			semester = excluded.semester,
			term_settings = excluded.term_settings,
			academic_year = excluded.academic_year,
			fingerprint = excluded.fingerprint,
			last_scraped = excluded.last_scraped,
			is_active = excluded.is_active`)
	if err != nil {
		return res, err
	}
	defer upsert.Close()

	for _, p := range programs {
		var one int
		err := exists.QueryRowContext(ctx, p.TermID, p.ProgramID).Scan(&one)
		existed := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return res, err
		}

		if _, err := upsert.ExecContext(ctx,
			p.TermID, p.ProgramID, p.ProgramName, p.AlternativeProgramName, p.UniversityName,
			p.UniversityID, p.UniversityLogo, p.ProgramDegree, p.Language, p.Campus, p.TuitionFee, p.DiscountedTuitionFee,
			p.Currency, p.DepositPrice, p.PrepSchoolFee, p.CashPaymentFee, p.QuotaFull, p.Semester, p.TermSettings,
			p.AcademicYear, p.Fingerprint, p.LastScraped.UTC(), p.IsActive,
		); err != nil {
			return res, fmt.Errorf("upsert program %s/%s: %w", p.TermID, p.ProgramID, err)
		}

		if existed {
			res.ModifiedCount++
		} else {
			res.UpsertedCount++
		}
	}

	if err := tx.Commit(); err != nil {
		return models.UpsertResult{}, err
	}
	return res, nil
}

func (s *SQLiteStore) CountPrograms(ctx context.Context, termID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM programs WHERE term_id = ?`, termID).Scan(&n)
	return n, err
}

// =============================================================================
// Jobs
// =============================================================================

const jobColumns = `id, term_id, COALESCE(term_name, ''), status, started_at, completed_at, programs_scraped,
	COALESCE(error, ''), current_page, total_pages, percentage, COALESCE(initiated_by, ''), created_at, updated_at`

func scanJob(row rowScanner) (*models.Job, error) {
	var j models.Job
	var started, completed sql.NullTime
	if err := row.Scan(&j.ID, &j.TermID, &j.TermName, &j.Status, &started, &completed, &j.ProgramsScraped,
		&j.Error, &j.Progress.CurrentPage, &j.Progress.TotalPages, &j.Progress.Percentage, &j.InitiatedBy,
		&j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	if started.Valid {
		t := started.Time
		j.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

func (s *SQLiteStore) CreateJob(ctx context.Context, nj models.NewJob) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scrape_jobs (id, term_id, term_name, status, initiated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, nj.TermID, nj.TermName, models.JobStatusPending, nj.InitiatedBy, now, now)
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) AppendJobLog(ctx context.Context, jobID string, level models.LogLevel, message string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_logs (job_id, timestamp, level, message) VALUES (?, ?, ?, ?)`,
		jobID, now, level, message)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE scrape_jobs SET updated_at = ? WHERE id = ?`, now, jobID)
	return err
}

// SetJobStatus moves a job along its status machine. started_at is stamped on
// entering running, completed_at on entering a terminal status.
func (s *SQLiteStore) SetJobStatus(ctx context.Context, jobID string, status models.JobStatus, errMsg string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current models.JobStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM scrape_jobs WHERE id = ?`, jobID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := checkTransition(current, status); err != nil {
		return err
	}

	now := time.Now().UTC()
	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{status, now}
	if status == models.JobStatusRunning {
		sets = append(sets, "started_at = ?")
		args = append(args, now)
	}
	if status.IsTerminal() {
		sets = append(sets, "completed_at = ?")
		args = append(args, now)
	}
	if errMsg != "" {
		sets = append(sets, "error = ?")
		args = append(args, errMsg)
	}
	args = append(args, jobID)

	if _, err := tx.ExecContext(ctx, `UPDATE scrape_jobs SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) SetJobProgress(ctx context.Context, jobID string, p models.JobProgress) error {
	return s.updateJob(ctx, jobID, `current_page = ?, total_pages = ?, percentage = ?`, p.CurrentPage, p.TotalPages, p.Percentage)
}

func (s *SQLiteStore) SetJobProgramsScraped(ctx context.Context, jobID string, n int) error {
	return s.updateJob(ctx, jobID, `programs_scraped = ?`, n)
}

func (s *SQLiteStore) updateJob(ctx context.Context, jobID, set string, args ...any) error {
	args = append(args, time.Now().UTC(), jobID)
	res, err := s.db.ExecContext(ctx, `UPDATE scrape_jobs SET `+set+`, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM scrape_jobs WHERE id = ?`, jobID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	j.Logs, err = s.jobLogs(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (s *SQLiteStore) jobLogs(ctx context.Context, jobID string) ([]models.JobLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, timestamp, level, message FROM job_logs WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []models.JobLog{}
	for rows.Next() {
		var l models.JobLog
		if err := rows.Scan(&l.ID, &l.JobID, &l.Timestamp, &l.Level, &l.Message); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// ListJobs returns the most recent jobs first, without their logs.
func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM scrape_jobs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
}

func (s *SQLiteStore) ListActiveJobs(ctx context.Context) ([]models.Job, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM scrape_jobs WHERE status IN (?, ?) ORDER BY created_at`,
		models.JobStatusPending, models.JobStatusRunning)
}

// FindActiveJob returns the pending or running job for a term, or nil if none.
func (s *SQLiteStore) FindActiveJob(ctx context.Context, termID string) (*models.Job, error) {
	jobs, err := s.queryJobs(ctx, `SELECT `+jobColumns+` FROM scrape_jobs WHERE term_id = ? AND status IN (?, ?)
		ORDER BY created_at DESC LIMIT 1`, termID, models.JobStatusPending, models.JobStatusRunning)
	if err != nil || len(jobs) == 0 {
		return nil, err
	}
	return &jobs[0], nil
}

func (s *SQLiteStore) queryJobs(ctx context.Context, query string, args ...any) ([]models.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// =============================================================================
// Commands
// =============================================================================

func (s *SQLiteStore) EnqueueCommand(cmd models.CommandType, params models.CommandParams) (int64, error) {
	if !cmd.Valid() {
		return 0, fmt.Errorf("unknown command %q", cmd)
	}
	b, err := json.Marshal(params)
	if err != nil {
		return 0, err
	}
	res, err := s.db.Exec(`INSERT INTO commands (command, params, created_at) VALUES (?, ?, ?)`,
		cmd, string(b), time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, params, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at, id`)
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
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now().UTC(), id)
	return err
}

func ParseCommandParams(cmd *models.Command) (*models.CommandParams, error) {
	if cmd.Params == nil || string(cmd.Params) == "null" {
		return &models.CommandParams{}, nil
	}
	var params models.CommandParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return nil, err
	}
	return &params, nil
}
