package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"ue_scraper/auth"
	"ue_scraper/browser"
	"ue_scraper/identity"
	"ue_scraper/models"
	"ue_scraper/search"
	"ue_scraper/storage"
)

var (
	ErrJobConflict    = errors.New("a scrape job is already active for this term")
	ErrNotInitialized = errors.New("orchestrator not initialized, call Initialize first")
)

const (
	DefaultTermDelay = 5 * time.Second
	DefaultJobLimit  = 50

	discoveryJobName = "Term discovery"
)

type Options struct {
	LoginURL      string
	SearchURL     string
	TermDelay     *time.Duration // pause between batch terms; nil uses DefaultTermDelay, zero disables it
	ScreenshotDir string
	Browser       browser.Config
}

// Orchestrator turns portal sessions into tracked jobs. It runs one operation
// at a time and never shares a session between runs.
type Orchestrator struct {
	store      storage.Gateway
	newSession SessionFactory
	opts       Options

	termDelay time.Duration

	run     sync.Mutex
	creds   *auth.Credentials
	cookies []browser.Cookie
	session browser.Controller
}

func NewOrchestrator(store storage.Gateway, factory SessionFactory, opts Options) *Orchestrator {
	if factory == nil {
		factory = PlaywrightSessions
	}
	delay := DefaultTermDelay
	if opts.TermDelay != nil {
		delay = max(*opts.TermDelay, 0)
	}
	if opts.Browser.Timeout == 0 {
		opts.Browser = browser.DefaultConfig()
	}
	return &Orchestrator{store: store, newSession: factory, opts: opts, termDelay: delay}
}

// Initialize opens a session and signs in. On success the credentials and
// session cookies are kept for later sessions; the live session is used by
// the next operation.
func (o *Orchestrator) Initialize(ctx context.Context, creds auth.Credentials) error {
	o.run.Lock()
	defer o.run.Unlock()

	o.release()
	o.creds = nil
	o.cookies = nil
	page, err := o.openSession(creds)
	if err != nil {
		return err
	}
	o.creds = &creds
	o.session = page
	log.Println("Scraper initialized and logged in")
	return nil
}

func (o *Orchestrator) openSession(creds auth.Credentials) (browser.Controller, error) {
	page := o.newSession(o.opts.Browser)
	if err := page.Initialize(); err != nil {
		page.Close()
		return nil, err
	}

	a := auth.NewAuthenticator(page, creds, auth.Options{LoginURL: o.opts.LoginURL})
	if len(o.cookies) > 0 {
		ok, err := a.Resume(o.cookies, o.searchURL())
		if err != nil {
			log.Printf("Warning: could not resume session: %v", err)
		}
		if ok {
			return page, nil
		}
	}
	if _, err := a.Login(); err != nil {
		page.Close()
		return nil, err
	}

	cookies, err := page.GetCookies()
	if err != nil {
		log.Printf("Warning: could not save session cookies: %v", err)
		cookies = nil
	}
	o.cookies = cookies
	return page, nil
}

func (o *Orchestrator) searchURL() string {
	if o.opts.SearchURL != "" {
		return o.opts.SearchURL
	}
	return search.DefaultSearchURL
}

// acquire returns the live session or opens a fresh one, resuming the saved
// cookies when the portal still accepts them and signing in otherwise.
func (o *Orchestrator) acquire() (browser.Controller, error) {
	if o.session != nil && o.session.IsReady() {
		return o.session, nil
	}
	if o.creds == nil {
		return nil, ErrNotInitialized
	}
	page, err := o.openSession(*o.creds)
	if err != nil {
		return nil, err
	}
	o.session = page
	return page, nil
}

func (o *Orchestrator) release() {
	if o.session == nil {
		return
	}
	if err := o.session.Close(); err != nil {
		log.Printf("Warning: failed to close session: %v", err)
	}
	o.session = nil
}

func (o *Orchestrator) driver(page browser.Controller) *search.Driver {
	return search.NewDriver(page, search.Config{
		SearchURL:     o.opts.SearchURL,
		ScreenshotDir: o.opts.ScreenshotDir,
	})
}

// ===== Term discovery =====

// ScrapeAndSaveTerms lists the intake terms offered by the portal and upserts
// them. The returned job id is valid even when err is not nil.
func (o *Orchestrator) ScrapeAndSaveTerms(ctx context.Context, userID string) (string, error) {
	o.run.Lock()
	defer o.run.Unlock()
	defer o.release()

	if o.creds == nil {
		return "", ErrNotInitialized
	}

	jobID, err := o.startJob(ctx, models.NewJob{TermID: models.TermIDNone, TermName: discoveryJobName, InitiatedBy: userID})
	if err != nil {
		return jobID, err
	}
	o.log(ctx, jobID, models.LogLevelInfo, "Starting term discovery")

	n, err := o.syncTerms(ctx, jobID)
	if err != nil {
		return jobID, o.fail(ctx, jobID, err)
	}

	o.log(ctx, jobID, models.LogLevelInfo, fmt.Sprintf("Saved %d terms", n))
	o.finish(ctx, jobID)
	return jobID, nil
}

func (o *Orchestrator) syncTerms(ctx context.Context, jobID string) (int, error) {
	page, err := o.acquire()
	if err != nil {
		return 0, err
	}
	d := o.driver(page)
	if err := d.NavigateToProgramSearch(); err != nil {
		return 0, err
	}

	options, err := d.ListTerms()
	if err != nil {
		return 0, err
	}

	saved := 0
	for _, opt := range options {
		if opt.Value == "" {
			continue
		}
		_, err := o.store.UpsertTerm(ctx, models.Term{
			TermID:       opt.Value,
			Name:         opt.Label,
			AcademicYear: identity.AcademicYear(opt.Label),
			IsActive:     true,
		})
		if err != nil {
			return saved, fmt.Errorf("save term %s: %w", opt.Value, err)
		}
		saved++
	}
	o.log(ctx, jobID, models.LogLevelInfo, fmt.Sprintf("Found %d terms on the portal", len(options)))
	return saved, nil
}

// ===== Term scraping =====

// StartScrapingForTerm scrapes every program of one term. A job is created
// before any browser work, so the returned id is valid whenever it is not
// empty, even alongside an error.
func (o *Orchestrator) StartScrapingForTerm(ctx context.Context, termID, userID string, opts *search.Options) (string, error) {
	o.run.Lock()
	defer o.run.Unlock()
	return o.scrapeTerm(ctx, termID, userID, opts)
}

func (o *Orchestrator) scrapeTerm(ctx context.Context, termID, userID string, opts *search.Options) (string, error) {
	defer o.release()

	if o.creds == nil {
		return "", ErrNotInitialized
	}

	term, err := o.store.GetTerm(ctx, termID)
	if err != nil {
		return "", fmt.Errorf("term %s: %w", termID, err)
	}

	active, err := o.store.FindActiveJob(ctx, termID)
	if err != nil {
		return "", err
	}
	if active != nil {
		return "", fmt.Errorf("%w: job %s is %s", ErrJobConflict, active.ID, active.Status)
	}

	jobID, err := o.startJob(ctx, models.NewJob{TermID: term.TermID, TermName: term.Name, InitiatedBy: userID})
	if err != nil {
		return jobID, err
	}
	o.log(ctx, jobID, models.LogLevelInfo, fmt.Sprintf("Starting scrape for term %s", term.Name))

	res, err := o.scrape(ctx, jobID, term, opts)
	if err != nil {
		return jobID, o.fail(ctx, jobID, err)
	}

	o.log(ctx, jobID, models.LogLevelInfo,
		fmt.Sprintf("Completed: %d programs saved (%d new, %d updated)", res.count, res.upsert.UpsertedCount, res.upsert.ModifiedCount))
	o.finish(ctx, jobID)
	return jobID, nil
}

type scrapeOutcome struct {
	count  int
	upsert models.UpsertResult
}

func (o *Orchestrator) scrape(ctx context.Context, jobID string, term *models.Term, opts *search.Options) (*scrapeOutcome, error) {
	page, err := o.acquire()
	if err != nil {
		return nil, err
	}
	d := o.driver(page)

	if err := d.NavigateToProgramSearch(); err != nil {
		return nil, err
	}
	if _, err := d.SelectTerm(term.Name); err != nil {
		return nil, err
	}

	ff, err := d.GetFilterFields()
	if err != nil {
		return nil, err
	}
	if err := o.store.ReplaceFilterFields(ctx, models.FilterFields{
		TermID:       term.TermID,
		Universities: ff.Universities,
		Programs:     ff.Programs,
		Degrees:      ff.Degrees,
		Languages:    ff.Languages,
		Campuses:     ff.Campuses,
	}); err != nil {
		return nil, fmt.Errorf("save filter fields: %w", err)
	}
	o.log(ctx, jobID, models.LogLevelInfo, fmt.Sprintf("Saved filter fields: %d universities, %d programs",
		len(ff.Universities), len(ff.Programs)))

	result, err := d.ScrapeAllPrograms(opts, func(current, total int) {
		if err := o.store.SetJobProgress(ctx, jobID, models.NewJobProgress(current, total)); err != nil {
			log.Printf("Warning: failed to update progress for job %s: %v", jobID, err)
		}
		o.log(ctx, jobID, models.LogLevelInfo, fmt.Sprintf("Scraped page %d of %d", current, total))
	})
	if err != nil {
		return nil, err
	}

	programs := Normalize(result.Programs, term, result.Timestamp)
	if dropped := len(result.Programs) - len(programs); dropped > 0 {
		o.log(ctx, jobID, models.LogLevelWarn, fmt.Sprintf("Dropped %d cards without id or duplicated", dropped))
	}

	upsert, err := o.store.BulkUpsertPrograms(ctx, programs)
	if err != nil {
		return nil, fmt.Errorf("save programs: %w", err)
	}
	if err := o.store.SetJobProgramsScraped(ctx, jobID, len(programs)); err != nil {
		return nil, err
	}
	if _, err := o.store.MarkTermScraped(ctx, term.TermID, len(programs)); err != nil {
		return nil, fmt.Errorf("mark term scraped: %w", err)
	}
	return &scrapeOutcome{count: len(programs), upsert: upsert}, nil
}

// ScrapeAllUnscrapedTerms scrapes each unscraped term in turn with a fresh
// session. A failing term is logged and skipped. Cancelling ctx stops the
// batch between terms and returns the ids collected so far.
func (o *Orchestrator) ScrapeAllUnscrapedTerms(ctx context.Context, userID string, opts *search.Options) ([]string, error) {
	o.run.Lock()
	defer o.run.Unlock()

	if o.creds == nil {
		return nil, ErrNotInitialized
	}

	terms, err := o.store.ListUnscrapedTerms(ctx)
	if err != nil {
		return nil, err
	}
	log.Printf("Found %d unscraped terms", len(terms))

	var jobIDs []string
	for i, term := range terms {
		if i > 0 && o.termDelay > 0 {
			select {
			case <-ctx.Done():
				return jobIDs, ctx.Err()
			case <-time.After(o.termDelay):
			}
		}
		if err := ctx.Err(); err != nil {
			return jobIDs, err
		}

		log.Printf("Scraping term %d/%d: %s", i+1, len(terms), term.Name)
		jobID, err := o.scrapeTerm(ctx, term.TermID, userID, opts)
		if jobID != "" {
			jobIDs = append(jobIDs, jobID)
		}
		if err != nil {
			log.Printf("Error scraping term %s: %v", term.Name, err)
		}
	}
	return jobIDs, nil
}

// ===== Jobs =====

func (o *Orchestrator) GetJobStatus(ctx context.Context, jobID string) (*models.Job, error) {
	return o.store.GetJob(ctx, jobID)
}

func (o *Orchestrator) GetAllJobs(ctx context.Context, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = DefaultJobLimit
	}
	return o.store.ListJobs(ctx, limit)
}

func (o *Orchestrator) GetAllTerms(ctx context.Context) ([]models.Term, error) {
	return o.store.ListTerms(ctx)
}

// CancelJob marks a pending or running job cancelled. Browser steps already in
// flight are not interrupted; the run's own final status write is then refused.
func (o *Orchestrator) CancelJob(ctx context.Context, jobID string) error {
	if err := o.store.SetJobStatus(ctx, jobID, models.JobStatusCancelled, ""); err != nil {
		return err
	}
	o.log(ctx, jobID, models.LogLevelWarn, "Job cancelled by operator")
	return nil
}

func (o *Orchestrator) Close() error {
	o.run.Lock()
	defer o.run.Unlock()
	o.release()
	return nil
}

func (o *Orchestrator) startJob(ctx context.Context, nj models.NewJob) (string, error) {
	jobID, err := o.store.CreateJob(ctx, nj)
	if err != nil {
		return "", err
	}
	if err := o.store.SetJobStatus(ctx, jobID, models.JobStatusRunning, ""); err != nil {
		return jobID, err
	}
	return jobID, nil
}

func (o *Orchestrator) finish(ctx context.Context, jobID string) {
	if err := o.store.SetJobStatus(ctx, jobID, models.JobStatusCompleted, ""); err != nil {
		o.statusWarning(jobID, err)
	}
}

// fail records err on the job and returns it unchanged.
func (o *Orchestrator) fail(ctx context.Context, jobID string, err error) error {
	o.log(ctx, jobID, models.LogLevelError, err.Error())
	if serr := o.store.SetJobStatus(ctx, jobID, models.JobStatusFailed, err.Error()); serr != nil {
		o.statusWarning(jobID, serr)
	}
	return err
}

func (o *Orchestrator) statusWarning(jobID string, err error) {
	if errors.Is(err, storage.ErrInvalidTransition) {
		log.Printf("Job %s was already finalized (cancelled?): %v", jobID, err)
		return
	}
	log.Printf("Warning: failed to update status for job %s: %v", jobID, err)
}

func (o *Orchestrator) log(ctx context.Context, jobID string, level models.LogLevel, message string) {
	log.Printf("[%s] job %s: %s", level, jobID, message)
	if err := o.store.AppendJobLog(ctx, jobID, level, message); err != nil {
		log.Printf("Warning: failed to append log for job %s: %v", jobID, err)
	}
}
