package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"ue_scraper/config"
	"ue_scraper/models"
	"ue_scraper/scraper"
	"ue_scraper/search"
	"ue_scraper/storage"
)

const (
	commandPollInterval = 2 * time.Second
	schedulerUser       = "scheduler"
)

// Runner is the part of the orchestrator the scheduler drives.
type Runner interface {
	ScrapeAndSaveTerms(ctx context.Context, userID string) (string, error)
	StartScrapingForTerm(ctx context.Context, termID, userID string, opts *search.Options) (string, error)
	ScrapeAllUnscrapedTerms(ctx context.Context, userID string, opts *search.Options) ([]string, error)
	CancelJob(ctx context.Context, jobID string) error
}

type CommandQueue interface {
	GetPendingCommands() ([]models.Command, error)
	MarkCommandProcessed(id int64) error
}

// Triggerable allows workers to be triggered manually
type Triggerable interface {
	Trigger()
}

type Scheduler struct {
	cfg      *config.Config
	runner   Runner
	commands CommandQueue
	cron     *cron.Cron
	ticker   *time.Ticker
	stopCh   chan struct{}
	stopOnce sync.Once

	// running serializes scrape runs; a trigger that finds it held is skipped.
	running sync.Mutex
	wg      sync.WaitGroup

	reaper Triggerable
}

func New(cfg *config.Config, runner Runner, commands CommandQueue) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		runner:   runner,
		commands: commands,
		cron:     cron.New(),
		stopCh:   make(chan struct{}),
	}
}

// SetReaper registers the stale-job reaper, triggered after every batch.
func (s *Scheduler) SetReaper(w Triggerable) {
	s.reaper = w
}

func (s *Scheduler) Start(ctx context.Context) error {
	go s.pollCommands(ctx)

	if s.cfg.Scheduler.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Scheduler.Cron)
		_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
			s.RunBatch(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Scheduler.Interval > 0 {
		log.Printf("Starting scheduler with interval: %s", s.cfg.Scheduler.Interval)
		s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.RunBatch(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		log.Println("No schedule configured, daemon will only respond to commands")
	}

	return nil
}

// Stop halts triggers and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
	})
	s.wg.Wait()
}

// RunBatch syncs terms then scrapes every unscraped term. It returns false
// without doing anything when another run holds the lock.
func (s *Scheduler) RunBatch(ctx context.Context) bool {
	if !s.running.TryLock() {
		log.Println("Scrape already running, skipping scheduled batch")
		return false
	}
	defer s.running.Unlock()

	s.batch(ctx, schedulerUser, nil)
	return true
}

func (s *Scheduler) batch(ctx context.Context, userID string, opts *search.Options) {
	start := time.Now()
	if _, err := s.runner.ScrapeAndSaveTerms(ctx, userID); err != nil {
		log.Printf("Term sync error: %v", err)
	}

	jobIDs, err := s.runner.ScrapeAllUnscrapedTerms(ctx, userID, opts)
	if err != nil {
		log.Printf("Batch scrape error: %v", err)
	}
	log.Printf("Batch finished in %s: %d jobs", time.Since(start).Round(time.Second), len(jobIDs))

	if s.reaper != nil {
		s.reaper.Trigger()
	}
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(commandPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.ProcessCommands(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ProcessCommands handles every pending command once. Scrape commands run in
// the background; one that arrives while a run is active stays queued.
func (s *Scheduler) ProcessCommands(ctx context.Context) {
	cmds, err := s.commands.GetPendingCommands()
	if err != nil {
		log.Printf("Error getting commands: %v", err)
		return
	}

	for _, cmd := range cmds {
		log.Printf("Processing command: %s", cmd.Command)
		handled, err := s.handleCommand(ctx, &cmd)
		if err != nil {
			log.Printf("Command error: %v", err)
		}
		if !handled {
			continue
		}
		if err := s.commands.MarkCommandProcessed(cmd.ID); err != nil {
			log.Printf("Error marking command processed: %v", err)
		}
	}
}

// handleCommand reports whether cmd is done with (including failures that
// retrying would not fix).
func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) (bool, error) {
	params, err := storage.ParseCommandParams(cmd)
	if err != nil {
		return true, fmt.Errorf("command %d: bad params: %w", cmd.ID, err)
	}
	userID := params.InitiatedBy
	if userID == "" {
		userID = "command"
	}

	switch cmd.Command {
	case models.CmdCancelJob:
		if params.JobID == "" {
			return true, fmt.Errorf("command %d: cancel_job needs a job id", cmd.ID)
		}
		return true, s.runner.CancelJob(ctx, params.JobID)

	case models.CmdSyncTerms:
		return s.spawn(func() {
			if _, err := s.runner.ScrapeAndSaveTerms(ctx, userID); err != nil {
				log.Printf("Term sync error: %v", err)
			}
		}), nil

	case models.CmdScrapeTerm:
		if params.TermID == "" {
			return true, fmt.Errorf("command %d: scrape_term needs a term id", cmd.ID)
		}
		opts, err := s.profileOptions(params.Profile)
		if err != nil {
			return true, err
		}
		return s.spawn(func() {
			jobID, err := s.runner.StartScrapingForTerm(ctx, params.TermID, userID, opts)
			if err != nil {
				log.Printf("Scrape of term %s failed (job %s): %v", params.TermID, jobID, err)
				return
			}
			log.Printf("Scrape of term %s completed (job %s)", params.TermID, jobID)
		}), nil

	case models.CmdScrapeAll:
		opts, err := s.profileOptions(params.Profile)
		if err != nil {
			return true, err
		}
		return s.spawn(func() { s.batch(ctx, userID, opts) }), nil
	}

	return true, fmt.Errorf("unknown command: %s", cmd.Command)
}

// spawn starts fn in the background if no run is active.
func (s *Scheduler) spawn(fn func()) bool {
	if !s.running.TryLock() {
		log.Println("Scrape already running, command stays queued")
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Unlock()
		fn()
	}()
	return true
}

func (s *Scheduler) profileOptions(id string) (*search.Options, error) {
	if id == "" {
		return nil, nil
	}
	p, err := s.cfg.Profile(id)
	if err != nil {
		return nil, err
	}
	return scraper.ProfileOptions(p), nil
}

// Wait blocks until background runs started by commands have returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
