package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ue_scraper/browser"
	"ue_scraper/models"
	"ue_scraper/scheduler"
	"ue_scraper/scraper"
	"ue_scraper/search"
	"ue_scraper/storage"
	"ue_scraper/workers"
)

const cliUser = "cli"

var rootCmd = &cobra.Command{
	Use:           "ue_scraper",
	Short:         "Scrapes the United Education partner portal program catalog.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// withApp opens the stores for one command and closes them afterwards.
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a, args)
	}
}

var termsCmd = &cobra.Command{
	Use:   "terms",
	Short: "Discover and list intake terms.",
}

var termsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Log in and save the terms currently offered by the portal.",
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		if err := a.login(ctx); err != nil {
			return err
		}
		jobID, err := a.orch.ScrapeAndSaveTerms(ctx, cliUser)
		printJobResult(ctx, a, jobID)
		return err
	}),
}

var termsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known terms.",
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		terms, err := a.orch.GetAllTerms(ctx)
		if err != nil {
			return err
		}
		renderTerms(os.Stdout, terms)
		return nil
	}),
}

var (
	scrapeTerm    string
	scrapeProfile string
	scrapeFilters search.Options
	minPrice      float64
	maxPrice      float64
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape --term <id> [--profile <id>] [filters]",
	Short: "Scrape every program of one term.",
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		opts, err := searchOptions(a, scrapeProfile)
		if err != nil {
			return err
		}
		if err := a.login(ctx); err != nil {
			return err
		}
		jobID, err := a.orch.StartScrapingForTerm(ctx, scrapeTerm, cliUser, opts)
		printJobResult(ctx, a, jobID)
		return err
	}),
}

var scrapeAllCmd = &cobra.Command{
	Use:   "scrape-all [--profile <id>]",
	Short: "Scrape every term that has not been scraped yet.",
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		opts, err := searchOptions(a, scrapeProfile)
		if err != nil {
			return err
		}
		if err := a.login(ctx); err != nil {
			return err
		}
		jobIDs, err := a.orch.ScrapeAllUnscrapedTerms(ctx, cliUser, opts)
		for _, id := range jobIDs {
			printJobResult(ctx, a, id)
		}
		return err
	}),
}

// searchOptions merges a profile with explicit filter flags; flags win.
func searchOptions(a *app, profileID string) (*search.Options, error) {
	opts := &search.Options{}
	if profileID != "" {
		p, err := a.cfg.Profile(profileID)
		if err != nil {
			return nil, err
		}
		if po := scraper.ProfileOptions(p); po != nil {
			opts = po
		}
	}
	type override struct {
		dst *string
		v   string
	}
	for _, f := range []override{
		{&opts.University, scrapeFilters.University},
		{&opts.Program, scrapeFilters.Program},
		{&opts.Degree, scrapeFilters.Degree},
		{&opts.Language, scrapeFilters.Language},
		{&opts.Campus, scrapeFilters.Campus},
	} {
		if f.v != "" {
			*f.dst = f.v
		}
	}
	if minPrice > 0 {
		v := minPrice
		opts.MinPrice = &v
	}
	if maxPrice > 0 {
		v := maxPrice
		opts.MaxPrice = &v
	}
	if opts.Empty() {
		return nil, nil
	}
	return opts, nil
}

var jobsLimit int

var jobsCmd = &cobra.Command{
	Use:   "jobs [--limit N]",
	Short: "List recent scrape jobs.",
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		jobs, err := a.orch.GetAllJobs(ctx, jobsLimit)
		if err != nil {
			return err
		}
		renderJobs(os.Stdout, jobs)
		return nil
	}),
}

var jobCmd = &cobra.Command{
	Use:   "job <id>",
	Short: "Show one job with its log as JSON.",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		job, err := a.orch.GetJobStatus(ctx, args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	}),
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Mark a pending or running job cancelled.",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		if err := a.orch.CancelJob(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Job %s cancelled\n", args[0])
		return nil
	}),
}

var enqueueParams models.CommandParams

var enqueueCmd = &cobra.Command{
	Use:       "enqueue <sync_terms|scrape_term|scrape_all|cancel_job>",
	Short:     "Queue a command for a running daemon.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(models.CmdSyncTerms), string(models.CmdScrapeTerm), string(models.CmdScrapeAll), string(models.CmdCancelJob)},
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		params := enqueueParams
		params.InitiatedBy = cliUser
		id, err := a.ops.EnqueueCommand(models.CommandType(args[0]), params)
		if err != nil {
			return err
		}
		fmt.Printf("Queued command %d (%s)\n", id, args[0])
		return nil
	}),
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run scheduled batches, background workers and the command queue.",
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		if err := a.login(ctx); err != nil {
			return err
		}

		sched := scheduler.New(a.cfg, a.orch, a.ops)

		reaper := workers.NewReaperWorker(a.store, a.cfg.Scraper.StaleJobAfter)
		go reaper.Run(ctx, 15*time.Minute)
		sched.SetReaper(reaper)
		log.Println("Reaper worker started")

		var uploader workers.Uploader = workers.NoOpUploader{}
		if a.cfg.S3.Enabled() {
			s3, err := storage.NewS3Uploader(ctx, a.cfg.S3)
			if err != nil {
				return err
			}
			uploader = s3
			log.Printf("Uploading screenshots to bucket %s", a.cfg.S3.Bucket)
		}
		go workers.NewArtifactWorker(a.cfg.Browser.ScreenshotDir, uploader).Run(ctx, 2*time.Minute)

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		log.Println("Daemon running. Press Ctrl+C to stop.")

		<-ctx.Done()
		log.Println("Shutting down...")
		sched.Stop()
		log.Println("Goodbye!")
		return nil
	}),
}

var installBrowserCmd = &cobra.Command{
	Use:   "install-browser",
	Short: "Download the Chromium build used for scraping.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return browser.Install()
	},
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeTerm, "term", "", "term id to scrape")
	scrapeCmd.MarkFlagRequired("term")
	for _, c := range []*cobra.Command{scrapeCmd, scrapeAllCmd} {
		c.Flags().StringVar(&scrapeProfile, "profile", "", "search profile id from the profiles dir")
	}
	scrapeCmd.Flags().StringVar(&scrapeFilters.University, "university", "", "university filter")
	scrapeCmd.Flags().StringVar(&scrapeFilters.Program, "program", "", "program filter")
	scrapeCmd.Flags().StringVar(&scrapeFilters.Degree, "degree", "", "degree filter")
	scrapeCmd.Flags().StringVar(&scrapeFilters.Language, "language", "", "language filter")
	scrapeCmd.Flags().StringVar(&scrapeFilters.Campus, "campus", "", "campus filter")
	scrapeCmd.Flags().Float64Var(&minPrice, "min-price", 0, "minimum tuition")
	scrapeCmd.Flags().Float64Var(&maxPrice, "max-price", 0, "maximum tuition")

	jobsCmd.Flags().IntVar(&jobsLimit, "limit", scraper.DefaultJobLimit, "number of jobs to show")

	enqueueCmd.Flags().StringVar(&enqueueParams.TermID, "term", "", "term id (scrape_term)")
	enqueueCmd.Flags().StringVar(&enqueueParams.JobID, "job", "", "job id (cancel_job)")
	enqueueCmd.Flags().StringVar(&enqueueParams.Profile, "profile", "", "search profile id")

	termsCmd.AddCommand(termsSyncCmd, termsListCmd)
	rootCmd.AddCommand(termsCmd, scrapeCmd, scrapeAllCmd, jobsCmd, jobCmd, cancelCmd, enqueueCmd, daemonCmd, installBrowserCmd)
}

func printJobResult(ctx context.Context, a *app, jobID string) {
	if jobID == "" {
		return
	}
	job, err := a.orch.GetJobStatus(ctx, jobID)
	if err != nil {
		fmt.Printf("Job %s\n", jobID)
		return
	}
	line := fmt.Sprintf("Job %s [%s] %s: %s, %d programs", job.ID, job.TermID, job.TermName, job.Status, job.ProgramsScraped)
	if job.Error != "" {
		line += " (" + strings.TrimSpace(job.Error) + ")"
	}
	fmt.Println(line)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
