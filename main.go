package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"ue_scraper/auth"
	"ue_scraper/browser"
	"ue_scraper/config"
	"ue_scraper/logging"
	"ue_scraper/scraper"
	"ue_scraper/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds everything a command needs. The SQLite store always carries the
// command queue; domain data goes to Postgres when DATABASE_URL is set.
type app struct {
	cfg     *config.Config
	ops     *storage.SQLiteStore
	store   storage.Gateway
	pg      *storage.PostgresStore
	orch    *scraper.Orchestrator
	logFile *logging.RotatingWriter
}

func newApp(ctx context.Context) (*app, error) {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	a := &app{cfg: cfg}
	a.logFile, err = logging.Setup(cfg.LogPath, logging.Options{MaxSize: 10 << 20, Backups: 3, Level: cfg.LogLevel})
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	}

	a.ops, err = storage.NewSQLiteStore(cfg.Database.DBPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	a.store = a.ops

	if cfg.Database.URL != "" {
		a.pg, err = storage.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.store = a.pg
		log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.Database.URL))
	} else {
		log.Printf("SQLite database: %s", cfg.Database.DBPath)
	}

	a.orch = scraper.NewOrchestrator(a.store, scraper.PlaywrightSessions, scraper.Options{
		LoginURL:      cfg.Portal.LoginURL,
		SearchURL:     cfg.Portal.SearchURL,
		TermDelay:     &cfg.Scraper.TermDelay,
		ScreenshotDir: cfg.Browser.ScreenshotDir,
		Browser:       browserConfig(cfg.Browser),
	})
	return a, nil
}

func browserConfig(c config.BrowserConfig) browser.Config {
	bc := browser.DefaultConfig()
	bc.Headless = c.Headless
	if c.Timeout > 0 {
		bc.Timeout = c.Timeout
	}
	bc.SlowMo = millis(c.SlowMoMS)
	return bc
}

// login signs the orchestrator in with the configured portal account.
func (a *app) login(ctx context.Context) error {
	creds := auth.Credentials{Email: a.cfg.Portal.Email, Password: a.cfg.Portal.Password}
	if creds.Empty() {
		return fmt.Errorf("portal credentials missing: set PORTAL_EMAIL and PORTAL_PASSWORD")
	}
	log.Printf("Logging in as %s", creds.Email)
	return a.orch.Initialize(ctx, creds)
}

func (a *app) Close() {
	if a.orch != nil {
		a.orch.Close()
	}
	if a.pg != nil {
		a.pg.Close()
	}
	if a.ops != nil {
		a.ops.Close()
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// maskConnectionString masks password in connection string for logging
func maskConnectionString(connStr string) string {
	start := strings.Index(connStr, "://")
	if start < 0 {
		return connStr
	}
	start += 3

	at := strings.LastIndex(connStr, "@")
	if at < start {
		return connStr
	}
	colon := strings.Index(connStr[start:at], ":")
	if colon < 0 {
		return connStr
	}
	return connStr[:start+colon+1] + "****" + connStr[at:]
}
