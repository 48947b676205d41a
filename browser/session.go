package browser

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"ue_scraper/scrapeerr"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

type Config struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
	AcceptLanguage string
	SlowMo         time.Duration
	Args           []string
}

func DefaultConfig() Config {
	return Config{
		Headless:       true,
		Timeout:        defaultTimeout,
		ViewportWidth:  1366,
		ViewportHeight: 768,
		UserAgent:      defaultUserAgent,
		AcceptLanguage: "en-US,en;q=0.9",
		Args: []string{
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
		},
	}
}

type state int

const (
	stateUninitialized state = iota
	stateReady
	stateClosed
)

// Session owns one Chromium process and one page. It is not shared between runs.
type Session struct {
	cfg Config

	mu      sync.Mutex
	state   state
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
}

var _ Controller = (*Session)(nil)

func NewSession(cfg Config) *Session {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ViewportWidth <= 0 || cfg.ViewportHeight <= 0 {
		cfg.ViewportWidth, cfg.ViewportHeight = def.ViewportWidth, def.ViewportHeight
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = def.AcceptLanguage
	}
	if len(cfg.Args) == 0 {
		cfg.Args = def.Args
	}
	return &Session{cfg: cfg}
}

// Install downloads the Chromium build the driver expects.
func Install() error {
	return playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}})
}

func (s *Session) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateReady {
		log.Println("Browser already initialized")
		return nil
	}

	log.Printf("Launching browser (headless=%t, timeout=%s)", s.cfg.Headless, s.cfg.Timeout)

	var err error
	s.pw, err = playwright.Run()
	if err != nil {
		return scrapeerr.Initialization("failed to start playwright", err)
	}

	s.browser, err = s.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(s.cfg.Headless),
		SlowMo:   playwright.Float(float64(s.cfg.SlowMo.Milliseconds())),
		Args:     s.cfg.Args,
	})
	if err != nil {
		s.releaseLocked()
		return scrapeerr.Initialization("failed to launch browser", err)
	}

	s.context, err = s.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport:  &playwright.Size{Width: s.cfg.ViewportWidth, Height: s.cfg.ViewportHeight},
		UserAgent: playwright.String(s.cfg.UserAgent),
		ExtraHttpHeaders: map[string]string{
			"Accept-Language": s.cfg.AcceptLanguage,
		},
	})
	if err != nil {
		s.releaseLocked()
		return scrapeerr.Initialization("failed to create browser context", err)
	}

	s.page, err = s.context.NewPage()
	if err != nil {
		s.releaseLocked()
		return scrapeerr.Initialization("failed to create page", err)
	}

	ms := float64(s.cfg.Timeout.Milliseconds())
	s.page.SetDefaultTimeout(ms)
	s.page.SetDefaultNavigationTimeout(ms)

	s.state = stateReady
	log.Println("Browser initialized")
	return nil
}

func (s *Session) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateReady
}

func (s *Session) Timeout() time.Duration {
	return s.cfg.Timeout
}

// Close releases page, context, browser and driver. Safe to call repeatedly.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed && s.pw == nil {
		return nil
	}
	err := s.releaseLocked()
	s.state = stateClosed
	if err != nil {
		log.Printf("Browser teardown reported: %v", err)
	}
	return nil
}

func (s *Session) releaseLocked() error {
	var errs []error
	if s.page != nil {
		if err := s.page.Close(); err != nil {
			errs = append(errs, err)
		}
		s.page = nil
	}
	if s.context != nil {
		if err := s.context.Close(); err != nil {
			errs = append(errs, err)
		}
		s.context = nil
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, err)
		}
		s.browser = nil
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, err)
		}
		s.pw = nil
	}
	return errors.Join(errs...)
}

func (s *Session) activePage() (playwright.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateReady || s.page == nil {
		return nil, scrapeerr.Initialization("browser not initialized, call Initialize first", nil)
	}
	return s.page, nil
}

func (s *Session) ms(d time.Duration) *float64 {
	if d <= 0 {
		d = s.cfg.Timeout
	}
	return playwright.Float(float64(d.Milliseconds()))
}

func isTimeout(err error) bool {
	return errors.Is(err, playwright.ErrTimeout)
}

func (s *Session) NavigateTo(url string, waitUntil WaitUntil) error {
	page, err := s.activePage()
	if err != nil {
		return err
	}

	log.Printf("Navigating to: %s", url)
	_, err = page.Goto(url, playwright.PageGotoOptions{
		Timeout:   s.ms(0),
		WaitUntil: waitUntilState(waitUntil),
	})
	if err != nil {
		return scrapeerr.Navigation(fmt.Sprintf("Failed to navigate to %s", url), err)
	}
	return nil
}

func waitUntilState(w WaitUntil) *playwright.WaitUntilState {
	switch w {
	case WaitDOMContentLoaded:
		return playwright.WaitUntilStateDomcontentloaded
	case WaitNetworkIdle:
		return playwright.WaitUntilStateNetworkidle
	default:
		return playwright.WaitUntilStateLoad
	}
}

func (s *Session) WaitForSelector(selector string, opts WaitOptions) error {
	page, err := s.activePage()
	if err != nil {
		return err
	}

	st := playwright.WaitForSelectorStateAttached
	if opts.Visible {
		st = playwright.WaitForSelectorStateVisible
	}
	err = page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   st,
		Timeout: s.ms(opts.Timeout),
	})
	if err != nil {
		return scrapeerr.ElementNotFound(fmt.Sprintf("Element not found: %s", selector), err)
	}
	return nil
}

const textPredicate = `([sel, txt]) => {
	const el = document.querySelector(sel);
	return !!el && (el.textContent || "").includes(txt);
}`

func (s *Session) WaitForText(selector, text string, timeout time.Duration) error {
	page, err := s.activePage()
	if err != nil {
		return err
	}

	_, err = page.WaitForFunction(textPredicate, []interface{}{selector, text}, playwright.PageWaitForFunctionOptions{
		Timeout: s.ms(timeout),
	})
	if err != nil {
		return scrapeerr.Timeout(fmt.Sprintf("Timed out waiting for %q in %s", text, selector), err)
	}
	return nil
}

func (s *Session) WaitForNetworkIdle(timeout time.Duration) error {
	page, err := s.activePage()
	if err != nil {
		return err
	}

	err = page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: s.ms(timeout),
	})
	if err != nil {
		return scrapeerr.Timeout("Timed out waiting for network idle", err)
	}
	return nil
}

func (s *Session) ClickAndWaitForNavigation(selector string, timeout time.Duration) error {
	page, err := s.activePage()
	if err != nil {
		return err
	}

	before := page.URL()
	if err := page.Locator(selector).First().Click(); err != nil {
		return scrapeerr.ElementNotFound(fmt.Sprintf("Could not click %s", selector), err)
	}

	err = page.WaitForURL(func(u string) bool { return u != before }, playwright.PageWaitForURLOptions{
		Timeout: s.ms(timeout),
	})
	if err != nil {
		return scrapeerr.Timeout(fmt.Sprintf("No navigation after clicking %s", selector), err)
	}
	return nil
}

func (s *Session) URL() string {
	page, err := s.activePage()
	if err != nil {
		return ""
	}
	return page.URL()
}

func (s *Session) Content() (string, error) {
	page, err := s.activePage()
	if err != nil {
		return "", err
	}
	html, err := page.Content()
	if err != nil {
		return "", scrapeerr.Scraping("Failed to read page content", err)
	}
	return html, nil
}

func (s *Session) Exists(selector string) (bool, error) {
	page, err := s.activePage()
	if err != nil {
		return false, err
	}
	n, err := page.Locator(selector).Count()
	if err != nil {
		return false, scrapeerr.Scraping(fmt.Sprintf("Failed to query %s", selector), err)
	}
	return n > 0, nil
}

func (s *Session) Text(selector string) (string, error) {
	page, err := s.activePage()
	if err != nil {
		return "", err
	}
	n, err := page.Locator(selector).Count()
	if err != nil {
		return "", scrapeerr.Scraping(fmt.Sprintf("Failed to query %s", selector), err)
	}
	if n == 0 {
		return "", scrapeerr.ElementNotFound(fmt.Sprintf("Element not found: %s", selector), nil)
	}
	txt, err := page.Locator(selector).First().TextContent()
	if err != nil {
		return "", scrapeerr.Scraping(fmt.Sprintf("Failed to read text of %s", selector), err)
	}
	return txt, nil
}

func (s *Session) Click(selector string) error {
	page, err := s.activePage()
	if err != nil {
		return err
	}
	if err := page.Locator(selector).First().Click(); err != nil {
		if isTimeout(err) {
			return scrapeerr.ElementNotFound(fmt.Sprintf("Element not found: %s", selector), err)
		}
		return scrapeerr.Scraping(fmt.Sprintf("Failed to click %s", selector), err)
	}
	return nil
}

// ClickByText clicks the first element under selector whose trimmed text equals text.
func (s *Session) ClickByText(selector, text string) (bool, error) {
	page, err := s.activePage()
	if err != nil {
		return false, err
	}

	exact := regexp.MustCompile(`^\s*` + regexp.QuoteMeta(text) + `\s*$`)
	loc := page.Locator(selector).Filter(playwright.LocatorFilterOptions{HasText: exact})
	n, err := loc.Count()
	if err != nil {
		return false, scrapeerr.Scraping(fmt.Sprintf("Failed to query %s %q", selector, text), err)
	}
	if n == 0 {
		return false, nil
	}
	if err := loc.First().Click(); err != nil {
		return false, scrapeerr.Scraping(fmt.Sprintf("Failed to click %s %q", selector, text), err)
	}
	return true, nil
}

func (s *Session) Type(selector, text string, delay time.Duration) error {
	page, err := s.activePage()
	if err != nil {
		return err
	}
	loc := page.Locator(selector).First()
	if err := loc.Fill(""); err != nil {
		return scrapeerr.ElementNotFound(fmt.Sprintf("Element not found: %s", selector), err)
	}
	err = loc.PressSequentially(text, playwright.LocatorPressSequentiallyOptions{
		Delay: playwright.Float(float64(delay.Milliseconds())),
	})
	if err != nil {
		return scrapeerr.Scraping(fmt.Sprintf("Failed to type into %s", selector), err)
	}
	return nil
}

// SelectOption selects by option value first and falls back to the visible label.
func (s *Session) SelectOption(selector, value string) error {
	page, err := s.activePage()
	if err != nil {
		return err
	}
	loc := page.Locator(selector).First()

	if _, err := loc.SelectOption(playwright.SelectOptionValues{Values: &[]string{value}}, playwright.LocatorSelectOptionOptions{
		Timeout: s.ms(5 * time.Second),
	}); err == nil {
		return nil
	}
	if _, err := loc.SelectOption(playwright.SelectOptionValues{Labels: &[]string{value}}); err != nil {
		return scrapeerr.Scraping(fmt.Sprintf("Failed to select %q in %s", value, selector), err)
	}
	return nil
}

func (s *Session) Press(key string) error {
	page, err := s.activePage()
	if err != nil {
		return err
	}
	if err := page.Keyboard().Press(key); err != nil {
		return scrapeerr.Scraping(fmt.Sprintf("Failed to press %s", key), err)
	}
	return nil
}

func (s *Session) Pause(d time.Duration) {
	page, err := s.activePage()
	if err != nil {
		time.Sleep(d)
		return
	}
	page.WaitForTimeout(float64(d.Milliseconds()))
}

// TakeScreenshot is best effort: failures are logged, never returned.
func (s *Session) TakeScreenshot(path string) {
	page, err := s.activePage()
	if err != nil {
		log.Printf("Screenshot skipped (%s): %v", path, err)
		return
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Printf("Screenshot dir error: %v", err)
			return
		}
	}
	if _, err := page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	}); err != nil {
		log.Printf("Screenshot failed (%s): %v", path, err)
		return
	}
	log.Printf("Saved screenshot: %s", path)
}

func (s *Session) GetCookies() ([]Cookie, error) {
	if _, err := s.activePage(); err != nil {
		return nil, err
	}
	raw, err := s.context.Cookies()
	if err != nil {
		return nil, scrapeerr.Scraping("Failed to read cookies", err)
	}
	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		})
	}
	return cookies, nil
}

func (s *Session) SetCookies(cookies []Cookie) error {
	if _, err := s.activePage(); err != nil {
		return err
	}
	opt := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		opt = append(opt, playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   playwright.String(c.Domain),
			Path:     playwright.String(c.Path),
			Expires:  playwright.Float(c.Expires),
			HttpOnly: playwright.Bool(c.HTTPOnly),
			Secure:   playwright.Bool(c.Secure),
		})
	}
	if err := s.context.AddCookies(opt); err != nil {
		return scrapeerr.Scraping("Failed to set cookies", err)
	}
	return nil
}
