// Package browsertest provides an in-memory browser.Controller over static HTML.
package browsertest

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ue_scraper/browser"
	"ue_scraper/scrapeerr"
)

// Action mutates the fake in response to a click or key press.
type Action func(p *FakePage) error

// FakePage serves HTML documents keyed by URL and evaluates selectors with goquery.
// Clicks and key presses run registered Actions so tests can script page transitions.
type FakePage struct {
	Pages      map[string]string
	CurrentURL string
	HTML       string

	OnClick    map[string]Action // key: selector, or "selector|text" for ClickByText
	OnPress    map[string]Action
	OnNavigate map[string]Action // runs after the page for the url is loaded

	InitErr        error
	NavigationErr  error
	NetworkIdleErr error
	QueryErr       error // returned by element queries, as a detached page would
	// SlowNavigation makes ClickAndWaitForNavigation time out even when the
	// click changed the URL, as a redirect that lands after the wait does.
	SlowNavigation bool

	Clicks      []string
	Typed       map[string]string
	Selected    map[string]string
	Pressed     []string
	Screenshots []string
	Navigations []string
	Paused      time.Duration

	ready   bool
	closed  bool
	cookies []browser.Cookie
}

var _ browser.Controller = (*FakePage)(nil)

func New(pages map[string]string) *FakePage {
	if pages == nil {
		pages = map[string]string{}
	}
	return &FakePage{
		Pages:      pages,
		OnClick:    map[string]Action{},
		OnPress:    map[string]Action{},
		OnNavigate: map[string]Action{},
		Typed:      map[string]string{},
		Selected:   map[string]string{},
	}
}

// SetPage replaces the current document and URL.
func (p *FakePage) SetPage(url, html string) {
	p.CurrentURL = url
	p.HTML = html
}

func (p *FakePage) Closed() bool { return p.closed }

func (p *FakePage) Initialize() error {
	if p.InitErr != nil {
		return scrapeerr.Initialization("failed to launch browser", p.InitErr)
	}
	p.ready = true
	p.closed = false
	return nil
}

func (p *FakePage) IsReady() bool { return p.ready }

func (p *FakePage) Close() error {
	p.ready = false
	p.closed = true
	return nil
}

func (p *FakePage) Timeout() time.Duration { return 30 * time.Second }

func (p *FakePage) check() error {
	if !p.ready {
		return scrapeerr.Initialization("browser not initialized, call Initialize first", nil)
	}
	return nil
}

func (p *FakePage) doc() (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
}

func (p *FakePage) find(selector string) (*goquery.Selection, error) {
	if p.QueryErr != nil {
		return nil, scrapeerr.Scraping(fmt.Sprintf("Failed to query %s", selector), p.QueryErr)
	}
	d, err := p.doc()
	if err != nil {
		return nil, err
	}
	return d.Find(selector), nil
}

func (p *FakePage) NavigateTo(url string, _ browser.WaitUntil) error {
	if err := p.check(); err != nil {
		return err
	}
	p.Navigations = append(p.Navigations, url)
	if p.NavigationErr != nil {
		return scrapeerr.Navigation(fmt.Sprintf("Failed to navigate to %s", url), p.NavigationErr)
	}
	html, ok := p.Pages[url]
	if !ok {
		return scrapeerr.Navigation(fmt.Sprintf("Failed to navigate to %s", url), fmt.Errorf("net::ERR_NAME_NOT_RESOLVED"))
	}
	p.SetPage(url, html)
	if action, ok := p.OnNavigate[url]; ok {
		return action(p)
	}
	return nil
}

func (p *FakePage) WaitForSelector(selector string, _ browser.WaitOptions) error {
	ok, err := p.Exists(selector)
	if err != nil {
		return err
	}
	if !ok {
		return scrapeerr.ElementNotFound(fmt.Sprintf("Element not found: %s", selector), nil)
	}
	return nil
}

func (p *FakePage) WaitForText(selector, text string, _ time.Duration) error {
	if err := p.check(); err != nil {
		return err
	}
	sel, err := p.find(selector)
	if err != nil {
		return err
	}
	if sel.Length() == 0 || !strings.Contains(sel.First().Text(), text) {
		return scrapeerr.Timeout(fmt.Sprintf("Timed out waiting for %q in %s", text, selector), nil)
	}
	return nil
}

func (p *FakePage) WaitForNetworkIdle(_ time.Duration) error {
	if err := p.check(); err != nil {
		return err
	}
	if p.NetworkIdleErr != nil {
		return scrapeerr.Timeout("Timed out waiting for network idle", p.NetworkIdleErr)
	}
	return nil
}

func (p *FakePage) ClickAndWaitForNavigation(selector string, _ time.Duration) error {
	before := p.CurrentURL
	if err := p.Click(selector); err != nil {
		return err
	}
	if p.CurrentURL == before || p.SlowNavigation {
		return scrapeerr.Timeout(fmt.Sprintf("No navigation after clicking %s", selector), nil)
	}
	return nil
}

func (p *FakePage) URL() string { return p.CurrentURL }

func (p *FakePage) Content() (string, error) {
	if err := p.check(); err != nil {
		return "", err
	}
	return p.HTML, nil
}

func (p *FakePage) Exists(selector string) (bool, error) {
	if err := p.check(); err != nil {
		return false, err
	}
	sel, err := p.find(selector)
	if err != nil {
		return false, err
	}
	return sel.Length() > 0, nil
}

func (p *FakePage) Text(selector string) (string, error) {
	if err := p.check(); err != nil {
		return "", err
	}
	sel, err := p.find(selector)
	if err != nil {
		return "", err
	}
	if sel.Length() == 0 {
		return "", scrapeerr.ElementNotFound(fmt.Sprintf("Element not found: %s", selector), nil)
	}
	return sel.First().Text(), nil
}

func (p *FakePage) Click(selector string) error {
	if err := p.check(); err != nil {
		return err
	}
	if action, ok := p.OnClick[selector]; ok {
		p.Clicks = append(p.Clicks, selector)
		return action(p)
	}
	ok, err := p.Exists(selector)
	if err != nil {
		return err
	}
	if !ok {
		return scrapeerr.ElementNotFound(fmt.Sprintf("Element not found: %s", selector), nil)
	}
	p.Clicks = append(p.Clicks, selector)
	return nil
}

func (p *FakePage) ClickByText(selector, text string) (bool, error) {
	if err := p.check(); err != nil {
		return false, err
	}
	sel, err := p.find(selector)
	if err != nil {
		return false, err
	}
	var found bool
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found = strings.TrimSpace(s.Text()) == text
		return !found
	})
	if !found {
		return false, nil
	}
	key := selector + "|" + text
	p.Clicks = append(p.Clicks, key)
	if action, ok := p.OnClick[key]; ok {
		if err := action(p); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (p *FakePage) Type(selector, text string, _ time.Duration) error {
	if err := p.WaitForSelector(selector, browser.WaitOptions{}); err != nil {
		return err
	}
	p.Typed[selector] = text
	return nil
}

func (p *FakePage) SelectOption(selector, value string) error {
	if err := p.WaitForSelector(selector, browser.WaitOptions{}); err != nil {
		return err
	}
	p.Selected[selector] = value
	return nil
}

func (p *FakePage) Press(key string) error {
	if err := p.check(); err != nil {
		return err
	}
	p.Pressed = append(p.Pressed, key)
	if action, ok := p.OnPress[key]; ok {
		return action(p)
	}
	return nil
}

func (p *FakePage) Pause(d time.Duration) { p.Paused += d }

func (p *FakePage) TakeScreenshot(path string) {
	p.Screenshots = append(p.Screenshots, path)
}

func (p *FakePage) GetCookies() ([]browser.Cookie, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	return append([]browser.Cookie(nil), p.cookies...), nil
}

func (p *FakePage) SetCookies(cookies []browser.Cookie) error {
	if err := p.check(); err != nil {
		return err
	}
	for _, c := range cookies {
		p.setCookie(c)
	}
	return nil
}

func (p *FakePage) setCookie(c browser.Cookie) {
	for i := range p.cookies {
		if p.cookies[i].Name == c.Name {
			p.cookies[i] = c
			return
		}
	}
	p.cookies = append(p.cookies, c)
}

// Cookie looks up a cookie by name without the ready check, for use in Actions.
func (p *FakePage) Cookie(name string) (browser.Cookie, bool) {
	for _, c := range p.cookies {
		if c.Name == name {
			return c, true
		}
	}
	return browser.Cookie{}, false
}

// SetCookie returns an Action that stores c, as a server response would.
func SetCookie(c browser.Cookie) Action {
	return func(p *FakePage) error {
		p.setCookie(c)
		return nil
	}
}

// Navigate returns an Action that swaps in the page registered for url.
func Navigate(url string) Action {
	return func(p *FakePage) error {
		html, ok := p.Pages[url]
		if !ok {
			return fmt.Errorf("no fake page for %s", url)
		}
		p.SetPage(url, html)
		return nil
	}
}

// Render returns an Action that replaces the document without changing the URL.
func Render(html string) Action {
	return func(p *FakePage) error {
		p.HTML = html
		return nil
	}
}

// Chain runs actions in order and stops at the first error.
func Chain(actions ...Action) Action {
	return func(p *FakePage) error {
		for _, a := range actions {
			if err := a(p); err != nil {
				return err
			}
		}
		return nil
	}
}
