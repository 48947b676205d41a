package auth

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"ue_scraper/browser"
	"ue_scraper/scrapeerr"
)

const DefaultLoginURL = "https://partner.unitededucation.com/Account/Login/"

const loginPath = "/Account/Login"

type Selectors struct {
	Form     string
	Email    string
	Password string
	Submit   string
	Error    string
}

func DefaultSelectors() Selectors {
	return Selectors{
		Form:     "#kt_sign_in_form",
		Email:    "#Email",
		Password: "#Password",
		Submit:   "#kt_sign_in_submit",
		Error:    ".text-danger",
	}
}

// Credentials are held in memory for the length of a run and never persisted.
type Credentials struct {
	Email    string
	Password string
}

func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Email: %q, Password: [redacted]}", c.Email)
}

func (c Credentials) Empty() bool {
	return c.Email == "" || c.Password == ""
}

type State int

const (
	NotAuthenticated State = iota
	Authenticated
	Failed
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	default:
		return "not_authenticated"
	}
}

type Options struct {
	LoginURL    string
	Selectors   Selectors
	TypingDelay time.Duration
	SubmitDelay time.Duration
}

type Authenticator struct {
	page  browser.Controller
	creds Credentials
	opts  Options
	state State
}

func NewAuthenticator(page browser.Controller, creds Credentials, opts Options) *Authenticator {
	if opts.LoginURL == "" {
		opts.LoginURL = DefaultLoginURL
	}
	if opts.Selectors == (Selectors{}) {
		opts.Selectors = DefaultSelectors()
	}
	if opts.TypingDelay == 0 {
		opts.TypingDelay = 100 * time.Millisecond
	}
	if opts.SubmitDelay == 0 {
		opts.SubmitDelay = 2 * time.Second
	}
	return &Authenticator{page: page, creds: creds, opts: opts}
}

func (a *Authenticator) State() State { return a.state }

func (a *Authenticator) IsLoggedIn() bool { return a.state == Authenticated }

// Login drives the portal sign-in form. A navigation timeout after submit is
// tolerated; the outcome is decided by the URL the page settles on.
func (a *Authenticator) Login() (bool, error) {
	log.Println("Starting login process...")

	if err := a.login(); err != nil {
		a.state = Failed
		if errors.Is(err, scrapeerr.ErrLogin) {
			return false, err
		}
		return false, scrapeerr.Login("login failed", err)
	}

	a.state = Authenticated
	log.Println("Login successful")
	return true, nil
}

func (a *Authenticator) login() error {
	sel := a.opts.Selectors

	if err := a.page.NavigateTo(a.opts.LoginURL, browser.WaitDOMContentLoaded); err != nil {
		return err
	}
	if err := a.page.WaitForSelector(sel.Form, browser.WaitOptions{}); err != nil {
		return err
	}
	log.Println("Login form found")

	if a.creds.Empty() {
		return scrapeerr.Login("email and password are required", nil)
	}

	if err := a.page.WaitForSelector(sel.Email, browser.WaitOptions{Visible: true}); err != nil {
		return err
	}
	if err := a.page.Type(sel.Email, a.creds.Email, a.opts.TypingDelay); err != nil {
		return err
	}
	if err := a.page.WaitForSelector(sel.Password, browser.WaitOptions{Visible: true}); err != nil {
		return err
	}
	if err := a.page.Type(sel.Password, a.creds.Password, a.opts.TypingDelay); err != nil {
		return err
	}
	log.Println("Credentials entered")

	if err := a.page.WaitForSelector(sel.Submit, browser.WaitOptions{Visible: true}); err != nil {
		return err
	}
	a.page.Pause(a.opts.SubmitDelay)

	if err := a.page.ClickAndWaitForNavigation(sel.Submit, a.page.Timeout()); err != nil {
		if !errors.Is(err, scrapeerr.ErrTimeout) {
			return err
		}
		log.Println("Navigation timeout after submit, checking login status")
	}

	return a.verify()
}

func (a *Authenticator) verify() error {
	current := a.page.URL()
	log.Printf("Current URL after login: %s", current)

	if !strings.Contains(current, loginPath) {
		return nil
	}

	msg, err := a.page.Text(a.opts.Selectors.Error)
	if err == nil {
		if msg = strings.TrimSpace(msg); msg != "" {
			return scrapeerr.Login("login failed: "+msg, nil)
		}
	}
	return scrapeerr.Login("login failed: still on login page", nil)
}

// Resume installs cookies from an earlier signed-in session and loads checkURL,
// a page behind the login. It reports false when the portal sends the page back
// to the login form.
func (a *Authenticator) Resume(cookies []browser.Cookie, checkURL string) (bool, error) {
	if len(cookies) == 0 {
		return false, nil
	}
	if err := a.page.SetCookies(cookies); err != nil {
		return false, err
	}
	if err := a.page.NavigateTo(checkURL, browser.WaitDOMContentLoaded); err != nil {
		return false, err
	}
	if strings.Contains(a.page.URL(), loginPath) {
		log.Println("Saved session expired, logging in again")
		return false, nil
	}
	a.state = Authenticated
	log.Println("Resumed saved session")
	return true, nil
}

// Logout resets local state and closes the session. There is no server-side call.
func (a *Authenticator) Logout() error {
	a.state = NotAuthenticated
	return a.page.Close()
}
