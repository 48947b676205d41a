package browser

import "time"

// WaitUntil names the load event a navigation resolves on.
type WaitUntil string

const (
	WaitLoad             WaitUntil = "load"
	WaitDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitNetworkIdle      WaitUntil = "networkidle"
)

type WaitOptions struct {
	Timeout time.Duration // zero uses the session default
	Visible bool
}

type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  float64
	HTTPOnly bool
	Secure   bool
}

// Controller is the page surface the portal drivers are written against.
// It is implemented by *Session and by browsertest.FakePage.
type Controller interface {
	Initialize() error
	IsReady() bool
	Close() error

	NavigateTo(url string, waitUntil WaitUntil) error
	WaitForSelector(selector string, opts WaitOptions) error
	WaitForText(selector, text string, timeout time.Duration) error
	WaitForNetworkIdle(timeout time.Duration) error
	ClickAndWaitForNavigation(selector string, timeout time.Duration) error

	URL() string
	Content() (string, error)
	Exists(selector string) (bool, error)
	Text(selector string) (string, error)

	Click(selector string) error
	ClickByText(selector, text string) (bool, error)
	Type(selector, text string, delay time.Duration) error
	SelectOption(selector, value string) error
	Press(key string) error
	Pause(d time.Duration)

	TakeScreenshot(path string)
	GetCookies() ([]Cookie, error)
	SetCookies(cookies []Cookie) error
	Timeout() time.Duration
}
