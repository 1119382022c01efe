package pagereader

import (
	"context"
	"time"
)

// Reader wraps one browser session. Implementations hold the session
// explicitly; nothing in this package keeps a package-level browser
// handle, so tests can substitute fixture-backed fakes.
type Reader interface {
	Navigate(ctx context.Context, url string) error
	WaitFor(selector string, timeout time.Duration) error
	Text(selector string) (string, error)
	TextAll(selector string) ([]string, error)
	Attribute(selector, name string) (string, error)
	AttributeAll(selector, name string) ([]string, error)
	Click(selector string) error
	ScrollToEnd(selector string) error
	Count(selector string) (int, error)
	Content() (string, error)
	Close() error
}

// Clock abstracts time for the stabilization and discovery poll loops.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type SystemClock struct{}

func (SystemClock) Now() time.Time        { return time.Now() }
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }
