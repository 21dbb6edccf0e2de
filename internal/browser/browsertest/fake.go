// Package browsertest provides a scripted browser.Driver for unit tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"todoe2e/internal/browser"
)

// ErrNotVisible is returned for selectors the fake does not show.
var ErrNotVisible = errors.New("element not visible")

// Fake is an in-memory page. Tests set its fields and hook OnClick to
// simulate navigation and messages.
type Fake struct {
	mu sync.Mutex

	URL      string
	Visible  map[string]bool
	Texts    map[string]string
	Storage  map[string]string
	Body     string
	Typed    map[string]string
	Clicks   []string
	Visited  []string
	Closed   bool
	Resets   int
	NavError error

	// OnNavigate and OnClick run with the lock released and may mutate
	// the fake through its setters.
	OnNavigate func(f *Fake, url string)
	OnClick    func(f *Fake, selector string, n int)
}

var _ browser.Driver = (*Fake)(nil)

// New returns an empty page.
func New() *Fake {
	return &Fake{
		Visible: map[string]bool{},
		Texts:   map[string]string{},
		Storage: map[string]string{},
		Typed:   map[string]string{},
	}
}

// Show marks selectors visible.
func (f *Fake) Show(selectors ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range selectors {
		f.Visible[s] = true
	}
}

// Hide removes selectors from the page.
func (f *Fake) Hide(selectors ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range selectors {
		delete(f.Visible, s)
	}
}

// SetText makes selector visible with text.
func (f *Fake) SetText(selector, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Visible[selector] = true
	f.Texts[selector] = text
}

// SetURL changes the current location.
func (f *Fake) SetURL(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.URL = url
}

// SetStorage writes a localStorage entry.
func (f *Fake) SetStorage(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Storage[key] = value
}

// SetBody replaces the page text.
func (f *Fake) SetBody(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Body = text
}

func (f *Fake) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	if f.NavError != nil {
		err := f.NavError
		f.mu.Unlock()
		return err
	}
	f.URL = url
	f.Visited = append(f.Visited, url)
	hook := f.OnNavigate
	f.mu.Unlock()

	if hook != nil {
		hook(f, url)
	}
	return ctx.Err()
}

func (f *Fake) WaitVisible(ctx context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.visible(selector) {
		return fmt.Errorf("wait for %s: %w", selector, ErrNotVisible)
	}
	return ctx.Err()
}

// visible treats a comma separated selector list as matching if any part does.
func (f *Fake) visible(selector string) bool {
	for _, part := range strings.Split(selector, ",") {
		if f.Visible[strings.TrimSpace(part)] {
			return true
		}
	}
	return false
}

func (f *Fake) Type(ctx context.Context, selector, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.visible(selector) {
		return fmt.Errorf("type into %s: %w", selector, ErrNotVisible)
	}
	f.Typed[selector] = text
	return nil
}

func (f *Fake) Click(ctx context.Context, selector string) error {
	f.mu.Lock()
	if !f.visible(selector) {
		f.mu.Unlock()
		return fmt.Errorf("click %s: %w", selector, ErrNotVisible)
	}
	f.Clicks = append(f.Clicks, selector)
	n := len(f.Clicks)
	hook := f.OnClick
	f.mu.Unlock()

	if hook != nil {
		hook(f, selector, n)
	}
	return nil
}

func (f *Fake) Location(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.URL, nil
}

func (f *Fake) LocalStorage(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.Storage[key]
	return v, ok, nil
}

func (f *Fake) Text(ctx context.Context, selector string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, part := range strings.Split(selector, ",") {
		part = strings.TrimSpace(part)
		if f.Visible[part] {
			return f.Texts[part], nil
		}
	}
	return "", fmt.Errorf("read text of %s: %w", selector, ErrNotVisible)
}

func (f *Fake) BodyText(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Body, nil
}

// Reset drops storage, input and page content like a fresh tab would.
func (f *Fake) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.URL = "about:blank"
	f.Visible = map[string]bool{}
	f.Texts = map[string]string{}
	f.Storage = map[string]string{}
	f.Typed = map[string]string{}
	f.Clicks = nil
	f.Body = ""
	f.Resets++
	return ctx.Err()
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
