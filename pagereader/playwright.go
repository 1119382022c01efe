package pagereader

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

const (
	navigationTimeoutMS = 60000
	defaultTimeoutMS    = 10000
)

// Session implements Reader on a headless Chromium page.
type Session struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
}

func NewSession(headless bool) (*Session, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	page, err := browser.NewPage()
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("create page: %w", err)
	}
	page.SetDefaultTimeout(defaultTimeoutMS)

	return &Session{pw: pw, browser: browser, page: page}, nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(navigationTimeoutMS),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *Session) WaitFor(selector string, timeout time.Duration) error {
	return s.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

func (s *Session) Text(selector string) (string, error) {
	return s.page.Locator(selector).First().InnerText()
}

func (s *Session) TextAll(selector string) ([]string, error) {
	locators, err := s.page.Locator(selector).All()
	if err != nil {
		return nil, err
	}

	var texts []string
	for _, loc := range locators {
		text, err := loc.InnerText()
		if err != nil {
			continue
		}
		texts = append(texts, text)
	}
	return texts, nil
}

func (s *Session) Attribute(selector, name string) (string, error) {
	return s.page.Locator(selector).First().GetAttribute(name)
}

func (s *Session) AttributeAll(selector, name string) ([]string, error) {
	locators, err := s.page.Locator(selector).All()
	if err != nil {
		return nil, err
	}

	var values []string
	for _, loc := range locators {
		value, err := loc.GetAttribute(name)
		if err != nil || value == "" {
			continue
		}
		values = append(values, value)
	}
	return values, nil
}

func (s *Session) Click(selector string) error {
	loc := s.page.Locator(selector).First()
	visible, err := loc.IsVisible()
	if err != nil {
		return err
	}
	if !visible {
		return fmt.Errorf("element not visible: %s", selector)
	}
	return loc.Click()
}

func (s *Session) ScrollToEnd(selector string) error {
	_, err := s.page.Evaluate(`(sel) => {
		const el = sel ? document.querySelector(sel) : null;
		if (el) {
			el.scrollTop = el.scrollHeight;
		} else {
			window.scrollTo(0, document.body.scrollHeight);
		}
	}`, selector)
	return err
}

func (s *Session) Count(selector string) (int, error) {
	return s.page.Locator(selector).Count()
}

func (s *Session) Content() (string, error) {
	return s.page.Content()
}

func (s *Session) Close() error {
	if s.page != nil {
		s.page.Close()
	}
	if s.browser != nil {
		s.browser.Close()
	}
	if s.pw != nil {
		return s.pw.Stop()
	}
	return nil
}
