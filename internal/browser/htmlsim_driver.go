package browser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/raysh454/hashi/internal/logging"
)

const defaultHTTPTimeout = 30 * time.Second

// HTMLSimDriver is a browserless Driver for CI and tests. It fetches
// pages over plain HTTP, resolves CSS selectors against the parsed DOM,
// and approximates clicks: anchors navigate, submit controls submit
// their enclosing form with whatever values were typed. Screenshots are
// serialized DOM snapshots.
//
// It cannot run scripts; pages that only work with JavaScript need the
// chromedp backend.
type HTMLSimDriver struct {
	client *http.Client
	logger logging.Logger

	mu         sync.Mutex
	currentURL *url.URL
	doc        *goquery.Document
	// typed holds values entered via TypeText, keyed by the target
	// element's name attribute for form submission.
	typed map[string]string
}

// NewHTMLSimDriver creates a simulator driver. It never fails: there is
// no process to launch.
func NewHTMLSimDriver(cfg Config, logger logging.Logger) *HTMLSimDriver {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTMLSimDriver{
		client: &http.Client{Timeout: timeout},
		logger: logger.With(logging.Field{Key: "component", Value: "htmlsim"}),
		typed:  make(map[string]string),
	}
}

func (d *HTMLSimDriver) Navigate(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request for %s: %w", rawURL, err)
	}
	return d.load(req)
}

// load performs the request and replaces the current page state.
func (d *HTMLSimDriver) load(req *http.Request) error {
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("fetch %s: status %d", req.URL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return fmt.Errorf("parse %s: %w", req.URL, err)
	}

	d.mu.Lock()
	d.currentURL = resp.Request.URL
	d.doc = doc
	d.typed = make(map[string]string)
	d.mu.Unlock()

	d.logger.Debug("page loaded", logging.Field{Key: "url", Value: resp.Request.URL.String()})
	return nil
}

// find resolves a selector on the current page, or errors the way a
// visibility wait would.
func (d *HTMLSimDriver) find(selector string) (*goquery.Selection, error) {
	d.mu.Lock()
	doc := d.doc
	d.mu.Unlock()

	if doc == nil {
		return nil, fmt.Errorf("no page loaded")
	}
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return nil, fmt.Errorf("waiting for selector %q: element not found", selector)
	}
	return sel.First(), nil
}

func (d *HTMLSimDriver) Click(ctx context.Context, selector string, _ time.Duration) error {
	el, err := d.find(selector)
	if err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}

	// Anchors navigate.
	if href, ok := el.Attr("href"); ok && href != "" {
		target, err := d.resolve(href)
		if err != nil {
			return fmt.Errorf("click %s: %w", selector, err)
		}
		return d.Navigate(ctx, target)
	}

	// Submit controls submit their form.
	if isSubmitControl(el) {
		if form := el.Closest("form"); form.Length() > 0 {
			return d.submitForm(ctx, form)
		}
	}

	// Anything else is an inert click in the simulator.
	return nil
}

func isSubmitControl(el *goquery.Selection) bool {
	node := goquery.NodeName(el)
	typ := strings.ToLower(el.AttrOr("type", ""))
	switch node {
	case "button":
		return typ == "" || typ == "submit"
	case "input":
		return typ == "submit"
	}
	return false
}

// submitForm collects the form's fields, overlays typed values, and
// issues the GET or POST the browser would.
func (d *HTMLSimDriver) submitForm(ctx context.Context, form *goquery.Selection) error {
	d.mu.Lock()
	typed := make(map[string]string, len(d.typed))
	for k, v := range d.typed {
		typed[k] = v
	}
	d.mu.Unlock()

	values := url.Values{}
	form.Find("input[name], textarea[name], select[name]").Each(func(_ int, field *goquery.Selection) {
		name := field.AttrOr("name", "")
		if name == "" {
			return
		}
		if v, ok := typed[name]; ok {
			values.Set(name, v)
			return
		}
		values.Set(name, field.AttrOr("value", ""))
	})

	action := form.AttrOr("action", "")
	target, err := d.resolve(action)
	if err != nil {
		return fmt.Errorf("submit form: %w", err)
	}

	method := strings.ToUpper(form.AttrOr("method", http.MethodGet))
	var req *http.Request
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(values.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		withQuery := target
		if enc := values.Encode(); enc != "" {
			withQuery = target + "?" + enc
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, withQuery, nil)
	}
	if err != nil {
		return fmt.Errorf("submit form: %w", err)
	}

	return d.load(req)
}

// resolve turns a possibly relative href into an absolute URL against
// the current page.
func (d *HTMLSimDriver) resolve(href string) (string, error) {
	d.mu.Lock()
	base := d.currentURL
	d.mu.Unlock()

	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("bad href %q: %w", href, err)
	}
	if base == nil {
		if !ref.IsAbs() {
			return "", fmt.Errorf("relative href %q with no page loaded", href)
		}
		return ref.String(), nil
	}
	return base.ResolveReference(ref).String(), nil
}

func (d *HTMLSimDriver) TypeText(_ context.Context, selector, text string, _ time.Duration) error {
	el, err := d.find(selector)
	if err != nil {
		return fmt.Errorf("type into %s: %w", selector, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if name := el.AttrOr("name", ""); name != "" {
		d.typed[name] = text
	} else {
		// No name attribute: remember by selector so the value is not
		// silently lost, even though it cannot be submitted.
		d.typed[selector] = text
	}
	return nil
}

func (d *HTMLSimDriver) ElementText(_ context.Context, selector string, _ time.Duration) (string, error) {
	el, err := d.find(selector)
	if err != nil {
		return "", fmt.Errorf("read text of %s: %w", selector, err)
	}
	return strings.TrimSpace(el.Text()), nil
}

func (d *HTMLSimDriver) Screenshot(_ context.Context) ([]byte, string, error) {
	d.mu.Lock()
	doc := d.doc
	d.mu.Unlock()

	if doc == nil {
		return nil, "", fmt.Errorf("no page loaded")
	}

	var buf bytes.Buffer
	for _, node := range doc.Selection.Nodes {
		if err := html.Render(&buf, node); err != nil {
			return nil, "", fmt.Errorf("render snapshot: %w", err)
		}
	}
	return buf.Bytes(), "html", nil
}

func (d *HTMLSimDriver) Close() error {
	d.logger.Debug("closing htmlsim driver")
	return nil
}
