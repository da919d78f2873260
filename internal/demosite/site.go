// Package demosite serves a small deterministic login flow used as a
// target for demonstrating and testing the bridge.
package demosite

import (
	"fmt"
	"html/template"
	"net/http"
	"time"
)

const (
	demoUser     = "admin"
	demoPassword = "hashi123"
)

// Config holds configuration for the demo site.
type Config struct {
	// Port is the port on which the demo site listens.
	Port int

	// SlowDelay is how long /slow stalls before responding.
	SlowDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:      9999,
		SlowDelay: 2 * time.Second,
	}
}

// DemoSite is a simple HTTP server with a stable login flow.
type DemoSite struct {
	cfg      Config
	loginTpl *template.Template
}

// NewDemoSite creates a new demo site instance.
func NewDemoSite(cfg Config) *DemoSite {
	return &DemoSite{
		cfg:      cfg,
		loginTpl: template.Must(template.New("login").Parse(loginPageTpl)),
	}
}

// Handler returns the site's routes; tests mount this on httptest.
func (s *DemoSite) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.loginHandler)
	mux.HandleFunc("/login", s.submitHandler)
	mux.HandleFunc("/welcome", s.welcomeHandler)
	mux.HandleFunc("/about", s.aboutHandler)
	mux.HandleFunc("/slow", s.slowHandler)
	return mux
}

// Start starts the demo site.
func (s *DemoSite) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	fmt.Printf("Demo site starting on http://localhost%s\n", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *DemoSite) loginHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.renderLogin(w, "")
}

func (s *DemoSite) submitHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	if r.FormValue("username") == demoUser && r.FormValue("password") == demoPassword {
		http.Redirect(w, r, "/welcome", http.StatusSeeOther)
		return
	}
	s.renderLogin(w, "Invalid credentials")
}

func (s *DemoSite) renderLogin(w http.ResponseWriter, errMsg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = s.loginTpl.Execute(w, struct{ Error string }{Error: errMsg})
}

func (s *DemoSite) welcomeHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, welcomePage)
}

func (s *DemoSite) aboutHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, aboutPage)
}

func (s *DemoSite) slowHandler(w http.ResponseWriter, r *http.Request) {
	select {
	case <-time.After(s.cfg.SlowDelay):
	case <-r.Context().Done():
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, aboutPage)
}
