package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

// Args are the command-line arguments for the bridge server.
type Args struct {
	// Addr is the HTTP listen address.
	Addr string

	// StorageRoot overrides where the run database and screenshots live;
	// empty means the config default.
	StorageRoot string

	// Backend selects the browser backend (chromedp or htmlsim).
	Backend string

	// Headless is the default headless mode; requests can override it.
	Headless bool

	// RawArgs is the original args slice (useful for debugging/tests).
	RawArgs []string
}

// ParseArgs parses a slice of args and returns Args. Use in tests by
// passing arbitrary slices. The function is deterministic and does not
// read os.Args.
func ParseArgs(args []string) (*Args, error) {
	fs := flag.NewFlagSet("hashi", flag.ContinueOnError)
	var (
		addr     = fs.String("addr", ":8000", "HTTP listen address")
		storage  = fs.String("storage", "", "Storage root for the run database and screenshots (empty=use default)")
		backend  = fs.String("backend", "chromedp", "Browser backend: chromedp|htmlsim")
		headless = fs.Bool("headless", true, "Run browsers headless by default")
	)

	// Ensure Parse doesn't write to stdout/stderr in tests
	fs.SetOutput(io.Discard)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch strings.ToLower(strings.TrimSpace(*backend)) {
	case "chromedp", "htmlsim":
	default:
		return nil, fmt.Errorf("unknown -backend %q (want chromedp or htmlsim)", *backend)
	}

	return &Args{
		Addr:        *addr,
		StorageRoot: *storage,
		Backend:     strings.ToLower(strings.TrimSpace(*backend)),
		Headless:    *headless,
		RawArgs:     args,
	}, nil
}
