// Package cli parses ytmirror command-line options.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/famomatic/ytmirror/client"
	"github.com/famomatic/ytmirror/internal/config"
)

// Commands.
const (
	CmdResolve  = "resolve"
	CmdMeta     = "meta"
	CmdSearch   = "search"
	CmdTrending = "trending"
	CmdComments = "comments"
	CmdServe    = "serve"
)

var commands = []string{CmdResolve, CmdMeta, CmdSearch, CmdTrending, CmdComments, CmdServe}

// ErrUsage reports a malformed command line. The usage text has already
// been written.
var ErrUsage = errors.New("usage")

// Options holds all command-line options.
type Options struct {
	Command string
	Args    []string

	// Config
	ConfigFile string // -config

	// Network
	ProxyURL  string // --proxy
	NoRelays  bool   // --no-relays
	Timeout   time.Duration
	Listen    string // --listen (serve)
	Adaptive  bool   // --adaptive
	Quick     bool   // --quick (meta)
	Quality   string // --quality (resolve)
	Region    string // --region (trending)
	Backends  string // --priority
	LogLevel  string // --log-level
	PrintJSON bool   // --json
	Verbose   bool
}

// Parse parses args (without the program name) into Options.
func Parse(args []string, stderr io.Writer) (Options, error) {
	opts := Options{}
	fs := flag.NewFlagSet("ytmirror", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.ConfigFile, "config", "", "YAML configuration file")
	fs.StringVar(&opts.ProxyURL, "proxy", "", "Forward proxy for outbound requests")
	fs.BoolVar(&opts.NoRelays, "no-relays", false, "Do not route requests through CORS relays")
	fs.DurationVar(&opts.Timeout, "timeout", 45*time.Second, "Overall request timeout")
	fs.StringVar(&opts.Listen, "listen", "", "Listen address for serve (overrides config)")
	fs.BoolVar(&opts.Adaptive, "adaptive", false, "Order stream backends by observed success")
	fs.BoolVar(&opts.Quick, "quick", false, "meta: single cheap lookup instead of the full chain")
	fs.StringVar(&opts.Quality, "quality", "", "resolve: preferred quality such as 720p")
	fs.StringVar(&opts.Region, "region", "", "trending: region code (default JP)")
	fs.StringVar(&opts.Backends, "priority", "", "Comma-separated stream backend order for this run")
	fs.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.BoolVar(&opts.PrintJSON, "json", false, "Print results as JSON")
	fs.BoolVar(&opts.Verbose, "verbose", false, "Shortcut for -log-level debug")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: ytmirror [OPTIONS] <%s> [ARGS]\n\n", strings.Join(commands, "|"))
		fmt.Fprintln(stderr, "Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return opts, ErrUsage
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return opts, ErrUsage
	}
	opts.Command, opts.Args = rest[0], rest[1:]
	if opts.Verbose && opts.LogLevel == "" {
		opts.LogLevel = "debug"
	}

	switch opts.Command {
	case CmdResolve, CmdMeta, CmdComments:
		if len(opts.Args) == 0 {
			fmt.Fprintf(stderr, "%s needs at least one video id or URL\n", opts.Command)
			return opts, ErrUsage
		}
	case CmdSearch:
		if strings.TrimSpace(strings.Join(opts.Args, " ")) == "" {
			fmt.Fprintln(stderr, "search needs a query")
			return opts, ErrUsage
		}
	case CmdTrending, CmdServe:
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", opts.Command)
		fs.Usage()
		return opts, ErrUsage
	}
	return opts, nil
}

// LoadConfig reads the config file and applies flag overrides.
func LoadConfig(opts Options) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return config.Config{}, err
	}
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.Adaptive {
		cfg.Priority = config.PriorityAdaptive
	}
	return cfg, nil
}

// ToClientConfig converts Options and the loaded file config to client.Config.
func ToClientConfig(opts Options, cfg config.Config) client.Config {
	out := client.FromFileConfig(cfg)
	out.ProxyURL = opts.ProxyURL
	out.DisableProxies = opts.NoRelays
	out.RequestTimeout = opts.Timeout
	return out
}

// PriorityOverride returns the per-run stream order, or nil.
func PriorityOverride(opts Options) []string {
	var out []string
	for _, p := range strings.Split(opts.Backends, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
