package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/famomatic/ytmirror/internal/config"
)

func TestParse_ResolveWithFlags(t *testing.T) {
	var stderr bytes.Buffer
	opts, err := Parse([]string{"-quality", "1080p", "-no-relays", "-verbose", "resolve", "jNQXAC9IVRw"}, &stderr)
	if err != nil {
		t.Fatalf("Parse() error = %v (%s)", err, stderr.String())
	}
	if opts.Command != CmdResolve || len(opts.Args) != 1 || opts.Args[0] != "jNQXAC9IVRw" {
		t.Fatalf("opts = %+v", opts)
	}
	if opts.Quality != "1080p" || !opts.NoRelays {
		t.Fatalf("flags not applied: %+v", opts)
	}
	if opts.LogLevel != "debug" {
		t.Fatalf("log level = %q, want debug", opts.LogLevel)
	}
	if opts.Timeout != 45*time.Second {
		t.Fatalf("timeout = %v", opts.Timeout)
	}
}

func TestParse_UsageErrors(t *testing.T) {
	tests := [][]string{
		{},
		{"resolve"},
		{"search", " "},
		{"download", "x"},
		{"-nope", "resolve", "x"},
	}
	for _, args := range tests {
		var stderr bytes.Buffer
		if _, err := Parse(args, &stderr); !errors.Is(err, ErrUsage) {
			t.Fatalf("Parse(%q) error = %v, want ErrUsage", args, err)
		}
		if stderr.Len() == 0 {
			t.Fatalf("Parse(%q) wrote no usage", args)
		}
	}
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	cfg, err := LoadConfig(Options{Listen: ":9999", Adaptive: true, LogLevel: "warn"})
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Listen != ":9999" || cfg.Priority != config.PriorityAdaptive || cfg.LogLevel != "warn" {
		t.Fatalf("cfg = %+v", cfg)
	}

	cc := ToClientConfig(Options{ProxyURL: "http://127.0.0.1:3128", NoRelays: true, Timeout: time.Second}, cfg)
	if !cc.Adaptive || !cc.DisableProxies || cc.ProxyURL != "http://127.0.0.1:3128" || cc.RequestTimeout != time.Second {
		t.Fatalf("client config = %+v", cc)
	}
}

func TestPriorityOverride(t *testing.T) {
	got := PriorityOverride(Options{Backends: " piped, ,cobalt "})
	if strings.Join(got, ",") != "piped,cobalt" {
		t.Fatalf("PriorityOverride() = %v", got)
	}
	if PriorityOverride(Options{}) != nil {
		t.Fatalf("expected nil override")
	}
}
