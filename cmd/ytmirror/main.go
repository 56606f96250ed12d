package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/famomatic/ytmirror/client"
	"github.com/famomatic/ytmirror/internal/api"
	"github.com/famomatic/ytmirror/internal/cli"
	"github.com/famomatic/ytmirror/internal/config"
	xlog "github.com/famomatic/ytmirror/internal/log"
	"github.com/famomatic/ytmirror/internal/types"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := cli.Parse(args, stderr)
	if err != nil {
		return 2
	}
	cfg, err := cli.LoadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 2
	}
	xlog.Configure(xlog.Config{Level: cfg.LogLevel, Output: stderr, Service: "ytmirror", Pretty: cfg.LogPretty})
	logger := xlog.Base()

	ccfg := cli.ToClientConfig(opts, cfg)
	ccfg.Logger = &logger
	c, err := client.New(ctx, ccfg)
	if err != nil {
		fmt.Fprintf(stderr, "init: %v\n", err)
		return 1
	}
	defer c.Close()

	if order := cli.PriorityOverride(opts); len(order) > 0 {
		if _, err := c.Priority().Set(ctx, order); err != nil {
			fmt.Fprintf(stderr, "priority: %v\n", err)
			return 1
		}
	}
	if opts.Quality != "" {
		if err := c.Library().SetQuality(ctx, opts.Quality); err != nil {
			fmt.Fprintf(stderr, "quality: %v\n", err)
			return 1
		}
	}

	if opts.Command == cli.CmdServe {
		return serve(ctx, c, cfg, logger, stderr)
	}
	return execute(ctx, c, opts, stdout, stderr)
}

func execute(ctx context.Context, c *client.Client, opts cli.Options, stdout, stderr io.Writer) int {
	failed := false
	emit := func(v any, text func(io.Writer)) {
		if opts.PrintJSON {
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(v)
			return
		}
		text(stdout)
	}
	report := func(target string, err error) {
		failed = true
		if errors.Is(err, client.ErrAllBackendsFailed) {
			fmt.Fprintf(stderr, "%s: all backends failed, use the embedded player: https://www.youtube-nocookie.com/embed/%s\n", target, target)
			return
		}
		fmt.Fprintf(stderr, "%s: %v\n", target, err)
	}

	switch opts.Command {
	case cli.CmdResolve:
		for _, in := range opts.Args {
			desc, err := c.ResolveVideo(ctx, in)
			if err != nil {
				report(in, err)
				continue
			}
			emit(desc, func(w io.Writer) { writeDescriptor(w, desc, opts.Quality) })
		}
	case cli.CmdMeta:
		for _, in := range opts.Args {
			resolve := c.ResolveMetadata
			if opts.Quick {
				resolve = c.QuickMetadata
			}
			meta, err := resolve(ctx, in)
			if err != nil {
				report(in, err)
				continue
			}
			emit(meta, func(w io.Writer) { writeMetadata(w, meta) })
		}
	case cli.CmdComments:
		for _, in := range opts.Args {
			page, err := c.Comments(ctx, in)
			if err != nil {
				report(in, err)
				continue
			}
			emit(page, func(w io.Writer) {
				for _, cm := range page.Comments {
					fmt.Fprintf(w, "%s (%s): %s\n", cm.Author, cm.PublishedText, cm.Content)
				}
			})
		}
	case cli.CmdSearch, cli.CmdTrending:
		var (
			items []types.VideoMetadata
			err   error
		)
		if opts.Command == cli.CmdSearch {
			items, err = c.Search(ctx, strings.Join(opts.Args, " "))
		} else {
			items, err = c.Trending(ctx, opts.Region)
		}
		if err != nil {
			failed = true
			fmt.Fprintf(stderr, "%s: %v\n", opts.Command, err)
		}
		emit(items, func(w io.Writer) {
			for _, m := range items {
				writeListingLine(w, m)
			}
		})
	}
	if failed {
		return 1
	}
	return 0
}

func serve(ctx context.Context, c *client.Client, cfg config.Config, logger zerolog.Logger, stderr io.Writer) int {
	handler := api.New(api.Config{
		Resolver:  c,
		Priority:  c.Priority(),
		Proxies:   proxyRefresher(c),
		RateLimit: cfg.HTTP.RateLimit,
		Logger:    &logger,
	})
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Listen).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(stderr, "serve: %v\n", err)
			return 1
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(stderr, "shutdown: %v\n", err)
			return 1
		}
	}
	return 0
}

// proxyRefresher avoids handing the API a typed nil when relays are off.
func proxyRefresher(c *client.Client) api.ProxyRefresher {
	if p := c.Proxies(); p != nil {
		return p
	}
	return nil
}

func writeDescriptor(w io.Writer, d *types.StreamDescriptor, quality string) {
	fmt.Fprintf(w, "%s  %s\n", d.VideoID, d.Title)
	fmt.Fprintf(w, "source: %s  live: %t\n", d.Source, d.IsLive)
	if best, ok := d.Best(quality); ok {
		fmt.Fprintf(w, "best:   %s\n", formatVariant(best))
	}
	for _, s := range d.Streams {
		fmt.Fprintf(w, "  %s\n", formatVariant(s))
	}
	for _, s := range d.Adaptive {
		fmt.Fprintf(w, "  [adaptive] %s\n", formatVariant(s))
	}
	if d.HLSURL != "" {
		fmt.Fprintf(w, "hls:    %s\n", d.HLSURL)
	}
	if d.DASHURL != "" {
		fmt.Fprintf(w, "dash:   %s\n", d.DASHURL)
	}
}

func formatVariant(v types.StreamVariant) string {
	kind := "av"
	switch {
	case v.IsHLS:
		kind = "hls"
	case v.IsDASH:
		kind = "dash"
	case v.VideoOnly():
		kind = "video"
	case v.AudioOnly():
		kind = "audio"
	}
	quality := v.Quality
	if quality == "" {
		quality = "?"
	}
	return fmt.Sprintf("%-6s %-5s %-5s %s", quality, v.Container, kind, v.URL)
}

func writeMetadata(w io.Writer, m *types.VideoMetadata) {
	fmt.Fprintf(w, "%s\n", m.Title)
	fmt.Fprintf(w, "by %s  |  %s views  |  %s\n", m.Author, types.FormatViewCount(m.ViewCount), types.FormatDuration(m.LengthSeconds))
	if m.PublishedText != "" {
		fmt.Fprintf(w, "published %s\n", m.PublishedText)
	}
	fmt.Fprintf(w, "source: %s\n", m.Source)
	if len(m.Recommended) > 0 {
		fmt.Fprintf(w, "related: %d videos\n", len(m.Recommended))
	}
}

func writeListingLine(w io.Writer, m types.VideoMetadata) {
	fmt.Fprintf(w, "%s  %-8s %s (%s)\n", m.VideoID, types.FormatDuration(m.LengthSeconds), m.Title, m.Author)
}
