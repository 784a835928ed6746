// Command poundlens annotates pet pages with lookup links and copy
// controls.
//
// Usage:
//
//	poundlens -file pound.html -page-url https://www.neopets.com/pound/adopt.phtml
//	poundlens -fetch https://www.neopets.com/petlookup.phtml?pet=Alpha -output summary
//	poundlens -url https://www.neopets.com/pound/adopt.phtml   # live Chrome tab
//	poundlens -file pound.html -listen 127.0.0.1:8765          # HTTP surface
//	poundlens -fetch <url> -mcp                                # MCP over stdio
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/poundlens"
	"github.com/hazyhaar/poundlens/dom"
	"github.com/hazyhaar/poundlens/internal/browser"
	"github.com/hazyhaar/poundlens/internal/config"
	"github.com/hazyhaar/poundlens/internal/fetcher"
	"github.com/hazyhaar/poundlens/internal/server"
)

const version = "0.1.0"

type options struct {
	configPath string
	file       string
	pageURL    string
	fetchURL   string
	liveURL    string
	listen     string
	mcp        bool
	output     string
	noEscalate bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to poundlens.yaml config file")
	flag.StringVar(&o.file, "file", "", "annotate a saved HTML page")
	flag.StringVar(&o.pageURL, "page-url", "", "URL the saved page came from (selects the variant)")
	flag.StringVar(&o.fetchURL, "fetch", "", "fetch a page over HTTP and annotate it")
	flag.StringVar(&o.liveURL, "url", "", "open a page in Chrome and keep it annotated")
	flag.StringVar(&o.listen, "listen", "", "serve the HTTP API on this address")
	flag.BoolVar(&o.mcp, "mcp", false, "serve MCP tools over stdio")
	flag.StringVar(&o.output, "output", "html", "one-shot output: html, entities, summary, tsv, fallback")
	flag.BoolVar(&o.noEscalate, "no-browser", false, "never fall back to Chrome when fetching")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, o); err != nil {
		logger.Error("poundlens: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(o.configPath); err != nil {
			return err
		}
	}
	if o.mcp {
		for _, s := range cfg.Sinks {
			if s.Type == "stdout" {
				return errors.New("stdout sink cannot be used with -mcp")
			}
		}
	}

	switch {
	case o.liveURL != "":
		return runLive(ctx, logger, cfg, o, o.liveURL)
	case o.file != "":
		f, err := os.Open(o.file)
		if err != nil {
			return fmt.Errorf("open %s: %w", o.file, err)
		}
		defer f.Close()
		doc, err := dom.Parse(f)
		if err != nil {
			return fmt.Errorf("parse %s: %w", o.file, err)
		}
		return runDocument(ctx, logger, cfg, o, doc, o.pageURL, nil)
	case o.fetchURL != "":
		doc, viaBrowser, err := acquire(ctx, logger, cfg, o)
		if err != nil {
			return err
		}
		if o.noEscalate || viaBrowser {
			return runDocument(ctx, logger, cfg, o, doc, o.fetchURL, nil)
		}
		return runDocument(ctx, logger, cfg, o, doc, o.fetchURL, func(ctx context.Context) (*dom.Document, error) {
			return snapshot(ctx, logger, cfg, o.fetchURL)
		})
	}

	fmt.Fprintln(os.Stderr, "usage: poundlens -file <page.html> -page-url <url> | -fetch <url> | -url <url> [-listen addr] [-mcp]")
	os.Exit(2)
	return nil
}

// acquire fetches the page over HTTP and falls back to a Chrome snapshot
// when the response looks like a client-rendered shell. It reports whether
// the browser was used.
func acquire(ctx context.Context, logger *slog.Logger, cfg config.Config, o options) (*dom.Document, bool, error) {
	res, err := fetcher.New(fetcher.WithLogger(logger)).Fetch(ctx, o.fetchURL)
	if err == nil && res.Sufficient {
		return res.Doc, false, nil
	}
	if o.noEscalate {
		if err != nil {
			return nil, false, err
		}
		return res.Doc, false, nil
	}
	logger.Info("poundlens: escalating to browser", "url", o.fetchURL, "fetch_error", err)
	doc, err := snapshot(ctx, logger, cfg, o.fetchURL)
	return doc, true, err
}

func snapshot(ctx context.Context, logger *slog.Logger, cfg config.Config, pageURL string) (*dom.Document, error) {
	mgr := newManager(cfg, logger)
	if _, err := mgr.Start(ctx); err != nil {
		return nil, err
	}
	defer mgr.Close()
	tab, err := browser.OpenTab(ctx, mgr, pageURL, cfg.Marker.Class)
	if err != nil {
		return nil, err
	}
	defer tab.Close()
	return tab.Snapshot(ctx)
}

func newManager(cfg config.Config, logger *slog.Logger) *browser.Manager {
	return browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Headless:         cfg.Browser.Headless,
		Stealth:          cfg.Browser.Stealth,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		NavigateTimeout:  cfg.Browser.NavigateTimeout,
		Logger:           logger,
	})
}

// runDocument annotates a static document. When the first pass finds no
// entity and escalate is set, the page is reloaded from escalate. Without
// a serving surface it prints the result and exits.
func runDocument(ctx context.Context, logger *slog.Logger, cfg config.Config, o options, doc *dom.Document, pageURL string,
	escalate func(context.Context) (*dom.Document, error)) error {
	sess, err := poundlens.New(doc, poundlens.Options{Config: cfg, PageURL: pageURL, Logger: logger})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sess.Run(gctx) })

	g.Go(func() error {
		rep, err := sess.Pass(gctx)
		if err != nil {
			cancel()
			return err
		}
		if len(rep.Entities) == 0 && escalate != nil {
			logger.Info("poundlens: no entity over HTTP, escalating to browser", "page", pageURL)
			next, err := escalate(gctx)
			if err != nil {
				logger.Warn("poundlens: browser escalation failed", "error", err)
			} else {
				if err := sess.Load(gctx, next); err != nil {
					cancel()
					return err
				}
				if rep, err = sess.Pass(gctx); err != nil {
					cancel()
					return err
				}
			}
		}
		if len(rep.Entities) == 0 {
			logger.Warn("poundlens: no entity found", "page", pageURL)
		}
		if o.listen != "" || o.mcp {
			return nil
		}
		defer cancel()
		return printOutput(gctx, os.Stdout, sess, o.output)
	})

	serve(gctx, g, logger, o, sess)
	return g.Wait()
}

func serve(ctx context.Context, g *errgroup.Group, logger *slog.Logger, o options, sess *poundlens.Session) {
	if o.listen != "" {
		srv := server.New(sess, server.Config{Addr: o.listen, Logger: logger})
		g.Go(func() error { return srv.Run(ctx) })
	}
	if o.mcp {
		srv := mcp.NewServer(&mcp.Implementation{Name: "poundlens", Version: version}, nil)
		sess.RegisterMCP(srv)
		g.Go(func() error {
			err := srv.Run(ctx, &mcp.StdioTransport{})
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	}
}

// runLive keeps a Chrome tab annotated until interrupted.
func runLive(ctx context.Context, logger *slog.Logger, cfg config.Config, o options, pageURL string) error {
	mgr := newManager(cfg, logger)
	if _, err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Close()
	tab, err := browser.OpenTab(ctx, mgr, pageURL, cfg.Marker.Class)
	if err != nil {
		return err
	}
	defer tab.Close()

	doc, err := tab.Snapshot(ctx)
	if err != nil {
		return err
	}

	var live *browser.Live
	sess, err := poundlens.New(doc, poundlens.Options{
		Config:    cfg,
		PageURL:   pageURL,
		Writer:    browser.PageWriter{Tab: tab},
		Presenter: browser.Overlay{Tab: tab},
		Observe: func(d *dom.Document, recs []dom.Record) {
			live.Observe(d, recs)
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	live = browser.NewLive(browser.LiveOptions{
		Tab:     tab,
		Monitor: sess.Monitor(),
		Tagger:  sess.Tagger(),
		Pattern: sess.Pattern(),
		Click:   sess.Click,
		Logger:  logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sess.Run(gctx) })
	g.Go(func() error { return live.Run(gctx) })
	serve(gctx, g, logger, o, sess)
	return g.Wait()
}

func printOutput(ctx context.Context, w io.Writer, sess *poundlens.Session, output string) error {
	switch output {
	case "entities":
		ents, err := sess.Entities(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ents)
	case "summary", "tsv":
		format := ""
		if output == "tsv" {
			format = "tsv"
		}
		text, err := sess.Summary(ctx, format)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, text)
		return err
	case "fallback":
		page, err := sess.FallbackPage()
		if err != nil {
			return err
		}
		_, err = w.Write(page)
		return err
	}
	page, err := sess.HTML(ctx)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, page)
	return err
}
