// One-shot renderer: schema JSON + data JSON in, PDF file out. Useful for
// template development without a running server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vello/vello/pkg/assets"
	"github.com/vello/vello/pkg/render"
	"github.com/vello/vello/pkg/schema"
	"github.com/vello/vello/pkg/substitute"
)

func main() {
	var (
		schemaPath = flag.String("schema", "", "template schema JSON file (required)")
		dataPath   = flag.String("data", "", "record data JSON file (optional)")
		outPath    = flag.String("out", "out.pdf", "output PDF path")
		keep       = flag.Bool("keep-missing", false, "keep unresolved placeholders instead of blanking them")
		moneyKeys  = flag.String("money-keys", "", "comma-separated record keys formatted as money")
		timeout    = flag.Duration("timeout", 60*time.Second, "remote image fetch timeout")
	)
	flag.Parse()

	if *schemaPath == "" {
		fatal(fmt.Errorf("-schema is required"))
	}
	raw, err := os.ReadFile(*schemaPath)
	if err != nil {
		fatal(err)
	}
	tmpl, err := schema.Parse(raw)
	if err != nil {
		fatal(fmt.Errorf("parse schema: %w", err))
	}

	record := map[string]any{}
	if *dataPath != "" {
		b, err := os.ReadFile(*dataPath)
		if err != nil {
			fatal(err)
		}
		if err := json.Unmarshal(b, &record); err != nil {
			fatal(fmt.Errorf("parse data: %w", err))
		}
	}

	opts := substitute.Options{}
	if *keep {
		opts.Missing = substitute.MissingKeep
	}
	if *moneyKeys != "" {
		opts.MoneyKeys = strings.Split(*moneyKeys, ",")
	}
	applied, err := substitute.Apply(tmpl, record, opts)
	if err != nil {
		fatal(err)
	}
	if len(applied.Missing) > 0 {
		fmt.Fprintf(os.Stderr, "warning: unresolved keys: %s\n", strings.Join(applied.Missing, ", "))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	fetcher := assets.NewFetcher(assets.Options{Timeout: *timeout})
	if err := fetcher.ResolveImages(ctx, applied.Schema); err != nil {
		fatal(fmt.Errorf("resolve images: %w", err))
	}

	pdf, err := render.Render(applied.Schema)
	if err != nil {
		fatal(fmt.Errorf("render: %w", err))
	}
	if err := os.WriteFile(*outPath, pdf, 0o644); err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d pages, %d bytes)\n", *outPath, render.Paginate(applied.Schema), len(pdf))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
