package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	yielddconfig "yieldsplit/services/yieldd/config"
	"yieldsplit/services/yieldd/storage"
)

func runExport(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	cfgPath := fs.String("config", "services/yieldd/config.yaml", "Path to the yieldd configuration")
	format := fs.String("format", "csv", "Output format: csv or parquet")
	out := fs.String("out", "", "Output file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*out) == "" {
		return fmt.Errorf("-out is required")
	}

	cfg, err := yielddconfig.Load(*cfgPath)
	if err != nil {
		return err
	}
	dsn := cfg.Journal.DSN
	if cfg.Journal.Driver == "sqlite" {
		if dsn, err = storage.FileDSN(dsn); err != nil {
			return err
		}
	}
	journal, err := storage.Open(cfg.Journal.Driver, dsn)
	if err != nil {
		return err
	}
	defer journal.Close()
	return exportJournal(context.Background(), journal, *format, *out, stdout)
}

func exportJournal(ctx context.Context, journal *storage.Journal, format, out string, stdout io.Writer) error {
	var (
		n   int
		err error
	)
	switch strings.ToLower(format) {
	case "csv":
		n, err = journal.ExportCSV(ctx, out)
	case "parquet":
		n, err = journal.ExportParquet(ctx, out)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported %d events to %s\n", n, out)
	return nil
}
