// Command secureflow-import loads one workbook into the database, either
// an .xlsx file or a Google Spreadsheet, and exits.
//
//	secureflow-import -kind parcelas -file parcelas.xlsx
//	secureflow-import -kind renovacoes -spreadsheet 1AbC...
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"secureflow/internal/cli"
	"secureflow/internal/core"
	"secureflow/internal/ingest"
	"secureflow/internal/log"
	"secureflow/internal/workbook/google"
)

func main() {
	os.Exit(runMain(os.Args[1:], os.Stdout, os.Stderr))
}

// runMain returns the exit code so deferred cleanup runs on every path.
func runMain(args []string, stdout, stderr io.Writer) int {
	cli.LoadEnvFile()

	fs := flag.NewFlagSet("secureflow-import", flag.ContinueOnError)
	fs.SetOutput(stderr)
	kindFlag := fs.String("kind", "", "feed to import: renovacoes, novos or parcelas")
	file := fs.String("file", "", "path of the .xlsx workbook")
	spreadsheet := fs.String("spreadsheet", "", "Google Spreadsheet id (defaults to GOOGLE_SPREADSHEET_ID when -file is empty)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	usage := func(err error) int {
		fmt.Fprintf(stderr, "secureflow-import: %v\n\n", err)
		fs.Usage()
		return 2
	}

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.SetupLogger("info", log.ComponentImport).Error("Configuration validation failed", log.FieldError, err)
		return 1
	}
	logger := cli.SetupLogger(cfg.LogLevel, log.ComponentImport)

	kind, err := core.ParseRecordKind(*kindFlag)
	if err != nil {
		return usage(err)
	}
	if *file != "" && *spreadsheet != "" {
		return usage(errors.New("-file and -spreadsheet are mutually exclusive"))
	}
	if *file == "" && *spreadsheet == "" {
		*spreadsheet = cfg.GoogleSpreadsheetID
	}
	if *file == "" && *spreadsheet == "" {
		return usage(errors.New("one of -file or -spreadsheet is required"))
	}

	app, err := cli.Bootstrap(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", log.FieldError, err)
		return 1
	}
	defer app.Close()

	ctx, cancel := cli.SignalContext(context.Background(), logger)
	defer cancel()

	res, err := run(ctx, app, kind, *file, *spreadsheet)
	if err != nil {
		logger.Error("Import failed", log.FieldError, err)
		return 1
	}

	fmt.Fprintf(stdout, "%s %d linhas em %d planilhas (lote %s)\n", res.Message, res.Inserted, res.Sheets, res.BatchID)
	return 0
}

func run(ctx context.Context, app *cli.App, kind core.RecordKind, file, spreadsheet string) (ingest.Result, error) {
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return ingest.Result{}, err
		}
		defer f.Close()
		return app.Imports.ImportFile(ctx, kind, f)
	}
	src, err := google.New(ctx, spreadsheet, app.Logger)
	if err != nil {
		return ingest.Result{}, fmt.Errorf("google sheets source: %w", err)
	}
	return app.Imports.ImportSource(ctx, kind, src)
}
