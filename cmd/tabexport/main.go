// Package main provides the tabexport command line tool.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/javajack/tabexport"
	"github.com/javajack/tabexport/internal/datafile"
	"github.com/javajack/tabexport/internal/httpapi"
)

var (
	configPath      string
	templatePath    string
	verbose         bool
	inputPath       string
	driver          string
	dsn             string
	queries         []string
	datasetName     string
	format          string
	outputPath      string
	header          bool
	sharedStrings   bool
	topN            int
	delimiter       string
	csvTable        string
	allowEmpty      bool
	requireTemplate bool
	addr            string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "tabexport",
		Short:         "Export tabular data to xlsx, csv and xml",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVarP(&templatePath, "template", "t", "", "xlsx template with ##HEADER##/##DATA##/##TABLE## directives")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log directive processing")

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export a dataset file or SQL query results",
		Args:  cobra.NoArgs,
		RunE:  runExport,
	}
	f := exportCmd.Flags()
	f.StringVarP(&inputPath, "input", "i", "", "Dataset file (YAML or JSON)")
	f.StringVar(&driver, "driver", "sqlite3", "SQL driver: sqlite3 or postgres")
	f.StringVar(&dsn, "dsn", "", "SQL data source name")
	f.StringArrayVarP(&queries, "query", "q", nil, "Table query as name=SELECT ... (repeatable)")
	f.StringVar(&datasetName, "name", "export", "Dataset name for SQL sources")
	f.StringVarP(&format, "format", "f", "", "Output format: xlsx, csv, xml (default: output extension)")
	f.StringVarP(&outputPath, "output", "o", "", "Output file (default: stdout)")
	f.BoolVar(&header, "header", true, "Write header rows")
	f.BoolVar(&sharedStrings, "shared-strings", true, "Store text in the shared-string table")
	f.IntVar(&topN, "top", 0, "Export at most this many rows per table")
	f.StringVar(&delimiter, "delimiter", ",", "CSV field delimiter")
	f.StringVar(&csvTable, "table", "", "Table written by csv exports (default: first)")
	f.BoolVar(&allowEmpty, "allow-empty", false, "Export datasets without rows")
	f.BoolVar(&requireTemplate, "require-template", false, "Fail when the template cannot be loaded")

	describeCmd := &cobra.Command{
		Use:   "describe [template.xlsx]",
		Short: "List the directives and expressions of a template",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDescribe,
	}

	validateCmd := &cobra.Command{
		Use:   "validate [template.xlsx]",
		Short: "Check a template, optionally against a dataset file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runValidate,
	}
	validateCmd.Flags().StringVarP(&inputPath, "input", "i", "", "Dataset file to check directive tables against")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve exports over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")

	rootCmd.AddCommand(exportCmd, describeCmd, validateCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Str("component", "tabexport").Logger()
}

// exportOptions layers the config file, the template flag and explicitly
// set flags, in that order.
func exportOptions(cmd *cobra.Command, log zerolog.Logger) ([]tabexport.Option, error) {
	opts := []tabexport.Option{tabexport.WithLogger(log)}
	if configPath != "" {
		cfg, err := tabexport.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, tabexport.WithConfig(cfg))
	}
	if templatePath != "" {
		opts = append(opts, tabexport.WithTemplate(templatePath))
	}

	flags := cmd.Flags()
	set := func(name string, opt tabexport.Option) {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			opts = append(opts, opt)
		}
	}
	set("header", tabexport.WithHeader(header))
	set("shared-strings", tabexport.WithSharedStrings(sharedStrings))
	set("top", tabexport.WithTopN(topN))
	set("delimiter", tabexport.WithDelimiter(delimiter))
	set("table", tabexport.WithCSVTable(csvTable))
	set("allow-empty", tabexport.WithAllowEmptyDataSource(allowEmpty))
	set("require-template", tabexport.WithRequireTemplate(requireTemplate))
	return opts, nil
}

func runExport(cmd *cobra.Command, args []string) error {
	log := newLogger()
	opts, err := exportOptions(cmd, log)
	if err != nil {
		return err
	}

	fmtName := format
	if fmtName == "" {
		if outputPath == "" {
			return errors.New("--format is required when writing to stdout")
		}
		fmtName = filepath.Ext(outputPath)
	}
	outFormat, err := tabexport.ParseFormat(fmtName)
	if err != nil {
		return err
	}

	ds, err := loadDataset(cmd.Context())
	if err != nil {
		return err
	}

	exp := tabexport.NewExporter(opts...)
	if outputPath == "" {
		return exp.Export(ds, outFormat, os.Stdout)
	}
	if err := exp.ExportFile(ds, outFormat, outputPath); err != nil {
		return err
	}
	log.Info().Str("output", outputPath).Str("format", string(outFormat)).Msg("export written")
	return nil
}

func loadDataset(ctx context.Context) (tabexport.Dataset, error) {
	switch {
	case inputPath != "" && dsn != "":
		return nil, errors.New("use either --input or --dsn, not both")
	case inputPath != "":
		return datafile.Load(inputPath)
	case dsn != "":
		return queryDataset(ctx)
	default:
		return nil, errors.New("no data source: set --input or --dsn")
	}
}

func queryDataset(ctx context.Context) (tabexport.Dataset, error) {
	if len(queries) == 0 {
		return nil, errors.New("--dsn needs at least one --query name=SELECT ...")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	defer db.Close()

	ds := tabexport.NewDataSet(datasetName)
	for _, q := range queries {
		name, query, ok := strings.Cut(q, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("query %q: want name=SELECT ...", q)
		}
		t, err := tabexport.QueryTable(ctx, db, strings.TrimSpace(name), query)
		if err != nil {
			return nil, err
		}
		ds.AddTable(t)
	}
	return ds, nil
}

func templateArg(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if templatePath != "" {
		return templatePath, nil
	}
	if configPath != "" {
		cfg, err := tabexport.LoadConfig(configPath)
		if err != nil {
			return "", err
		}
		if cfg.TemplatePath != "" {
			return cfg.TemplatePath, nil
		}
	}
	return "", errors.New("no template: pass a path or --template")
}

func runDescribe(cmd *cobra.Command, args []string) error {
	path, err := templateArg(args)
	if err != nil {
		return err
	}
	out, err := tabexport.DescribeTemplate(path, tabexport.WithLogger(newLogger()))
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	path, err := templateArg(args)
	if err != nil {
		return err
	}
	var ds tabexport.Dataset
	if inputPath != "" {
		if ds, err = datafile.Load(inputPath); err != nil {
			return err
		}
	}
	issues, err := tabexport.ValidateTemplate(path, ds, tabexport.WithLogger(newLogger()))
	if err != nil {
		return err
	}
	failed := false
	for _, issue := range issues {
		fmt.Println(issue)
		if issue.Severity == tabexport.SeverityError {
			failed = true
		}
	}
	if failed {
		return errors.New("template has errors")
	}
	if len(issues) == 0 {
		fmt.Println("OK")
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	log := newLogger()
	opts, err := exportOptions(cmd, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.New(log, opts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
