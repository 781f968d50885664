// Command logscope reads structured log records (JSON or logfmt) from
// stdin or a file, filters and reformats them, and writes the result to
// stdout, the way the teacher's logpipe CLI did with the standard flag
// package, rebuilt here on github.com/urfave/cli/v2 for typed, repeatable
// flags and a generated --help page.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/tylermac92/logscope/internal/config"
	"github.com/tylermac92/logscope/internal/filter"
	"github.com/tylermac92/logscope/internal/formatter"
	"github.com/tylermac92/logscope/internal/pipeline"
	"github.com/tylermac92/logscope/internal/record"
	"github.com/tylermac92/logscope/internal/style"
)

var log = logrus.New()

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Error("logscope: run failed")
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "logscope",
		Usage: "view, filter, and reformat structured logs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "input file path (default: stdin)"},
			&cli.StringFlag{Name: "format", Usage: "input format: auto, json, logfmt", Value: "auto"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output format: text, json, logfmt", Value: "text"},
			&cli.StringFlag{Name: "color", Usage: "auto, always, never", Value: "auto"},
			&cli.IntFlag{Name: "concurrency", Aliases: []string{"c"}, Usage: "number of worker goroutines"},
			&cli.IntFlag{Name: "buffer-size", Usage: "bytes per pooled segment buffer"},
			&cli.IntFlag{Name: "max-message-size", Usage: "jumbo reassembly cap in bytes; 0 disables"},
			&cli.BoolFlag{Name: "allow-prefix", Usage: "preserve non-JSON bytes preceding a JSON record"},
			&cli.BoolFlag{Name: "flatten", Usage: "render nested object fields as dotted keys"},
			&cli.BoolFlag{Name: "hide-empty", Usage: "hide fields with empty string or null values"},
			&cli.StringFlag{Name: "time-format", Usage: "Go time layout for the rendered timestamp"},
			&cli.StringFlag{Name: "level", Usage: "drop records less severe than this level"},
			&cli.StringFlag{Name: "since", Usage: "drop records before this RFC3339 time"},
			&cli.StringFlag{Name: "until", Usage: "drop records at or after this RFC3339 time"},
			&cli.StringSliceFlag{Name: "filter", Aliases: []string{"f"}, Usage: "field filter, e.g. level=error (repeatable, ANDed)"},
			&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "boolean query expression, e.g. 'level=error and exists(trace_id)'"},
			&cli.StringSliceFlag{Name: "fields", Usage: "projection: only render these top-level field keys"},
			&cli.StringFlag{Name: "delimiter", Usage: "output record delimiter: newline or nul", Value: "newline"},
			&cli.StringFlag{Name: "config", Usage: "path to a TOML config file, layered beneath these flags"},
			&cli.StringFlag{Name: "log-level", Usage: "logscope's own operational log verbosity", Value: "warn"},
			&cli.BoolFlag{Name: "version", Usage: "print the version and exit"},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	if lvl, err := logrus.ParseLevel(c.String("log-level")); err == nil {
		log.SetLevel(lvl)
	}
	log.SetOutput(os.Stderr)

	if c.Bool("version") {
		fmt.Fprintln(c.App.Writer, version)
		return nil
	}

	fc, err := resolveConfig(c)
	if err != nil {
		return fmt.Errorf("resolving configuration: %w", err)
	}

	opts, err := buildOptions(c, fc)
	if err != nil {
		return fmt.Errorf("building pipeline options: %w", err)
	}

	in, closeIn, err := openInput(c.String("input"))
	if err != nil {
		return fmt.Errorf("opening input: %w", err)
	}
	defer closeIn()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	log.WithFields(logrus.Fields{
		"input_format":  fc.InputFormat,
		"output_format": fc.OutputFormat,
		"concurrency":   opts.Concurrency,
	}).Info("logscope: starting pipeline")

	res, err := pipeline.Run(ctx, in, os.Stdout, opts)
	if err != nil {
		log.WithError(err).WithField("processed", res.Processed).Error("logscope: pipeline aborted")
		return err
	}

	log.WithFields(logrus.Fields{
		"processed": res.Processed,
		"invalid":   res.Invalid,
	}).Info("logscope: pipeline finished")
	return nil
}

// resolveConfig loads the optional TOML file named by --config and
// layers it over the built-in defaults; flag values are applied on
// top of the result by buildOptions, completing the
// defaults < file < flags precedence.
func resolveConfig(c *cli.Context) (config.FileConfig, error) {
	defaults := config.Defaults()
	fileCfg, err := config.LoadFile(c.String("config"))
	if err != nil {
		return config.FileConfig{}, err
	}
	return config.Merge(defaults, fileCfg), nil
}

func buildOptions(c *cli.Context, fc config.FileConfig) (pipeline.Options, error) {
	opts := pipeline.Options{
		BufferSize:     fc.BufferSize,
		MaxMessageSize: fc.MaxMessageSize,
		Concurrency:    fc.Concurrency,
		ParserSettings: record.DefaultParserSettings(),
	}

	if c.IsSet("buffer-size") {
		opts.BufferSize = c.Int("buffer-size")
	}
	if c.IsSet("max-message-size") {
		opts.MaxMessageSize = c.Int("max-message-size")
	}
	if c.IsSet("concurrency") {
		opts.Concurrency = c.Int("concurrency")
	}
	if c.IsSet("allow-prefix") {
		opts.AllowPrefix = c.Bool("allow-prefix")
	}

	inputFormat := fc.InputFormat
	if c.IsSet("format") {
		inputFormat = c.String("format")
	}
	switch inputFormat {
	case "", "auto":
		opts.InputFormat = pipeline.FormatAuto
	case "json":
		opts.InputFormat = pipeline.FormatJSON
	case "logfmt":
		opts.InputFormat = pipeline.FormatLogfmt
	default:
		return opts, fmt.Errorf("unknown --format %q: want auto, json, or logfmt", inputFormat)
	}

	outputFormat := fc.OutputFormat
	if c.IsSet("output") {
		outputFormat = c.String("output")
	}
	switch outputFormat {
	case "", "text":
		opts.OutputMode = pipeline.OutputText
	case "json":
		opts.OutputMode = pipeline.OutputJSON
	case "logfmt":
		opts.OutputMode = pipeline.OutputLogfmt
	default:
		return opts, fmt.Errorf("unknown --output %q: want text, json, or logfmt", outputFormat)
	}

	switch c.String("delimiter") {
	case "", "newline":
		opts.OutputDelimiter = '\n'
	case "nul":
		opts.OutputDelimiter = 0x00
	default:
		return opts, fmt.Errorf("unknown --delimiter %q: want newline or nul", c.String("delimiter"))
	}

	textOpts := formatter.DefaultTextOptions()
	if tf := fc.TimeFormat; tf != "" {
		textOpts.TimeLayout = tf
	}
	if c.IsSet("time-format") {
		textOpts.TimeLayout = c.String("time-format")
	}
	textOpts.Flatten = fc.Flatten
	if c.IsSet("flatten") {
		textOpts.Flatten = c.Bool("flatten")
	}
	textOpts.HideEmpty = fc.HideEmpty
	if c.IsSet("hide-empty") {
		textOpts.HideEmpty = c.Bool("hide-empty")
	}

	fields := fc.Fields
	if c.IsSet("fields") {
		fields = c.StringSlice("fields")
	}
	if len(fields) > 0 {
		textOpts.ProjectionSet = true
		textOpts.Projection = make(map[string]bool, len(fields))
		for _, name := range fields {
			textOpts.Projection[strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")] = true
		}
	}
	opts.TextOpts = textOpts

	f, err := buildFilter(c, fc)
	if err != nil {
		return opts, err
	}
	opts.Filter = f

	colorMode := fc.Color
	if c.IsSet("color") {
		colorMode = c.String("color")
	}
	mode, err := style.ParseColorMode(colorMode)
	if err != nil {
		return opts, err
	}
	opts.NewStyler = style.NewFactory(os.Stdout, mode)

	return opts, nil
}

func buildFilter(c *cli.Context, fc config.FileConfig) (*filter.Filter, error) {
	f := filter.New()

	levelStr := fc.Level
	if c.IsSet("level") {
		levelStr = c.String("level")
	}
	if levelStr != "" {
		lvl, ok := record.ParseLevel(levelStr)
		if !ok {
			return nil, fmt.Errorf("unknown --level %q", levelStr)
		}
		f.WithLevel(lvl)
	}

	if c.IsSet("since") {
		t, err := parseTimeBound(c.String("since"))
		if err != nil {
			return nil, fmt.Errorf("parsing --since: %w", err)
		}
		f.WithSince(t)
	}
	if c.IsSet("until") {
		t, err := parseTimeBound(c.String("until"))
		if err != nil {
			return nil, fmt.Errorf("parsing --until: %w", err)
		}
		f.WithUntil(t)
	}

	exprs := fc.Filters
	if c.IsSet("filter") {
		exprs = c.StringSlice("filter")
	}
	for _, raw := range exprs {
		ff, err := filter.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing --filter %q: %w", raw, err)
		}
		f.WithExpr(queryExprOf(ff))
	}

	query := fc.Query
	if c.IsSet("query") {
		query = c.String("query")
	}
	if query != "" {
		expr, err := filter.ParseQuery(query)
		if err != nil {
			return nil, fmt.Errorf("parsing --query: %w", err)
		}
		f.WithExpr(expr)
	}

	return f, nil
}

// queryExprOf adapts a single field filter into the Expr interface so
// repeated --filter flags compose with WithExpr the same way a --query
// expression's leaves do.
func queryExprOf(ff *filter.FieldFilter) filter.Expr {
	return fieldFilterExpr{ff}
}

type fieldFilterExpr struct{ f *filter.FieldFilter }

func (e fieldFilterExpr) Eval(rec record.Record) bool { return e.f.Apply(rec) }

func parseTimeBound(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q: want RFC3339 or unix seconds", s)
}

func openInput(path string) (*os.File, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, func() {}, err
	}
	return f, func() { f.Close() }, nil
}

const version = "logscope 0.1.0"
