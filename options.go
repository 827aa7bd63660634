package tabexport

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Options holds configuration for the Exporter.
type Options struct {
	useTemplate      bool
	templatePath     string
	templateReader   io.Reader
	generateHeader   bool
	useSharedStrings bool
	topN             int
	delimiter        string
	allowEmpty       bool
	requireTemplate  bool
	csvTable         string
	formatter        ValueFormatter
	resolver         TextResolver
	logger           zerolog.Logger
}

func defaultOptions() *Options {
	return &Options{
		generateHeader:   true,
		useSharedStrings: true,
		delimiter:        ",",
		formatter:        FormatValue,
		logger:           zerolog.Nop(),
	}
}

// Option configures the Exporter.
type Option func(*Options)

// WithTemplate exports spreadsheets into the template file at path.
func WithTemplate(path string) Option {
	return func(o *Options) {
		o.useTemplate = true
		o.templatePath = path
	}
}

// WithTemplateReader exports spreadsheets into the template read from r.
// The reader is drained on first use.
func WithTemplateReader(r io.Reader) Option {
	return func(o *Options) {
		o.useTemplate = true
		o.templateReader = r
	}
}

// WithUseTemplate switches template grafting on or off without touching the
// configured template source.
func WithUseTemplate(use bool) Option {
	return func(o *Options) { o.useTemplate = use }
}

// WithHeader controls whether ##TABLE## directives and CSV exports write a
// header row (default: true).
func WithHeader(generate bool) Option {
	return func(o *Options) { o.generateHeader = generate }
}

// WithSharedStrings controls whether text cells go to the shared-string
// table or are written inline (default: true).
func WithSharedStrings(use bool) Option {
	return func(o *Options) { o.useSharedStrings = use }
}

// WithTopN caps the number of rows exported per table. n <= 0 means no cap.
func WithTopN(n int) Option {
	return func(o *Options) { o.topN = n }
}

// WithDelimiter sets the CSV field delimiter (default: ",").
func WithDelimiter(delim string) Option {
	return func(o *Options) {
		if delim != "" {
			o.delimiter = delim
		}
	}
}

// WithAllowEmptyDataSource lets datasets without rows through.
func WithAllowEmptyDataSource(allow bool) Option {
	return func(o *Options) { o.allowEmpty = allow }
}

// WithRequireTemplate makes a template that cannot be loaded fatal instead
// of falling back to a fresh document.
func WithRequireTemplate(require bool) Option {
	return func(o *Options) { o.requireTemplate = require }
}

// WithCSVTable selects the table a CSV export writes (default: the first).
func WithCSVTable(name string) Option {
	return func(o *Options) { o.csvTable = name }
}

// WithFormatter sets the value formatter. Spreadsheet and XML exports only
// use it for non-numeric values; CSV fields all go through it.
func WithFormatter(f ValueFormatter) Option {
	return func(o *Options) {
		if f != nil {
			o.formatter = f
		}
	}
}

// WithResolver sets the collaborator that rewrites template cell text.
func WithResolver(r TextResolver) Option {
	return func(o *Options) { o.resolver = r }
}

// WithVariables resolves ${...} expressions in template cells against vars.
func WithVariables(vars map[string]any) Option {
	return func(o *Options) { o.resolver = NewExprResolver(vars) }
}

// WithLogger sets the logger (default: disabled).
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) { o.logger = l }
}

// Config is the file form of the exporter options.
type Config struct {
	UseTemplate          bool           `yaml:"use_template"`
	TemplatePath         string         `yaml:"template_path"`
	GenerateHeader       *bool          `yaml:"generate_header"`
	UseSharedStrings     *bool          `yaml:"use_shared_strings"`
	TopN                 int            `yaml:"top_n"`
	Delimiter            string         `yaml:"delimiter"`
	AllowEmptyDataSource bool           `yaml:"allow_empty_data_source"`
	RequireTemplate      bool           `yaml:"require_template"`
	CSVTable             string         `yaml:"csv_table"`
	Locale               string         `yaml:"locale"`
	Variables            map[string]any `yaml:"variables"`
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	if cfg.Locale != "" {
		if _, err := language.Parse(cfg.Locale); err != nil {
			return nil, fmt.Errorf("config %q locale: %w", path, err)
		}
	}
	return &cfg, nil
}

// WithConfig applies every setting of cfg. Options given after it win.
func WithConfig(cfg *Config) Option {
	return func(o *Options) {
		if cfg == nil {
			return
		}
		o.useTemplate = cfg.UseTemplate || cfg.TemplatePath != ""
		if cfg.TemplatePath != "" {
			o.templatePath = cfg.TemplatePath
		}
		if cfg.GenerateHeader != nil {
			o.generateHeader = *cfg.GenerateHeader
		}
		if cfg.UseSharedStrings != nil {
			o.useSharedStrings = *cfg.UseSharedStrings
		}
		o.topN = cfg.TopN
		if cfg.Delimiter != "" {
			o.delimiter = cfg.Delimiter
		}
		o.allowEmpty = cfg.AllowEmptyDataSource
		o.requireTemplate = cfg.RequireTemplate
		o.csvTable = cfg.CSVTable
		if cfg.Locale != "" {
			o.formatter = LocalizedFormatter(language.Make(cfg.Locale))
		}
		if len(cfg.Variables) > 0 {
			o.resolver = NewExprResolver(cfg.Variables)
		}
	}
}
