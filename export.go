package tabexport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
)

// Format names an output format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatXML  Format = "xml"
)

// ParseFormat maps a format name or file extension to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(s, "."))); f {
	case FormatXLSX, FormatCSV, FormatXML:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// ContentType returns the media type of documents in the format.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXML:
		return "application/xml"
	default:
		return "application/octet-stream"
	}
}

// Exporter writes datasets in the supported formats. An Exporter may be
// used from several goroutines; each export owns its own state.
type Exporter struct {
	opts *Options

	templateOnce sync.Once
	template     []byte
	templateErr  error
}

// NewExporter creates an Exporter with the given options.
func NewExporter(opts ...Option) *Exporter {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Exporter{opts: o}
}

// Export writes ds to w in the given format. Nothing is written to w when
// the export fails.
func (e *Exporter) Export(ds Dataset, format Format, w io.Writer) error {
	if !e.opts.allowEmpty && isEmptyDataset(ds) {
		return ErrEmptyDataSource
	}

	var buf bytes.Buffer
	switch format {
	case FormatXLSX:
		if err := e.exportXLSX(ds, &buf); err != nil {
			return err
		}
	case FormatCSV:
		cw := newCSVWriter(e.opts)
		if err := cw.Write(ds, &buf); err != nil {
			return err
		}
	case FormatXML:
		xw := newXMLWriter(e.opts)
		if err := xw.Write(ds, &buf); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if _, err := buf.WriteTo(w); err != nil {
		return fmt.Errorf("write %s output: %w", format, err)
	}
	return nil
}

func (e *Exporter) exportXLSX(ds Dataset, w io.Writer) error {
	if e.opts.useTemplate {
		tmpl, err := e.loadTemplate()
		if err == nil {
			return (&templateEngine{opts: e.opts}).export(ds, tmpl, w)
		}
		if e.opts.requireTemplate {
			return fmt.Errorf("%w: %w", ErrTemplateUnavailable, err)
		}
		e.opts.logger.Warn().Err(err).Msg("template unavailable, writing a new workbook")
	}
	return (&freshEngine{opts: e.opts}).export(ds, w)
}

// loadTemplate reads the configured template once and checks that it opens
// as a spreadsheet.
func (e *Exporter) loadTemplate() ([]byte, error) {
	e.templateOnce.Do(func() {
		e.template, e.templateErr = readTemplate(e.opts)
	})
	return e.template, e.templateErr
}

func readTemplate(o *Options) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case o.templateReader != nil:
		data, err = io.ReadAll(o.templateReader)
		if err != nil {
			return nil, fmt.Errorf("read template: %w", err)
		}
	case o.templatePath != "":
		data, err = os.ReadFile(o.templatePath)
		if err != nil {
			return nil, fmt.Errorf("open template %q: %w", o.templatePath, err)
		}
	default:
		return nil, errors.New("no template configured")
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open template: %w", err)
	}
	f.Close()
	return data, nil
}

// ExportBytes returns ds encoded in the given format.
func (e *Exporter) ExportBytes(ds Dataset, format Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Export(ds, format, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportFile writes ds to path. The file only appears once the export has
// succeeded.
func (e *Exporter) ExportFile(ds Dataset, format Format, path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create output file %q: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("create output file %q: %w", path, err)
	}
	if err := e.Export(ds, format, tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close output file %q: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename output file %q: %w", path, err)
	}
	return nil
}

// Export writes ds to w in the given format with a one-off Exporter.
func Export(ds Dataset, format Format, w io.Writer, opts ...Option) error {
	return NewExporter(opts...).Export(ds, format, w)
}

// ExportBytes returns ds encoded in the given format with a one-off Exporter.
func ExportBytes(ds Dataset, format Format, opts ...Option) ([]byte, error) {
	return NewExporter(opts...).ExportBytes(ds, format)
}

// ExportFile writes ds to path with a one-off Exporter. The format follows
// the file extension.
func ExportFile(ds Dataset, path string, opts ...Option) error {
	format, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return err
	}
	return NewExporter(opts...).ExportFile(ds, format, path)
}
