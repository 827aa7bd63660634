package tabexport

import "errors"

var (
	// ErrEmptyDataSource is returned when every table is empty and empty
	// data sources are not allowed. No output is produced.
	ErrEmptyDataSource = errors.New("data source is empty")

	// ErrTemplateUnavailable is returned when a template is required but
	// cannot be read or parsed.
	ErrTemplateUnavailable = errors.New("template unavailable")

	// ErrRowNotFound reports a template row that must exist but does not.
	ErrRowNotFound = errors.New("template row not found")

	// ErrMalformedAddress reports a cell address that cannot be parsed.
	ErrMalformedAddress = errors.New("malformed cell address")

	// ErrUnsupportedFormat reports an unknown output format.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)
