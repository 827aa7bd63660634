package tabexport

import (
	"fmt"
	"strings"
)

// Severity indicates the severity of a validation issue.
type Severity int

const (
	SeverityError   Severity = iota // export will fail or lose data
	SeverityWarning                 // export may not produce what the template suggests
)

// ValidationIssue is a single problem found in a template.
type ValidationIssue struct {
	Severity Severity
	CellRef  CellRef
	Message  string
}

// String formats the issue as "[ERROR] Sheet1!A2: message" or "[WARN] ...".
func (v ValidationIssue) String() string {
	sev := "ERROR"
	if v.Severity == SeverityWarning {
		sev = "WARN"
	}
	return fmt.Sprintf("[%s] %s: %s", sev, v.CellRef, v.Message)
}

// ValidateTemplate checks the template at path without exporting anything.
// When ds is not nil, directive tables are checked against it.
func ValidateTemplate(path string, ds Dataset, opts ...Option) ([]ValidationIssue, error) {
	allOpts := append([]Option{WithTemplate(path)}, opts...)
	return NewExporter(allOpts...).Validate(ds)
}

// Validate runs static checks on the configured template. A non-nil error
// means the template could not be read at all.
func (e *Exporter) Validate(ds Dataset) ([]ValidationIssue, error) {
	data, err := e.loadTemplate()
	if err != nil {
		return nil, err
	}
	sheets, err := inspectTemplate(data)
	if err != nil {
		return nil, err
	}

	var issues []ValidationIssue
	for _, ts := range sheets {
		issues = append(issues, validateSheet(ts, ds)...)
	}
	return issues, nil
}

func validateSheet(ts templateSheet, ds Dataset) []ValidationIssue {
	var issues []ValidationIssue
	dataRows := map[int]CellRef{}
	for _, tc := range ts.cells {
		table, keyword, isToken := directiveToken(tc.text)
		if !isToken {
			issues = append(issues, checkExpressions(tc)...)
			continue
		}
		contents, known := directiveKeywords[strings.ToLower(keyword)]
		if !known {
			issues = append(issues, ValidationIssue{
				Severity: SeverityWarning,
				CellRef:  tc.ref,
				Message:  fmt.Sprintf("unknown directive keyword %q, cell is kept as text", keyword),
			})
			continue
		}
		if ds != nil {
			if _, ok := resolveTable(ds, table); !ok {
				issues = append(issues, ValidationIssue{
					Severity: SeverityWarning,
					CellRef:  tc.ref,
					Message:  fmt.Sprintf("table %q is not in dataset %q, directive will be skipped", table, ds.Name()),
				})
			}
		}
		if !contents.hasData() {
			continue
		}
		if prev, ok := dataRows[tc.ref.Row]; ok {
			issues = append(issues, ValidationIssue{
				Severity: SeverityWarning,
				CellRef:  tc.ref,
				Message:  fmt.Sprintf("shares row %d with the directive at %s, cloned rows repeat both tables", tc.ref.Row, prev.CellName()),
			})
			continue
		}
		dataRows[tc.ref.Row] = tc.ref
	}
	return issues
}

// checkExpressions compiles every ${...} segment of a cell.
func checkExpressions(tc templateCell) []ValidationIssue {
	if !strings.Contains(tc.text, exprBegin) {
		return nil
	}
	var issues []ValidationIssue
	for _, seg := range ParseExpressions(tc.text) {
		if !seg.IsExpression {
			continue
		}
		if err := CheckExpression(seg.Text); err != nil {
			issues = append(issues, ValidationIssue{
				Severity: SeverityError,
				CellRef:  tc.ref,
				Message:  fmt.Sprintf("invalid expression syntax %q: %v", seg.Text, err),
			})
		}
	}
	return issues
}
