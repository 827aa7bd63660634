package tabexport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func applyOptions(opts ...Option) *Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func TestOptions_Defaults(t *testing.T) {
	o := applyOptions()
	assert.False(t, o.useTemplate)
	assert.True(t, o.generateHeader)
	assert.True(t, o.useSharedStrings)
	assert.Equal(t, ",", o.delimiter)
	assert.Zero(t, o.topN)
	assert.Nil(t, o.resolver)
	assert.NotNil(t, o.formatter)
}

func TestOptions_IgnoreEmptyValues(t *testing.T) {
	o := applyOptions(WithDelimiter(""), WithFormatter(nil))
	assert.Equal(t, ",", o.delimiter)
	assert.NotNil(t, o.formatter)
}

func TestOptions_TemplateSwitch(t *testing.T) {
	o := applyOptions(WithTemplate("t.xlsx"), WithUseTemplate(false))
	assert.False(t, o.useTemplate)
	assert.Equal(t, "t.xlsx", o.templatePath)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
template_path: report.xlsx
generate_header: false
top_n: 10
delimiter: ";"
csv_table: Customers
locale: de-DE
variables:
  region: North
  year: 2024
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "report.xlsx", cfg.TemplatePath)
	require.NotNil(t, cfg.GenerateHeader)
	assert.False(t, *cfg.GenerateHeader)
	assert.Nil(t, cfg.UseSharedStrings)
	assert.Equal(t, 10, cfg.TopN)
	assert.Equal(t, "North", cfg.Variables["region"])

	o := applyOptions(WithConfig(cfg), WithTopN(3))
	assert.True(t, o.useTemplate)
	assert.Equal(t, "report.xlsx", o.templatePath)
	assert.False(t, o.generateHeader)
	assert.True(t, o.useSharedStrings)
	assert.Equal(t, 3, o.topN)
	assert.Equal(t, ";", o.delimiter)
	assert.Equal(t, "Customers", o.csvTable)
	assert.Equal(t, "1.234", o.formatter(1234))
	require.NotNil(t, o.resolver)
	assert.Equal(t, "North 2024", o.resolver.Resolve("${region} ${year}"))
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadConfig(writeConfig(t, "top_n: [1, 2]"))
	assert.ErrorContains(t, err, "parse config")

	_, err = LoadConfig(writeConfig(t, "locale: not a locale!"))
	assert.ErrorContains(t, err, "locale")
}

func TestWithConfig_Nil(t *testing.T) {
	o := applyOptions(WithTopN(4), WithConfig(nil))
	assert.Equal(t, 4, o.topN)
}
