package formatter

import (
	"fmt"
	"io"

	"github.com/artpar/resrun/core/errs"
	"gopkg.in/yaml.v3"
)

// YAMLFormatter formats output as YAML.
type YAMLFormatter struct{}

// NewYAMLFormatter creates a new YAML formatter.
func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

// Name returns the formatter name.
func (f *YAMLFormatter) Name() string {
	return "yaml"
}

// Description returns the formatter description.
func (f *YAMLFormatter) Description() string {
	return "YAML output format"
}

// FormatValue formats a value as a YAML document. Nil writes nothing.
func (f *YAMLFormatter) FormatValue(w io.Writer, v any, opts FormatOptions) error {
	if v == nil {
		return nil
	}
	return f.encode(w, v)
}

// FormatList formats records as a YAML sequence.
func (f *YAMLFormatter) FormatList(w io.Writer, records []map[string]any, opts FormatOptions) error {
	return f.encode(w, orderedRecords(records, opts))
}

// FormatError formats an error as YAML.
func (f *YAMLFormatter) FormatError(w io.Writer, err error) error {
	output := map[string]any{
		"error": err.Error(),
	}
	if code := errs.CodeOf(err); code != "" {
		output["code"] = string(code)
	}
	return f.encode(w, output)
}

// encode writes YAML to the writer.
func (f *YAMLFormatter) encode(w io.Writer, data any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(data); err != nil {
		return err
	}
	return encoder.Close()
}

func init() {
	if err := Register(NewYAMLFormatter()); err != nil {
		fmt.Printf("failed to register yaml formatter: %v\n", err)
	}
}
