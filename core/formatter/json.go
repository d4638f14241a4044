package formatter

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/artpar/resrun/core/errs"
)

// JSONFormatter formats output as JSON.
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Name returns the formatter name.
func (f *JSONFormatter) Name() string {
	return "json"
}

// Description returns the formatter description.
func (f *JSONFormatter) Description() string {
	return "JSON output format"
}

// FormatValue formats a value as JSON.
func (f *JSONFormatter) FormatValue(w io.Writer, v any, opts FormatOptions) error {
	return f.encode(w, v, opts.Compact)
}

// FormatList formats records as a JSON array.
func (f *JSONFormatter) FormatList(w io.Writer, records []map[string]any, opts FormatOptions) error {
	return f.encode(w, orderedRecords(records, opts), opts.Compact)
}

// FormatError formats an error as JSON.
func (f *JSONFormatter) FormatError(w io.Writer, err error) error {
	output := map[string]any{
		"error": err.Error(),
	}
	if code := errs.CodeOf(err); code != "" {
		output["code"] = string(code)
	}
	return f.encode(w, output, false)
}

// encode writes JSON to the writer.
func (f *JSONFormatter) encode(w io.Writer, data any, compact bool) error {
	encoder := json.NewEncoder(w)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

func init() {
	if err := Register(NewJSONFormatter()); err != nil {
		fmt.Printf("failed to register json formatter: %v\n", err)
	}
}
