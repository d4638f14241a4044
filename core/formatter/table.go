package formatter

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/artpar/resrun/core/value"
)

// TableFormatter formats output as aligned text tables.
type TableFormatter struct{}

// NewTableFormatter creates a new table formatter.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{}
}

// Name returns the formatter name.
func (f *TableFormatter) Name() string {
	return "table"
}

// Description returns the formatter description.
func (f *TableFormatter) Description() string {
	return "Aligned text table output"
}

// FormatValue writes scalars on one line and objects as key-value pairs.
// Nil writes nothing.
func (f *TableFormatter) FormatValue(w io.Writer, v any, opts FormatOptions) error {
	switch v := v.(type) {
	case nil:
		return nil
	case *value.OrderedMap:
		return f.formatPairs(w, v.Keys(), func(k string) any { x, _ := v.Get(k); return x }, opts)
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return f.formatPairs(w, keys, func(k string) any { return v[k] }, opts)
	case []any:
		for _, item := range v {
			if _, err := fmt.Fprintln(w, f.formatValue(item, opts.MaxWidth)); err != nil {
				return err
			}
		}
		return nil
	}
	_, err := fmt.Fprintln(w, f.formatValue(v, opts.MaxWidth))
	return err
}

func (f *TableFormatter) formatPairs(w io.Writer, keys []string, get func(string) any, opts FormatOptions) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(tw, "%s:\t%s\n", k, f.formatValue(get(k), opts.MaxWidth))
	}
	return tw.Flush()
}

// FormatList formats a list of records as a table.
func (f *TableFormatter) FormatList(w io.Writer, records []map[string]any, opts FormatOptions) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "No records found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	columns := columnsOf(records, opts)

	if !opts.NoHeader {
		headers := make([]string, len(columns))
		rules := make([]string, len(columns))
		for i, col := range columns {
			headers[i] = strings.ToUpper(col)
			rules[i] = strings.Repeat("-", len(col))
		}
		fmt.Fprintln(tw, strings.Join(headers, "\t"))
		fmt.Fprintln(tw, strings.Join(rules, "\t"))
	}

	for _, record := range records {
		values := make([]string, len(columns))
		for i, col := range columns {
			values[i] = f.formatValue(record[col], opts.MaxWidth)
		}
		fmt.Fprintln(tw, strings.Join(values, "\t"))
	}

	return tw.Flush()
}

// FormatError formats an error message.
func (f *TableFormatter) FormatError(w io.Writer, err error) error {
	fmt.Fprintf(w, "Error: %s\n", err.Error())
	return nil
}

// formatValue formats a value for display.
func (f *TableFormatter) formatValue(val any, maxWidth int) string {
	if val == nil {
		return "-"
	}

	var str string
	switch v := val.(type) {
	case string:
		str = v
	case bool:
		str = strconv.FormatBool(v)
	case []byte:
		str = value.FormatBinary(v)
	case float64:
		str = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		str = strconv.Itoa(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			str = fmt.Sprint(v)
		} else {
			str = string(b)
		}
	}

	if maxWidth > 3 && len(str) > maxWidth {
		str = str[:maxWidth-3] + "..."
	}

	return str
}

func init() {
	Register(NewTableFormatter())
}
