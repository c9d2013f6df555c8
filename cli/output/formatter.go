// Package output provides output formatting for the advsearch CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// Format represents the output format
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (valid: table, json, yaml)", s)
	}
}

// Formatter formats output in various formats
type Formatter struct {
	Format    Format
	NoHeaders bool
	Quiet     bool
	Writer    io.Writer
	ErrWriter io.Writer
}

// NewFormatter creates a new formatter
func NewFormatter(format Format, noHeaders, quiet bool) *Formatter {
	return &Formatter{
		Format:    format,
		NoHeaders: noHeaders,
		Quiet:     quiet,
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
	}
}

// Structured reports whether output is machine readable.
func (f *Formatter) Structured() bool {
	return f.Format == FormatJSON || f.Format == FormatYAML
}

// Print outputs data as JSON or YAML. Table mode falls back to JSON.
func (f *Formatter) Print(data interface{}) error {
	if f.Quiet {
		return nil
	}

	if f.Format == FormatYAML {
		return f.printYAML(data)
	}
	return f.printJSON(data)
}

func (f *Formatter) printJSON(data interface{}) error {
	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (f *Formatter) printYAML(data interface{}) error {
	encoder := yaml.NewEncoder(f.Writer)
	encoder.SetIndent(2)
	defer func() { _ = encoder.Close() }()
	return encoder.Encode(data)
}

// TableData represents tabular data for table output
type TableData struct {
	Headers []string
	Rows    [][]string
}

// records turns table rows into header-keyed maps for structured output.
func (d TableData) records() []map[string]string {
	out := make([]map[string]string, 0, len(d.Rows))
	for _, row := range d.Rows {
		rec := make(map[string]string, len(d.Headers))
		for j, cell := range row {
			if j < len(d.Headers) {
				rec[d.Headers[j]] = cell
			}
		}
		out = append(out, rec)
	}
	return out
}

// PrintTable prints rows as a borderless, tab-padded table, or as a list of
// objects in JSON/YAML mode.
func (f *Formatter) PrintTable(data TableData) {
	if f.Quiet {
		return
	}
	if f.Structured() {
		_ = f.Print(data.records())
		return
	}

	table := tablewriter.NewWriter(f.Writer)
	if !f.NoHeaders && len(data.Headers) > 0 {
		table.SetHeader(data.Headers)
	}
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	table.AppendBulk(data.Rows)
	table.Render()
}

// PrintIDs lists resource ids one per row under an ID header.
func (f *Formatter) PrintIDs(ids []int) {
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, []string{strconv.Itoa(id)})
	}
	f.PrintTable(TableData{Headers: []string{"ID"}, Rows: rows})
}

// ArgRows pairs each bound argument with its $n placeholder.
func ArgRows(args []interface{}) [][]string {
	rows := make([][]string, 0, len(args))
	for i, arg := range args {
		rows = append(rows, []string{"$" + strconv.Itoa(i+1), fmt.Sprintf("%v", arg)})
	}
	return rows
}

// PrintSQL prints a statement followed by its bound arguments.
func (f *Formatter) PrintSQL(sql string, args []interface{}) {
	if f.Quiet {
		return
	}
	_, _ = fmt.Fprintln(f.Writer, sql)
	if len(args) > 0 {
		_, _ = fmt.Fprintln(f.Writer)
		f.PrintTable(TableData{Headers: []string{"Param", "Value"}, Rows: ArgRows(args)})
	}
}

// PrintSuccess prints a success message
func (f *Formatter) PrintSuccess(message string) {
	if f.Quiet {
		return
	}
	_, _ = fmt.Fprintln(f.Writer, message)
}

// PrintError prints an error message
func (f *Formatter) PrintError(message string) {
	_, _ = fmt.Fprintln(f.ErrWriter, "Error:", message)
}

// PrintKeyValue prints aligned key-value pairs in table mode, or a single
// object otherwise.
func (f *Formatter) PrintKeyValue(keys []string, values map[string]string) {
	if f.Quiet {
		return
	}

	if f.Structured() {
		_ = f.Print(values)
		return
	}

	width := 0
	for _, k := range keys {
		if len(k) > width {
			width = len(k)
		}
	}
	for _, k := range keys {
		_, _ = fmt.Fprintf(f.Writer, "%-*s  %s\n", width+1, k+":", values[k])
	}
}
