package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// output formats command results as tables or JSON.
type output struct {
	jsonMode bool
	w        io.Writer
}

func newOutput(w io.Writer) *output {
	return &output{jsonMode: jsonOutput, w: w}
}

// print writes rows as a table, or jsonData as JSON in JSON mode.
func (o *output) print(headers []string, rows [][]string, jsonData any) error {
	if o.jsonMode {
		return o.json(jsonData)
	}
	o.table(headers, rows)
	return nil
}

func (o *output) table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	_ = tw.Flush()
}

func (o *output) json(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// line writes one compact JSON value per line.
func (o *output) line(v any) error {
	return json.NewEncoder(o.w).Encode(v)
}
