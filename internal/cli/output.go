package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

// printResult writes v as indented JSON, or hands the writer to text for
// the human format.
func printResult(w io.Writer, format string, v interface{}, text func(w io.Writer) error) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w)
}

// table writes rows aligned in columns under header.
func table(w io.Writer, header string, rows func(tw io.Writer)) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	rows(tw)
	return tw.Flush()
}

// truncate shortens content for one-line display.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
