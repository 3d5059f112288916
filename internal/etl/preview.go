package etl

import (
	"strings"
	"text/tabwriter"
)

// FormatPreview renders the leading n records as an aligned text table.
func FormatPreview(ds *Dataset, n int) string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)

	names := ds.Schema.FieldNames()
	tw.Write([]byte(strings.Join(names, "\t") + "\n"))
	cells := make([]string, len(names))
	for _, r := range ds.Head(n) {
		for i, name := range names {
			cells[i] = FormatValue(r.Data[name])
		}
		tw.Write([]byte(strings.Join(cells, "\t") + "\n"))
	}
	tw.Flush()
	return b.String()
}
