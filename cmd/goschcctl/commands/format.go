package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
)

const formatJSON = "json"

// formatCompressResult renders a compress response in the requested format.
func formatCompressResult(r compressResult, format string) string {
	if format == formatJSON {
		data, _ := json.MarshalIndent(r, "", "  ")
		return string(data)
	}

	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Rule ID:\t%s\n", r.RuleID)
	fmt.Fprintf(w, "Compressed:\t%s\n", r.Hex)
	fmt.Fprintf(w, "Bytes Saved:\t%d\n", r.BytesSaved)
	w.Flush()
	return buf.String()
}

// formatDecompressResult renders a decompress response in the requested format.
func formatDecompressResult(r decompressResult, format string) string {
	if format == formatJSON {
		data, _ := json.MarshalIndent(r, "", "  ")
		return string(data)
	}

	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Rule ID:\t%s\n", r.RuleID)
	fmt.Fprintf(w, "Reconstructed:\t%s\n", r.Hex)
	w.Flush()
	return buf.String()
}

// formatContexts renders a context listing in the requested format.
func formatContexts(contexts []contextSummary, format string) string {
	if format == formatJSON {
		data, _ := json.MarshalIndent(contexts, "", "  ")
		return string(data)
	}

	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tINTERFACE\tPARSER\tRULE-ID-LEN\tRULES")
	for _, c := range contexts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
			c.ID, c.InterfaceID, c.ParserID, c.RuleIDLength, c.RuleCount)
	}
	w.Flush()
	return buf.String()
}
