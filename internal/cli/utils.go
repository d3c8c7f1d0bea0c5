// Package cli provides output helpers for the gazou command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/hyperjump/gazou/internal/models"
	"github.com/hyperjump/gazou/internal/registry"
	"github.com/hyperjump/gazou/pkg/utils"
)

// OutputFormat selects how results are printed.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one tab-separated line per result.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputCompact, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, compact or json)", s)
	}
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, r := range response.Results {
			fmt.Fprintf(w, "%.4f\t%s\n", r.Score, r.Path)
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results for %q in %dms\n\n", response.Total, response.Keyword, response.QueryTime)
	for i, result := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", i+1, result.Score)
		fmt.Fprintf(w, "Name: %s\n", result.Name)
		fmt.Fprintf(w, "Path: %s\n", result.Path)
		if result.Thumbnail != "" {
			fmt.Fprintf(w, "Thumbnail: %s\n", result.Thumbnail)
		}
		if result.Description != "" {
			fmt.Fprintf(w, "\n%s\n", utils.Truncate(result.Description, 200))
		}
		fmt.Fprintln(w)
	}
}

// WriteDirectories writes registered directories to w.
func WriteDirectories(w io.Writer, dirs []registry.DirectoryStatus, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, dirs)
	}
	if len(dirs) == 0 {
		fmt.Fprintln(w, "No directories registered.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if format != OutputCompact {
		fmt.Fprintln(tw, "NAME\tPATH\tRENAME\tWATCHING\tINDEXED")
	}
	for _, d := range dirs {
		indexed := "-"
		if d.Task != nil {
			if d.Task.Done {
				indexed = fmt.Sprintf("%d/%d", d.Task.Indexed, d.Task.Total)
			} else {
				indexed = fmt.Sprintf("running %d/%d", d.Task.Current, d.Task.Total)
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%v\t%v\t%s\n", d.Name, d.RootPath, d.EnableRename, d.Watching, indexed)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
