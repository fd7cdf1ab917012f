package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"oshirase/internal/aggregator"
	"oshirase/internal/media"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// printData renders a run as tables on a terminal and as JSON otherwise.
func printData(cmd *cobra.Command, data *aggregator.Data) error {
	if !isTerminal(cmd.OutOrStdout()) {
		return writeJSON(cmd, data)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%d) run %s\n", data.User.Name, data.User.ID, data.RunID)
	for _, section := range []struct {
		name    string
		entries []media.Media
	}{
		{"Anime", data.Lists.Anime},
		{"Manga", data.Lists.Manga},
	} {
		if len(section.entries) == 0 {
			continue
		}
		fmt.Fprintf(out, "\n%s\n", section.name)
		fmt.Fprintln(out, renderTable(
			[]string{"ID", "Title", "Status", "Progress", "Airs", "Latest"},
			buildMediaRows(section.entries),
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
		))
	}
	return nil
}

func buildMediaRows(entries []media.Media) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		airs := ""
		if entry.Schedule != nil {
			airs = string(entry.Schedule.Day) + " " + entry.Schedule.Time
		}
		latest := ""
		if entry.Latest != nil {
			latest = strconv.FormatUint(entry.Latest.Episode, 10)
		}
		rows = append(rows, []string{
			strconv.FormatInt(entry.MediaID, 10),
			entry.Title,
			string(entry.Status),
			progress(entry),
			airs,
			latest,
		})
	}
	return rows
}

func progress(entry media.Media) string {
	if entry.Episodes > 0 {
		return fmt.Sprintf("%d/%d", entry.Progress, entry.Episodes)
	}
	return strconv.Itoa(entry.Progress)
}
