package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pixelbatch/internal/format"
	"pixelbatch/internal/preflight"
)

type formatRow struct {
	Name      string `json:"name"`
	MIME      string `json:"mime"`
	Extension string `json:"extension"`
	Output    bool   `json:"output"`
	Codec     string `json:"codec,omitempty"`
}

func newFormatsCommand() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:         "formats",
		Short:       "List supported formats and probe the codecs",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			encoders := make(map[string]preflight.Result)
			for _, result := range preflight.CheckCodecs(cmd.Context()) {
				encoders[result.Name] = result
			}

			rows := make([]formatRow, 0, len(format.All()))
			for _, f := range format.All() {
				row := formatRow{Name: f.String(), MIME: f.MIME(), Extension: f.Extension(), Output: f.IsOutput()}
				result, ok := encoders[f.String()+" encoder"]
				if !ok {
					result, ok = encoders[f.String()+" rasterizer"]
				}
				if ok {
					row.Codec = result.Detail
					if !result.Passed {
						row.Codec = "unavailable: " + result.Detail
					}
				}
				rows = append(rows, row)
			}
			if jsonOut {
				return writeJSON(cmd, rows)
			}

			table := make([][]string, 0, len(rows))
			for _, row := range rows {
				table = append(table, []string{row.Name, row.MIME, row.Extension, yesNo(row.Output), row.Codec})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Format", "MIME", "Extension", "Output", "Codec"},
				table,
				nil,
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print as JSON")
	return cmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
