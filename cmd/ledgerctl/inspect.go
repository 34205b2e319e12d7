package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/JonMunkholm/ledgerimport/internal/mapping"
	"github.com/spf13/cobra"
)

func proposeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "propose <file.csv>",
		Short: "Print the headers of a CSV file and the mapping proposed for them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := readTable(args[0])
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), map[string]any{
				"headers":  table.Headers,
				"encoding": table.Encoding,
				"rows":     len(table.Rows),
				"mapping":  mapping.Propose(table.Headers),
			})
		},
	}
}

func validateCommand() *cobra.Command {
	var mappingFile string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "validate <file.csv>",
		Short: "Validate a CSV file against a mapping and report row errors",
		Long: "Validate a CSV file against a mapping and report row errors.\n" +
			"Without --mapping the proposed mapping is used. Exits non-zero when any error is found.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := readTable(args[0])
			if err != nil {
				return err
			}

			m := mapping.Propose(table.Headers)
			if mappingFile != "" {
				if m, err = readMapping(mappingFile); err != nil {
					return err
				}
			}

			report := mapping.Validate(m, table.Rows)

			out := cmd.OutOrStdout()
			if asJSON {
				if err := printJSON(out, report); err != nil {
					return err
				}
			} else {
				printReport(out, &report)
			}
			return report.Err()
		},
	}
	cmd.Flags().StringVar(&mappingFile, "mapping", "", "JSON file holding a mapping")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full report as JSON")

	return cmd
}

func readTable(path string) (*mapping.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return mapping.ReadCSV(f)
}

// readMapping accepts either a bare mapping array or {"mapping": [...]}.
func readMapping(path string) (mapping.Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var wrapped struct {
		Mapping mapping.Mapping `json:"mapping"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Mapping != nil {
		return wrapped.Mapping, nil
	}

	var m mapping.Mapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid mapping file %s: %w", path, err)
	}
	return m, nil
}

func printReport(w io.Writer, report *mapping.Report) {
	for _, fe := range report.FormErrors {
		fmt.Fprintf(w, "mapping: %s: %s\n", fe.Field, fe.Message)
	}
	for _, re := range report.RowErrors() {
		fmt.Fprintf(w, "line %d: %s: %s\n", re.Line, re.Field, re.Message)
	}
	fmt.Fprintf(w, "%d rows, %d with errors\n", report.Total, report.ErrorRows)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
