package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"focusflow/internal/ics"
)

func addParse(topLevel *cobra.Command) {
	output := "json"
	cmd := &cobra.Command{
		Use:   "parse FILE",
		Short: "Parse the VEVENT blocks of an .ics file.",
		Example: `
focusflow parse team.ics
focusflow parse team.ics -o yaml
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			res := ics.ParseText(string(data))

			if err := writeOutput(cmd, output, res.Records); err != nil {
				return err
			}
			printWarnings(cmd, res.Warnings)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "json", "Output format. One of 'yaml' or 'json'.")
	topLevel.AddCommand(cmd)
}

func writeOutput(cmd *cobra.Command, format string, v any) error {
	out := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func printWarnings(cmd *cobra.Command, warnings []ics.ParseWarning) {
	if len(warnings) == 0 {
		return
	}
	w := color.New(color.FgYellow)
	for _, pw := range warnings {
		_, _ = w.Fprintln(cmd.ErrOrStderr(), "warning: "+pw.String())
	}
}
