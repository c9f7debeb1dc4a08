package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newDiagnoseCommand(ctx *commandContext) *cobra.Command {
	var (
		fix        bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Check the transcription service, progress channel, and output directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.openApp(cmd)
			if err != nil {
				return err
			}

			report := app.RefreshDiagnostics(cmd.Context())
			if fix {
				for _, item := range report.Failed() {
					fixed, err := app.FixDiagnostic(cmd.Context(), item.ID)
					if err != nil {
						ctx.logger.Warn().Err(err).Str("check", item.ID).Msg("fix failed")
					}
					report = fixed
				}
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return fmt.Errorf("encode report: %w", err)
				}
				fmt.Fprintln(out, string(data))
			} else {
				fmt.Fprintln(out, renderDiagnostics(report))
			}

			if report.HasFailures {
				return fmt.Errorf("%d check(s) failed", len(report.Failed()))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fix, "fix", false, "Apply local fixes for failed checks")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")
	return cmd
}
