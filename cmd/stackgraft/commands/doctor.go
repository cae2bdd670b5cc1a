package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stackgraft/stackgraft/pkg/engine"
	"github.com/stackgraft/stackgraft/pkg/report"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check prerequisites without touching the cloud",
	Long: `Verify the policy documents and the template are in place and
well formed. No AWS call is made.`,
	Run: func(cmd *cobra.Command, args []string) {
		opts.SkipTelemetry = true
		e, err := engine.New(context.Background(), engine.WithOptions(opts))
		if err != nil {
			fmt.Printf("Error initializing engine: %v\n", err)
			os.Exit(1)
		}

		issues := e.ValidatePrerequisites()
		fmt.Print(report.Checklist(issues))
		if len(issues) > 0 {
			os.Exit(1)
		}
	},
}
