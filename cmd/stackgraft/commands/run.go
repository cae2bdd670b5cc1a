package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/stackgraft/stackgraft/pkg/engine"
	"github.com/stackgraft/stackgraft/pkg/report"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Validate the policies, then update the template",
	Long: `Run the full workflow: attach every policy document to an ephemeral
IAM role in the target account, and on success graft the permissions
into the CloudFormation template.

Example:
  stackgraft run --template infra/template.yaml --policies infra/policies --dry-run`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if verbose {
			opts.Logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}))
		}

		e, err := engine.New(ctx, engine.WithOptions(opts))
		if err != nil {
			fmt.Printf("Error initializing engine: %v\n", err)
			os.Exit(1)
		}

		res := e.Run(ctx)
		fmt.Print(report.Render(res))

		if ctx.Err() != nil {
			os.Exit(130)
		}
		if !res.OverallSuccess {
			os.Exit(1)
		}
	},
}

func init() {
	runCmd.Flags().BoolVar(&opts.SkipValidation, "skip-validation", false, "Skip the live policy validation phase")
	runCmd.Flags().BoolVar(&opts.SkipIntegration, "skip-integration", false, "Skip the template update phase")
	runCmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Run every check but write nothing")
	runCmd.Flags().BoolVar(&opts.NoBackup, "no-backup", false, "Do not keep a .bak copy of the template")
	runCmd.Flags().StringVarP(&opts.OutputPath, "output", "o", "", "Write the updated template here instead of in place")
}
