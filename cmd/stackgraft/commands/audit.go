package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stackgraft/stackgraft/internal/audit"
)

var auditLines int

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent ephemeral role activity",
	Long:  `Print the tail of the local audit log of role create and delete actions.`,
	Run: func(cmd *cobra.Command, args []string) {
		lines, err := audit.Tail(auditLines)
		if err != nil {
			fmt.Printf("Error reading audit log: %v\n", err)
			os.Exit(1)
		}
		if len(lines) == 0 {
			fmt.Println("No audit entries yet.")
			return
		}
		for _, line := range lines {
			fmt.Println(line)
		}
	},
}

func init() {
	auditCmd.Flags().IntVarP(&auditLines, "lines", "n", 20, "Number of entries to show")
}
