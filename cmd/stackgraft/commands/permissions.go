package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stackgraft/stackgraft/pkg/engine/permissions"
)

var permissionPhases []string

var permissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "Print the IAM policy this tool needs",
	Long: `Generate the least-privilege policy document for the operator
identity. Attach it to whatever principal runs stackgraft.

Example:
  stackgraft permissions --phase validate`,
	Run: func(cmd *cobra.Command, args []string) {
		data, err := permissions.GeneratePolicy(permissionPhases)
		if err != nil {
			fmt.Printf("Error generating policy: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
	},
}

func init() {
	permissionsCmd.Flags().StringSliceVar(&permissionPhases, "phase", nil, "Limit to specific phases (validate, preflight)")
}
