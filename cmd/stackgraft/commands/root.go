package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/stackgraft/stackgraft/pkg/engine"
	"github.com/stackgraft/stackgraft/pkg/version"
)

var (
	cfgFile string
	opts    engine.Options
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "stackgraft",
	Short: "IAM policy validation and CloudFormation integration",
	Long: `StackGraft - Prove your IAM policies attach before you deploy them.

Validate. Integrate. Ship.`,
	Version: version.Current,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ~/.stackgraft.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.Region, "region", "us-east-1", "AWS region")
	rootCmd.PersistentFlags().StringVar(&opts.Profile, "profile", "", "AWS shared config profile")
	rootCmd.PersistentFlags().StringVar(&opts.TemplatePath, "template", "template.yaml", "CloudFormation template path")
	rootCmd.PersistentFlags().StringVar(&opts.PolicyDir, "policies", "policies", "Directory holding the policy documents")
	rootCmd.PersistentFlags().StringVar(&opts.RulesFile, "rules", "", "Dynamic security rules file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		renderHelp(cmd)
	})

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(permissionsCmd)
	rootCmd.AddCommand(auditCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.SetConfigFile(filepath.Join(home, ".stackgraft.yaml"))
			viper.SetConfigType("yaml")
		}
	}
	viper.SetEnvPrefix("STACKGRAFT")
	viper.AutomaticEnv()
	viper.ReadInConfig()

	// Config file fills in whatever the flags left at defaults.
	if viper.IsSet("region") && !rootCmd.PersistentFlags().Changed("region") {
		opts.Region = viper.GetString("region")
	}
	if viper.IsSet("template") && !rootCmd.PersistentFlags().Changed("template") {
		opts.TemplatePath = viper.GetString("template")
	}
	if viper.IsSet("policies") && !rootCmd.PersistentFlags().Changed("policies") {
		opts.PolicyDir = viper.GetString("policies")
	}
}

func renderHelp(cmd *cobra.Command) {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#00FF99")).
		MarginBottom(1)

	flagStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA"))

	fmt.Println(titleStyle.Render(fmt.Sprintf("STACKGRAFT %s", version.Current)))
	fmt.Println(cmd.Short)

	fmt.Println(titleStyle.Render("USAGE"))
	fmt.Printf("  %s\n\n", cmd.UseLine())

	if cmd.HasAvailableSubCommands() {
		fmt.Println(titleStyle.Render("COMMANDS"))
		for _, c := range cmd.Commands() {
			if c.IsAvailableCommand() {
				fmt.Printf("  %-12s %s\n", c.Name(), c.Short)
			}
		}
		fmt.Println("")
	}

	fmt.Println(titleStyle.Render("FLAGS"))
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		output := fmt.Sprintf("  --%-15s %s", f.Name, f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" {
			output += fmt.Sprintf(" (default %s)", f.DefValue)
		}
		fmt.Println(flagStyle.Render(output))
	})
	fmt.Println("")
}
