package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/casalert/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration after defaults, the --config file and CASALERT_*
environment overrides have been applied.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cfg.WriteYAML(os.Stdout)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the default values",
	Args:  cobra.MaximumNArgs(1),
	Annotations: map[string]string{
		"skipConfig": "true",
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		path := "casalert.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if err := writeDefaultConfig(path, force); err != nil {
			return err
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Wrote default configuration to %s\n", green("✓"), path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolP("force", "f", false, "Overwrite an existing file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

// writeDefaultConfig writes DefaultConfig as YAML, refusing to replace an
// existing file unless force is set
func writeDefaultConfig(path string, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0644)
	if os.IsExist(err) {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := config.DefaultConfig().WriteYAML(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
