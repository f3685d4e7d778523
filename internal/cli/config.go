package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jvs-project/rcopy/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config <command>",
	Short: "Manage rcopy configuration",
	Long: `Manage the rcopy configuration file (rcopy.yaml unless --config is given).

Configuration options:
  rsync_executable        - rsync binary to run (default: rsync)
  ssh_executable          - ssh command for remote sides; empty disables ssh
  password_file           - password file for rsync daemon modules (copy --module)
  delete_before_overwrite - remove an existing destination entry before copying
  extra_flags_line        - extra rsync flags, shell-quoted
  probe_timeout           - deadline for exists probes (default: 30s)
  version_timeout         - deadline for version queries (default: 5s)
  minimum_version         - oldest accepted rsync (default: 2.6.0)
  logging.level           - debug, info, warn, error
  logging.format          - text, json
  metrics.enabled         - collect Prometheus metrics

Available commands:
  show              - Show current configuration
  init              - Write a configuration file with the defaults
  set <key> <value> - Set a configuration value
  get <key>         - Get a configuration value`,
	DisableFlagsInUseLine: true,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cfg)
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("# rcopy configuration (%s)\n%s", configPath, data)
		return nil
	},
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the defaults",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if err := config.Save(configPath, config.Default()); err != nil {
			return err
		}
		fmt.Printf("Wrote default configuration to %s\n", configPath)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value.

Examples:
  rcopy config set ssh_executable "ssh -p 2222"
  rcopy config set extra_flags_line "--bwlimit=10000 --exclude '*.tmp'"
  rcopy config set probe_timeout 10s
  rcopy config set delete_before_overwrite true`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		key, value := args[0], args[1]
		if err := cfg.Set(key, value); err != nil {
			return keyError(key, err)
		}
		if err := config.Save(configPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Printf("Set %s = %s\n", key, value)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		key := args[0]
		value, err := cfg.Get(key)
		if err != nil {
			return keyError(key, err)
		}
		if jsonOutput {
			return outputJSON(map[string]string{key: value})
		}
		if value == "" {
			fmt.Printf("%s (not set)\n", key)
		} else {
			fmt.Println(value)
		}
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	rootCmd.AddCommand(configCmd)
}
