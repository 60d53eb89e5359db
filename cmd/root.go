package cmd

import (
	"fmt"
	"os"

	"dropletup/internal/config"
	"dropletup/internal/logging"
	"dropletup/internal/provisioning"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	cfg        *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dropletup",
	Short: "Provision a DigitalOcean droplet and report its public IP",
	Long: `dropletup creates a single DigitalOcean droplet with an SSH key from your
account, waits until it is active and prints its public IPv4 address.
Created droplets are recorded in a local ledger and removed with "delete".`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return &provisioning.ConfigurationError{Reason: "failed to load configuration", Err: err}
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		fmt.Sprintf("Path to config file (default $%s or %s)", config.EnvConfigPath, config.DefaultPath))
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}

	logging.Logger().Error("command failed",
		zap.String("kind", string(provisioning.Kind(err))),
		zap.Error(err))
	fmt.Fprintf(os.Stderr, "An error occurred: %v\n", err)
	return provisioning.ExitCode(err)
}
