package main

import (
	"github.com/spf13/cobra"

	"github.com/cochaviz/virtmcp/internal/config"
	"github.com/cochaviz/virtmcp/internal/setup"
	"github.com/cochaviz/virtmcp/internal/vbox"
)

func newSetupCommand(c *cli) *cobra.Command {
	var clearFirst bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Write the configuration file and create the working directories",
		Long: `Write the configuration file and create the working directories.

An existing configuration is kept and its directories are (re)created;
use --clear to start over from the defaults.`,
		// Setup has to work before a configuration file exists.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if setup.Verify(c.configPath) != nil {
				c.cfg = config.Default()
				return nil
			}
			return c.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := c.commandLogger("setup")

			cfg := c.cfg
			if clearFirst {
				if err := setup.ClearConfig(c.configPath); err != nil {
					return err
				}
				cfg = config.Default()
			}
			if err := setup.Initialize(c.configPath, cfg); err != nil {
				return err
			}
			logger.Info("setup complete", "portfolio_dir", cfg.PortfolioDir, "database", cfg.DatabasePath)

			path, err := cfg.ResolveVBoxManage()
			if err != nil {
				return nil
			}
			version, err := vbox.NewManager(path, vbox.Timeouts{Command: cfg.CommandTimeout()}, logger).Version(cmd.Context())
			if err != nil {
				logger.Warn("VBoxManage does not run", "path", path, "error", err)
				return nil
			}
			logger.Info("VirtualBox is available", "version", version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearFirst, "clear", false, "Remove the existing configuration file before writing the defaults")
	return cmd
}
