package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cochaviz/virtmcp/internal/config"
	"github.com/cochaviz/virtmcp/internal/logging"
	"github.com/cochaviz/virtmcp/internal/setup"
)

func main() {
	var levelVar slog.LevelVar
	levelVar.Set(slog.LevelInfo)

	logger := logging.NewCLI(os.Stderr, &levelVar)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(logger, &levelVar)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("command interrupted", "error", err)
			os.Exit(130)
		}
		logger.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// cli carries the state shared by every subcommand.
type cli struct {
	logger     *slog.Logger
	levelVar   *slog.LevelVar
	configPath string
	logLevel   string
	logFormat  string
	cfg        config.Config
}

func newRootCommand(logger *slog.Logger, levelVar *slog.LevelVar) *cobra.Command {
	setup.SetLogger(logger.With("component", "setup"))

	c := &cli{logger: logger, levelVar: levelVar}

	root := &cobra.Command{
		Use:           "virtmcp",
		Short:         "MCP server and CLI for VirtualBox, libvirt, Hyper-V and Windows Sandbox",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Configuration file (default "+config.DefaultPath()+")")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Set log verbosity (debug, info, warning, error); overrides the config file")
	root.PersistentFlags().StringVar(&c.logFormat, "log-format", "", "Log format (cli or json); overrides the config file")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return c.load()
	}

	root.AddCommand(
		newServeCommand(c),
		newCallCommand(c),
		newToolsCommand(c),
		newSandboxCommand(c),
		newPortfolioCommand(c),
		newTemplateCommand(c),
		newBackupCommand(c),
		newHistoryCommand(c),
		newSetupCommand(c),
	)
	return root
}

// load reads the configuration and applies the logging settings. Logs
// always go to stderr so stdout stays free for the stdio transport.
func (c *cli) load() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if c.logFormat != "" {
		cfg.LogFormat = c.logFormat
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	mode, err := logging.ParseMode(cfg.LogFormat)
	if err != nil {
		return err
	}
	c.levelVar.Set(level)
	if mode == logging.ModeJSON {
		c.logger = logging.NewJSON(os.Stderr, c.levelVar)
		slog.SetDefault(c.logger)
		setup.SetLogger(c.logger.With("component", "setup"))
	}
	c.cfg = cfg
	return nil
}

func (c *cli) commandLogger(name string) *slog.Logger {
	return c.logger.With("command", name)
}
