package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cochaviz/virtmcp/internal/sandbox"
	"github.com/cochaviz/virtmcp/internal/winsandbox"
)

func newSandboxCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Windows Sandbox configurations and disposable VirtualBox sandboxes",
	}
	cmd.AddCommand(newSandboxGenerateCommand(c), newSandboxRunCommand(c))
	return cmd
}

func newSandboxGenerateCommand(c *cli) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "generate <config.yaml>",
		Args:  cobra.ExactArgs(1),
		Short: "Render a Windows Sandbox .wsb file from a YAML description",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := c.commandLogger("sandbox generate")

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read sandbox config: %w", err)
			}
			var cfg winsandbox.SandboxConfig
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return fmt.Errorf("parse sandbox config %s: %w", args[0], err)
			}
			xml, err := winsandbox.RenderXML(cfg)
			if err != nil {
				return err
			}

			if output == "" {
				_, err = cmd.OutOrStdout().Write(xml)
				return err
			}
			if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			if err := os.WriteFile(output, xml, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			logger.Info("wrote sandbox configuration", "path", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the .wsb file here instead of stdout")
	return cmd
}

func newSandboxRunCommand(c *cli) *cobra.Command {
	var spec sandbox.LeaseSpecification

	cmd := &cobra.Command{
		Use:   "run <source-vm>",
		Args:  cobra.ExactArgs(1),
		Short: "Clone a VirtualBox machine, run it until interrupted, then destroy it",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := c.commandLogger("sandbox run")
			spec.SourceVM = args[0]
			if err := spec.Validate(); err != nil {
				return err
			}

			b, err := openBackends(c.cfg, logger)
			if err != nil {
				return err
			}
			defer b.Close()
			if err := b.requireVBox(); err != nil {
				return err
			}

			ctx := cmd.Context()
			lease, err := b.vmDriver.Acquire(ctx, spec)
			if err != nil {
				return err
			}
			worker := sandbox.NewSandboxWorker(b.vmDriver, lease, logger)

			go func() {
				select {
				case running := <-worker.Started():
					logger.Info("sandbox started, press Ctrl+C to destroy it", "vm", running.Name, "lease", running.ID)
				case <-ctx.Done():
				}
			}()
			return worker.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&spec.Snapshot, "snapshot", "", "Clone from this snapshot instead of the current state")
	cmd.Flags().StringVar(&spec.Name, "name", "", "Name of the clone (generated when empty)")
	cmd.Flags().IntVar(&spec.MemoryMB, "memory", 0, "Memory in MB (source VM setting when 0)")
	cmd.Flags().IntVar(&spec.CPUs, "cpus", 0, "Virtual CPUs (source VM setting when 0)")
	cmd.Flags().BoolVar(&spec.IsolateNetwork, "isolate-network", true, "Attach the clone to a private internal network")
	cmd.Flags().StringVar(&spec.ShareDir, "share-dir", "", "Directory mirrored into a read-only ISO attached to the clone")
	cmd.Flags().StringVar(&spec.StartType, "start-type", "headless", "VirtualBox start type")
	return cmd
}
