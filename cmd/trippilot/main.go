// Command trippilot serves live flight positions, regional airports and a
// co-pilot chat assistant for the TripPilot frontend.
//
// Logging:
//   - Base logger is created here from the loaded configuration
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/manaspathak2335-git/TripPilot/internal/config"
	"github.com/manaspathak2335-git/TripPilot/internal/logging"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "trippilot",
		Short:        "TripPilot live flight backend",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "path to YAML config (default: $"+config.PathEnv+")")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.HTTP.Addr = addr
			}
			if port, _ := cmd.Flags().GetInt("port"); port > 0 {
				cfg.HTTP.Port = port
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := logging.New(cfg.Log)
			app, err := NewApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			return app.Run(ctx)
		},
	}
	serveCmd.Flags().String("addr", "", "listen host (overrides http.addr)")
	serveCmd.Flags().Int("port", 0, "listen port (overrides http.port)")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out := struct {
				config.Config `yaml:",inline"`
				Secrets       map[string]string `yaml:"secrets"`
			}{cfg, cfg.MaskedSecrets()}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(out)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	rootCmd.AddCommand(serveCmd, configCmd, versionCmd)

	// Running the bare binary serves, matching the container entrypoint.
	rootCmd.RunE = serveCmd.RunE
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())
	return rootCmd
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
