package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/quarkbyte/domscout/internal/config"
	"github.com/quarkbyte/domscout/internal/observability"
)

type contextKey string

// configKey is where the root command stores the validated configuration
// for its subcommands.
const configKey contextKey = "config"

var cfgFile string

// newRootCmd builds the root command and its subcommand tree. Each call
// returns a pristine instance so tests do not leak state into each other.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "domscout",
		Short:   "Domscout resolves natural language element descriptions into validated CSS selectors.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Runs before any subcommand: load config, then set up logging.
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(v); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				// Initialize a fallback logger so the failure is still readable.
				observability.InitializeLogger(config.LoggingConfig{Level: "info", Format: "console"})
				return err
			}

			observability.InitializeLogger(cfg.Logging)
			observability.GetLogger().Info("Starting domscout", zap.String("version", Version))

			// Subcommands read the validated config from the command context.
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.domscout.yaml)")
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	cmd.AddCommand(newResolveCmd())
	cmd.AddCommand(newBatchCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

var rootCmd = newRootCmd()

// Execute runs the root command under a signal-aware context so an
// interrupt cancels in-flight browser and model calls.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		observability.Sync()
		os.Exit(1)
	}
	observability.Sync()
}

// configFromContext retrieves the config stored by the root PersistentPreRunE.
func configFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration missing from command context")
	}
	return cfg, nil
}

// initializeConfig layers the config file and ENV variables onto v.
func initializeConfig(v *viper.Viper) error {
	// Best effort .env load so local runs can keep API keys out of the shell.
	_ = godotenv.Load()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".domscout")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("DOMSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}
	return nil
}
