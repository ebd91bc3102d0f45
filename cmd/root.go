package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cvsdeals/promocrawl/internal/app"
	"github.com/cvsdeals/promocrawl/internal/catalog"
	"github.com/cvsdeals/promocrawl/internal/logging"
	"github.com/cvsdeals/promocrawl/pkg/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application surface that commands use. Commands receive it
// through the command context, so tests can inject a mock container.
type App interface {
	Close()
	GetLogger() *zap.Logger
	GetStore() catalog.Store
}

// newApp is the application factory, replaceable in tests.
var newApp func(ctx context.Context) (App, error) = func(ctx context.Context) (App, error) {
	return app.NewApp(ctx)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "promocrawl",
		Short: "Ingests convenience-store promotion listings into the product catalog.",
		Long: `promocrawl crawls the promotional listings of the configured
convenience-store brands, normalizes every product into the shared catalog
schema, and upserts the results into the catalog store in one synchronous
pass.`,

		// Runs after config is loaded, before the subcommand: build and
		// inject the service container.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cobra.OnInitialize(config.InitConfig)

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.promocrawl/config.yaml)")

	cmd.AddCommand(newIngestCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	logging.InitLogger(viper.GetBool("log.development"))

	if err := newRootCmd().Execute(); err != nil {
		logging.L.Fatal("Command execution failed", zap.Error(err))
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}
