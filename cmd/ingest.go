// Package cmd defines and implements the CLI commands for the promocrawl
// executable.
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cvsdeals/promocrawl/internal/catalog"
	"github.com/cvsdeals/promocrawl/internal/clock/system"
	"github.com/cvsdeals/promocrawl/internal/id/uuid"
	"github.com/cvsdeals/promocrawl/internal/pipeline"
	"github.com/cvsdeals/promocrawl/internal/render"
	"github.com/cvsdeals/promocrawl/internal/sources"
)

// newIngestCmd creates the 'ingest' subcommand: one full synchronous pass
// over every enabled source.
func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Runs one ingestion pass over all enabled sources",
		Long: `Crawls every enabled source site once, normalizes the extracted
promotion listings, and upserts them into the catalog store. Sources are
independent; a failing source never blocks the others.`,

		RunE: runIngestCommand,
	}
}

func runIngestCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.GetLogger()

	factory, err := render.NewFactory(render.Config{
		UserAgent:     viper.GetString("render.user_agent"),
		NavTimeout:    viper.GetDuration("render.nav_timeout"),
		SettleTimeout: viper.GetDuration("render.settle_timeout"),
		SettlePoll:    viper.GetDuration("render.settle_poll"),
		SettleQuiet:   viper.GetDuration("render.settle_quiet"),
		DomainQPS:     viper.GetFloat64("render.domain_qps"),
		MaxParallel:   viper.GetInt("render.max_parallel"),
	}, logger)
	if err != nil {
		return fmt.Errorf("init renderer: %w", err)
	}
	defer factory.Close()

	clock := system.New()
	adapters, err := buildAdapters(factory, clock, logger)
	if err != nil {
		return err
	}

	batcher := pipeline.NewBatcher(
		appInstance.GetStore(),
		viper.GetInt("store.batch_size"),
		pipeline.NewExponentialRetryPolicy(),
		logger,
	)
	driver, err := pipeline.NewDriver(
		pipeline.DriverConfig{
			Concurrency:     viper.GetInt("pipeline.concurrency"),
			DeactivateStale: viper.GetBool("store.deactivate_missing"),
		},
		adapters,
		batcher,
		appInstance.GetStore(),
		clock,
		uuid.NewGenerator(),
		logger,
	)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}

	start := time.Now()
	report := driver.Run(cmd.Context())
	logger.Info("Ingest command finished.",
		zap.String("run_id", report.RunID),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func buildAdapters(factory catalog.SessionFactory, clock catalog.Clock, logger *zap.Logger) ([]sources.Adapter, error) {
	var adapters []sources.Adapter
	for _, name := range viper.GetStringSlice("sources.enabled") {
		switch name {
		case "cu":
			adapter, err := sources.NewCU(sources.CUConfig{
				EntryURL:      viper.GetString("sources.cu.url"),
				MaxMoreClicks: viper.GetInt("sources.cu.max_more_clicks"),
			}, factory, clock, logger)
			if err != nil {
				return nil, fmt.Errorf("init cu adapter: %w", err)
			}
			adapters = append(adapters, adapter)
		case "gs25":
			adapter, err := sources.NewGS25(sources.GS25Config{
				EntryURL: viper.GetString("sources.gs25.url"),
				MaxPages: viper.GetInt("sources.gs25.max_pages"),
			}, factory, clock, logger)
			if err != nil {
				return nil, fmt.Errorf("init gs25 adapter: %w", err)
			}
			adapters = append(adapters, adapter)
		case "seven_eleven":
			adapter, err := sources.NewSevenEleven(sources.SevenElevenConfig{
				BaseURL:   viper.GetString("sources.seven_eleven.base_url"),
				UserAgent: viper.GetString("render.user_agent"),
				PageSize:  viper.GetInt("sources.seven_eleven.page_size"),
				MaxPages:  viper.GetInt("sources.seven_eleven.max_pages"),
			}, clock, logger)
			if err != nil {
				return nil, fmt.Errorf("init seven-eleven adapter: %w", err)
			}
			adapters = append(adapters, adapter)
		default:
			return nil, fmt.Errorf("unknown source %q in sources.enabled", name)
		}
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("sources.enabled must list at least one source")
	}
	return adapters, nil
}
