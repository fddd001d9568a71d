package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/store"
)

var (
	batchLimit  int
	batchStatus string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Enrich pending products sequentially",
	Long:  "Runs the pipeline over every product in the given status, pacing runs to stay inside collaborator rate limits. A failed product is recorded and the batch continues.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		products, err := env.Store.ListProducts(ctx, store.ProductFilter{
			Status: model.Status(batchStatus),
			Limit:  batchLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list products")
		}
		if len(products) == 0 {
			zap.L().Info("nothing to process", zap.String("status", batchStatus))
			return nil
		}

		zap.L().Info("batch starting",
			zap.Int("products", len(products)),
			zap.Int("pause_secs", cfg.Batch.PauseSecs))

		// One run per pause interval; the limiter also absorbs ctx
		// cancellation between runs.
		interval := time.Duration(cfg.Batch.PauseSecs) * time.Second
		limiter := rate.NewLimiter(rate.Every(interval), 1)

		var done, failed int
		for _, product := range products {
			if err := limiter.Wait(ctx); err != nil {
				return eris.Wrap(err, "batch interrupted")
			}

			result, err := env.Pipeline.Run(ctx, product.ID)
			if err != nil {
				failed++
				zap.L().Warn("product enrichment failed",
					zap.String("product_id", product.ID),
					zap.String("ean", product.EAN),
					zap.Error(err))
				continue
			}
			done++
			zap.L().Info("product enriched",
				zap.String("product_id", result.ID),
				zap.String("status", string(result.Status)))
		}

		zap.L().Info("batch complete",
			zap.Int("succeeded", done),
			zap.Int("failed", failed))
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max products to process (0 = all)")
	batchCmd.Flags().StringVar(&batchStatus, "status", string(model.StatusPending), "process products in this status")
	rootCmd.AddCommand(batchCmd)
}
