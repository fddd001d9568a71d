package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
)

var (
	runID    string
	runEAN   string
	runName  string
	runBrand string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run enrichment for a single product",
	Long:  "Runs the full enrichment pipeline for an existing product (--id) or for a new record created from --ean/--name/--brand.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		productID := runID
		if productID == "" {
			if runEAN == "" && runName == "" {
				return eris.New("either --id or --ean/--name is required")
			}
			product, err := env.Store.CreateProduct(ctx, runEAN, runName, runBrand)
			if err != nil {
				return eris.Wrap(err, "create product")
			}
			productID = product.ID
			zap.L().Info("product created",
				zap.String("product_id", product.ID),
				zap.String("ean", product.EAN))
		}

		result, err := env.Pipeline.Run(ctx, productID)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("enrichment complete",
			zap.String("product_id", result.ID),
			zap.String("status", string(result.Status)),
			zap.Float64("credits_used", totalCredits(result)))

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func totalCredits(p *model.Product) float64 {
	var sum float64
	for _, entry := range p.Log {
		sum += entry.CreditsUsed
	}
	return sum
}

func init() {
	runCmd.Flags().StringVar(&runID, "id", "", "existing product ID")
	runCmd.Flags().StringVar(&runEAN, "ean", "", "EAN-13 barcode for a new product")
	runCmd.Flags().StringVar(&runName, "name", "", "product name for a new product")
	runCmd.Flags().StringVar(&runBrand, "brand", "", "brand for a new product")
	rootCmd.AddCommand(runCmd)
}
