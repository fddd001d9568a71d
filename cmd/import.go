package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/importer"
)

var importFilePath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import products from an XLSX or CSV catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		products, err := importer.ReadFile(importFilePath)
		if err != nil {
			return eris.Wrap(err, "parse catalog")
		}
		if len(products) == 0 {
			return eris.New("catalog contains no importable rows")
		}

		created, err := st.ImportProducts(ctx, products)
		if err != nil {
			return eris.Wrap(err, "import products")
		}

		zap.L().Info("import complete",
			zap.Int64("created", created),
			zap.Int("rows", len(products)),
			zap.String("file", importFilePath))
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFilePath, "file", "", "path to XLSX or CSV catalog (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
