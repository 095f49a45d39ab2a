package cmd

import (
	"fmt"
	"os"

	ET "github.com/IBM/fp-go/v2/either"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <workbook|directory>",
	Short: "Import box content workbooks into local storage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		fi, err := os.Stat(args[0])
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			name, _ := cmd.Flags().GetString("name")
			res := services.Importer.ImportFile(ctx, args[0], name)()
			if ET.IsLeft(res) {
				_, err := ET.UnwrapError(res)
				return fmt.Errorf("import failed: %w", err)
			}
			im, _ := ET.UnwrapError(res)
			success.Printf("Imported %s as %s (%d rows)\n", im.Path, im.ShipmentID, im.Rows)
			return nil
		}

		res := services.Importer.ImportAll(ctx, args[0])()
		if ET.IsLeft(res) {
			_, err := ET.UnwrapError(res)
			return fmt.Errorf("import failed: %w", err)
		}
		rep, _ := ET.UnwrapError(res)
		for _, im := range rep.Imported {
			success.Printf("  %s  %s  %s\n", im.ShipmentID, im.ShipmentName, faint.Sprint(im.Path))
		}
		for _, f := range rep.Failed {
			failure.Printf("  %s: %v\n", f.Path, f.Err)
		}
		bold.Printf("Imported %d, failed %d\n", len(rep.Imported), len(rep.Failed))
		logger.Info("Import completed")
		return nil
	},
}

func init() {
	importCmd.Flags().String("name", "", "Shipment name for a single workbook (defaults to the generated ID)")
}
