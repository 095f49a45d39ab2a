package cmd

import (
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write shipments back to Excel workbooks",
}

var exportFullCmd = &cobra.Command{
	Use:   "full [id]",
	Short: "Export the complete box content workbook (latest when no id is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		sh, err := services.Store.Get(ctx, optionalID(args))
		if err != nil {
			return err
		}
		path, err := services.Exporter.WriteFull(ctx, sh, exportDir(cmd))
		if err != nil {
			return err
		}
		success.Printf("Wrote %s\n", path)
		return nil
	},
}

var exportSummaryCmd = &cobra.Command{
	Use:   "summary [id]",
	Short: "Export a one-sheet summary of box contents",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		sh, err := services.Store.Get(ctx, optionalID(args))
		if err != nil {
			return err
		}
		path, err := services.Exporter.WriteSummary(ctx, sh, exportDir(cmd))
		if err != nil {
			return err
		}
		success.Printf("Wrote %s\n", path)
		return nil
	},
}

func exportDir(cmd *cobra.Command) string {
	if dir, _ := cmd.Flags().GetString("out"); dir != "" {
		return dir
	}
	return cfg.Export.Directory
}

func init() {
	exportCmd.PersistentFlags().StringP("out", "o", "", "Output directory (defaults to export.directory)")
	exportCmd.AddCommand(exportFullCmd)
	exportCmd.AddCommand(exportSummaryCmd)
}
