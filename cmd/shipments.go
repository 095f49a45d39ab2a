package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Qubut/fba-boxes/internal/models"
)

var shipmentsCmd = &cobra.Command{
	Use:     "shipments",
	Aliases: []string{"sh"},
	Short:   "Manage stored shipments",
}

var listShipmentsCmd = &cobra.Command{
	Use:   "list",
	Short: "List shipments, most recently modified first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		all, err := services.Store.ListAll(ctx)
		if err != nil {
			return err
		}
		if len(all) == 0 {
			warn.Println("No shipments stored. Import a workbook first.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tBOXES\tCREATED\tMODIFIED")
		for _, sh := range all {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				sh.ShipmentID, sh.DisplayName(), sh.MainJSON.BoxCount(), sh.CreatedDate, sh.LastModifiedDate)
		}
		return w.Flush()
	},
}

var showShipmentCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a shipment (latest when no id is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		sh, err := services.Store.Get(ctx, optionalID(args))
		if err != nil {
			return err
		}
		printShipment(sh)
		return nil
	},
}

var renameShipmentCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a shipment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		sh, err := services.Store.Rename(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		success.Printf("Renamed %s to %q\n", sh.ShipmentID, sh.ShipmentName)
		return nil
	},
}

var deleteShipmentCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a shipment from every local engine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		if err := services.Store.Delete(ctx, args[0]); err != nil {
			return err
		}
		success.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var countsCmd = &cobra.Command{
	Use:   "counts",
	Short: "Show how many shipments each local engine holds",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		primary, fallback, err := services.Store.Counts(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("primary: %d\nfallback: %d\n", primary, fallback)
		if primary != fallback {
			warn.Println("Engines disagree; the newest copy of each shipment is used.")
		}
		return nil
	},
}

func optionalID(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func printShipment(sh *models.Shipment) {
	bold.Printf("%s  %s\n", sh.ShipmentID, sh.DisplayName())
	faint.Printf("created %s, modified %s\n", sh.CreatedDate, sh.LastModifiedDate)
	if s := sh.OriginalSheetData.Instruction; s != nil {
		faint.Printf("instruction sheet %q (%d rows)\n", s.Name, len(s.Data))
	}
	if s := sh.OriginalSheetData.Metadata; s != nil {
		faint.Printf("metadata sheet %q (%d rows)\n", s.Name, len(s.Data))
	}
	sheet, err := sh.Sheet()
	if err != nil {
		warn.Printf("No box rows: %v\n", err)
		return
	}
	fmt.Printf("%d items, %d boxes\n", len(sheet.Items()), len(sheet.Boxes()))
	if err := sheet.Validate(); err != nil {
		warn.Printf("Grid inconsistencies:\n%v\n", err)
	}
}

func init() {
	shipmentsCmd.AddCommand(listShipmentsCmd)
	shipmentsCmd.AddCommand(showShipmentCmd)
	shipmentsCmd.AddCommand(renameShipmentCmd)
	shipmentsCmd.AddCommand(deleteShipmentCmd)
	shipmentsCmd.AddCommand(countsCmd)
}
