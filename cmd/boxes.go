package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Qubut/fba-boxes/internal/grid"
	"github.com/Qubut/fba-boxes/internal/models"
)

var boxesCmd = &cobra.Command{
	Use:   "boxes",
	Short: "Manage the boxes of a shipment",
}

// openSheet loads a shipment and its box view. Box identifiers assigned
// while opening are saved so later commands can refer to them.
func openSheet(ctx context.Context, id string) (*models.Shipment, *grid.Sheet, error) {
	sh, err := services.Store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	known := slices.Clone(sh.Boxes)
	sheet, err := sh.Sheet()
	if err != nil {
		return nil, nil, err
	}
	if !slices.Equal(known, sh.Boxes) {
		if _, err := services.Store.Save(ctx, sh, sh.ShipmentID); err != nil {
			return nil, nil, err
		}
	}
	return sh, sheet, nil
}

// editSheet applies fn to the box view of a shipment and stores the result.
func editSheet(ctx context.Context, id string, fn func(*grid.Sheet) error) (*models.Shipment, error) {
	return services.Store.Update(ctx, id, func(sh *models.Shipment) error {
		sheet, err := sh.Sheet()
		if err != nil {
			return err
		}
		if err := fn(sheet); err != nil {
			return err
		}
		sh.Apply(sheet)
		return nil
	})
}

// resolveBox accepts a box identifier, a box name or a box number.
func resolveBox(sheet *grid.Sheet, arg string) (grid.Box, error) {
	if b, err := sheet.Box(grid.BoxID(arg)); err == nil {
		return b, nil
	}
	if b, err := sheet.BoxByName(arg); err == nil {
		return b, nil
	}
	if n, err := strconv.Atoi(arg); err == nil {
		for _, b := range sheet.Boxes() {
			if b.Number == n {
				return b, nil
			}
		}
	}
	return grid.Box{}, fmt.Errorf("%w: %q", grid.ErrUnknownBox, arg)
}

func boxSpec(cmd *cobra.Command) grid.BoxSpec {
	get := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	return grid.BoxSpec{
		Name:   get("name"),
		Weight: get("weight"),
		Width:  get("width"),
		Length: get("length"),
		Height: get("height"),
	}
}

func addBoxFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "Box name (defaults to the next P1 - B<n>)")
	cmd.Flags().String("weight", "", "Box weight (lb)")
	cmd.Flags().String("width", "", "Box width (in)")
	cmd.Flags().String("length", "", "Box length (in)")
	cmd.Flags().String("height", "", "Box height (in)")
}

var listBoxesCmd = &cobra.Command{
	Use:   "list",
	Short: "List boxes with their dimensions and contents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		sh, sheet, err := openSheet(ctx, shipmentFlag(cmd))
		if err != nil {
			return err
		}
		bold.Printf("%s  %s\n", sh.ShipmentID, sh.DisplayName())
		totals := make(map[grid.BoxID]grid.Totals)
		for _, t := range sheet.BoxTotals() {
			totals[t.ID] = t
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tNAME\tWEIGHT\tW x L x H\tITEMS\tUNITS\tID")
		for _, b := range sheet.Boxes() {
			t := totals[b.ID]
			fmt.Fprintf(w, "%d\t%s\t%s\t%s x %s x %s\t%d\t%d\t%s\n",
				b.Number, b.Name, b.Weight, b.Width, b.Length, b.Height, t.ItemCount, t.TotalQuantity, b.ID)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		for _, slot := range sheet.DeletedSlots() {
			faint.Printf("deleted slot at column %d (restore as %q)\n", slot.Column, slot.SuggestedName)
		}
		return nil
	},
}

var addBoxCmd = &cobra.Command{
	Use:   "add",
	Short: "Add one or more boxes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		count, _ := cmd.Flags().GetInt("count")
		if count < 1 {
			return fmt.Errorf("count must be at least 1")
		}
		spec := boxSpec(cmd)
		var added []grid.BoxID
		sh, err := editSheet(ctx, shipmentFlag(cmd), func(s *grid.Sheet) error {
			if count == 1 {
				added = []grid.BoxID{s.AddBox(spec)}
			} else {
				added = s.AddBoxes(count, spec)
			}
			return nil
		})
		if err != nil {
			return err
		}
		success.Printf("Added %d box(es) to %s\n", len(added), sh.ShipmentID)
		return nil
	},
}

var restoreBoxCmd = &cobra.Command{
	Use:   "restore <column>",
	Short: "Restore a deleted box slot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		column, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("column must be a number: %w", err)
		}
		spec := boxSpec(cmd)
		_, err = editSheet(ctx, shipmentFlag(cmd), func(s *grid.Sheet) error {
			_, err := s.RestoreBox(column, spec)
			return err
		})
		if err != nil {
			return err
		}
		success.Printf("Restored box at column %d\n", column)
		return nil
	},
}

var updateBoxCmd = &cobra.Command{
	Use:   "update <box>",
	Short: "Change a box's name or dimensions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		spec := boxSpec(cmd)
		_, err := editSheet(ctx, shipmentFlag(cmd), func(s *grid.Sheet) error {
			b, err := resolveBox(s, args[0])
			if err != nil {
				return err
			}
			return s.UpdateBox(b.ID, spec)
		})
		if err != nil {
			return err
		}
		success.Printf("Updated box %s\n", args[0])
		return nil
	},
}

var removeBoxCmd = &cobra.Command{
	Use:   "remove <box>",
	Short: "Remove a box and unbox its items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		_, err := editSheet(ctx, shipmentFlag(cmd), func(s *grid.Sheet) error {
			b, err := resolveBox(s, args[0])
			if err != nil {
				return err
			}
			return s.RemoveBox(b.ID)
		})
		if err != nil {
			return err
		}
		success.Printf("Removed box %s\n", args[0])
		return nil
	},
}

func shipmentFlag(cmd *cobra.Command) string {
	id, _ := cmd.Flags().GetString("shipment")
	return id
}

func init() {
	for _, c := range []*cobra.Command{boxesCmd, itemsCmd} {
		c.PersistentFlags().StringP("shipment", "s", "", "Shipment ID (defaults to the most recently modified)")
	}
	addBoxFlags(addBoxCmd)
	addBoxFlags(restoreBoxCmd)
	addBoxFlags(updateBoxCmd)
	addBoxCmd.Flags().Int("count", 1, "Number of boxes to add")

	boxesCmd.AddCommand(listBoxesCmd)
	boxesCmd.AddCommand(addBoxCmd)
	boxesCmd.AddCommand(restoreBoxCmd)
	boxesCmd.AddCommand(updateBoxCmd)
	boxesCmd.AddCommand(removeBoxCmd)
}
