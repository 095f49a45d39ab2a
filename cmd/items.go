package cmd

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Qubut/fba-boxes/internal/grid"
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Pack and unpack items",
}

var listItemsCmd = &cobra.Command{
	Use:   "list",
	Short: "List items with expected, boxed and available units",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		_, sheet, err := openSheet(ctx, shipmentFlag(cmd))
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ROW\tSKU\tFNSKU\tTITLE\tEXPECTED\tBOXED\tAVAILABLE")
		for _, it := range sheet.Items() {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%d\n",
				it.Row, it.SKU, it.FNSKU, it.Title, it.Expected, it.Boxed, it.Available())
		}
		return w.Flush()
	},
}

var addItemCmd = &cobra.Command{
	Use:   "add <fnsku|sku> <box> <quantity>",
	Short: "Pack units of an item into a box",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return packItem(cmd, args[0], []string{args[1]}, args[2])
	},
}

var multiAddItemCmd = &cobra.Command{
	Use:   "multi-add <fnsku|sku> <quantity> <box>...",
	Short: "Pack the same quantity of an item into several boxes",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return packItem(cmd, args[0], args[2:], args[1])
	},
}

var reduceItemCmd = &cobra.Command{
	Use:   "reduce <fnsku|sku> <box> <quantity>",
	Short: "Take units of an item out of a box",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		qty, err := parseQuantity(args[2])
		if err != nil {
			return err
		}
		return editItem(cmd, args[0], func(s *grid.Sheet, it grid.Item) error {
			b, err := resolveBox(s, args[1])
			if err != nil {
				return err
			}
			return s.ReduceQuantity(it.Row, b.ID, qty)
		}, fmt.Sprintf("Removed %d unit(s) of %s from %s", qty, args[0], args[1]))
	},
}

var removeItemCmd = &cobra.Command{
	Use:   "remove <fnsku|sku> <box>",
	Short: "Take every unit of an item out of a box",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editItem(cmd, args[0], func(s *grid.Sheet, it grid.Item) error {
			b, err := resolveBox(s, args[1])
			if err != nil {
				return err
			}
			return s.RemoveItem(it.Row, b.ID)
		}, fmt.Sprintf("Removed %s from %s", args[0], args[1]))
	},
}

func parseQuantity(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("quantity must be a number: %w", err)
	}
	return n, nil
}

func editItem(cmd *cobra.Command, key string, fn func(*grid.Sheet, grid.Item) error, done string) error {
	ctx, cancel := signalContext()
	defer cancel()
	_, err := editSheet(ctx, shipmentFlag(cmd), func(s *grid.Sheet) error {
		it, err := s.FindItem(key)
		if err != nil {
			return err
		}
		return fn(s, it)
	})
	if err != nil {
		return err
	}
	success.Println(done)
	return nil
}

func packItem(cmd *cobra.Command, key string, boxes []string, quantity string) error {
	qty, err := parseQuantity(quantity)
	if err != nil {
		return err
	}
	return editItem(cmd, key, func(s *grid.Sheet, it grid.Item) error {
		ids := make([]grid.BoxID, 0, len(boxes))
		for _, arg := range boxes {
			b, err := resolveBox(s, arg)
			if err != nil {
				return err
			}
			ids = append(ids, b.ID)
		}
		return s.AddQuantityToBoxes(it.Row, ids, qty)
	}, fmt.Sprintf("Packed %d unit(s) of %s into %d box(es)", qty, key, len(boxes)))
}

func init() {
	itemsCmd.AddCommand(listItemsCmd)
	itemsCmd.AddCommand(addItemCmd)
	itemsCmd.AddCommand(multiAddItemCmd)
	itemsCmd.AddCommand(reduceItemCmd)
	itemsCmd.AddCommand(removeItemCmd)
}
