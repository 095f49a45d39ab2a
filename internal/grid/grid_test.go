package grid

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pad(cells []string, n int) []string {
	for len(cells) < n {
		cells = append(cells, "")
	}
	return cells
}

// fixture returns a 14-column sheet with two items and two boxes.
func fixture() Grid {
	const w = 14
	rows := [][]string{
		pad([]string{"Shipment ID", "FBA15XYZ"}, w),
		pad([]string{"Name", "Spring restock"}, w),
		pad([]string{"Ship from", "Warehouse 1"}, w),
		pad(nil, w),
		pad([]string{"SKU", "Title", "ID", "ASIN", "FNSKU", "Condition", "Prep", "Prep units", "Label units", "Expected", "Boxed", "", "Box 1 quantity", "Box 2 quantity"}, w),
		pad([]string{"SKU-1", "Mug", "1", "B000000001", "X001", "New", "", "", "", "10", "3", "", "2", "1"}, w),
		pad([]string{"SKU-2", "Plate", "2", "B000000002", "X002", "New", "", "", "", "5", "0", "", "", ""}, w),
		pad([]string{BoxNameLabel, "", "", "", "", "", "", "", "", "", "", "", "P1 - B1", "P1 - B2"}, w),
		pad([]string{"Box weight (lb)", "", "", "", "", "", "", "", "", "", "", "", "12", "8"}, w),
		pad([]string{"Box width (inch)", "", "", "", "", "", "", "", "", "", "", "", "10", "10"}, w),
		pad([]string{"Box length (inch)", "", "", "", "", "", "", "", "", "", "", "", "12", "12"}, w),
		pad([]string{"Box height (inch)", "", "", "", "", "", "", "", "", "", "", "", "8", "8"}, w),
	}
	return FromStrings(rows)
}

func TestParseCell(t *testing.T) {
	cases := []struct {
		in   string
		kind Kind
		num  float64
	}{
		{"", Empty, 0},
		{"12", Number, 12},
		{"1,200", Number, 1200},
		{" 3.5 ", Number, 3.5},
		{"P1 - B2", Text, 0},
		{"NaN", Text, 0},
		{"Infinity", Text, 0},
		{"12abc", Text, 0},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			c := ParseCell(tc.in)
			assert.Equal(t, tc.kind, c.Kind())
			assert.Equal(t, tc.in, c.String())
			if tc.kind == Number {
				v, ok := c.Float()
				require.True(t, ok)
				assert.InDelta(t, tc.num, v, 1e-9)
			}
		})
	}
}

func TestCellInt(t *testing.T) {
	assert.Equal(t, 0, ParseCell("").Int())
	assert.Equal(t, 7, ParseCell("7").Int())
	assert.Equal(t, 3, ParseCell("3.9").Int())
	assert.Equal(t, 12, ParseCell("12abc").Int())
	assert.Equal(t, -4, ParseCell("-4 units").Int())
	assert.Equal(t, 0, ParseCell("abc").Int())
}

func TestCellJSON(t *testing.T) {
	var row Row
	require.NoError(t, json.Unmarshal([]byte(`["a", 5, null, "", true, {"k":1}]`), &row))
	require.Len(t, row, 6)
	assert.Equal(t, Text, row[0].Kind())
	assert.Equal(t, Number, row[1].Kind())
	assert.True(t, row[2].IsEmpty())
	assert.True(t, row[3].IsEmpty())
	assert.Equal(t, "true", row[4].String())
	assert.Equal(t, `{"k":1}`, row[5].String())

	out, err := json.Marshal(Row{ParseCell("1,200"), TextCell("x"), {}})
	require.NoError(t, err)
	assert.JSONEq(t, `["1,200","x",""]`, string(out))
}

func TestFromRowsRoundTrip(t *testing.T) {
	g := fixture()
	back, err := FromRows(g.Rows())
	require.NoError(t, err)
	if diff := cmp.Diff(g.Strings(), back.Strings()); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	_, err = FromRows(map[string]any{})
	assert.Error(t, err)
}

func TestBoxCount(t *testing.T) {
	assert.Equal(t, 2, fixture().BoxCount())
	assert.Equal(t, 0, Grid{{TextCell("x")}}.BoxCount())
}

func TestNewSheetRequiresBoxRow(t *testing.T) {
	_, err := NewSheet(Grid{{TextCell("a")}}, nil)
	assert.ErrorIs(t, err, ErrNoBoxRow)
}

func TestSheetBoxesAndIDs(t *testing.T) {
	s, err := NewSheet(fixture(), nil)
	require.NoError(t, err)
	boxes := s.Boxes()
	require.Len(t, boxes, 2)
	assert.Equal(t, 12, boxes[0].Column)
	assert.Equal(t, 1, boxes[0].Number)
	assert.Equal(t, "8", boxes[1].Weight)
	assert.NotEqual(t, boxes[0].ID, boxes[1].ID)

	// Identifiers survive a reload when the index is carried along.
	again, err := NewSheet(s.Grid(), s.Refs())
	require.NoError(t, err)
	assert.Equal(t, s.Refs(), again.Refs())
}

func TestAddBoxKeepsColumnsAligned(t *testing.T) {
	s, err := NewSheet(fixture(), nil)
	require.NoError(t, err)
	assert.Equal(t, "P1 - B3", s.NextBoxName())

	id := s.AddBox(BoxSpec{Weight: "5", Width: "1", Length: "2", Height: "3"})
	b, err := s.Box(id)
	require.NoError(t, err)
	assert.Equal(t, 14, b.Column)
	assert.Equal(t, "P1 - B3", b.Name)
	assert.Equal(t, "Box 3 quantity", s.Grid().Cell(HeaderRow, 14).String())
	require.NoError(t, s.Validate())

	ids := s.AddBoxes(2, BoxSpec{Weight: "1"})
	require.Len(t, ids, 2)
	last, err := s.Box(ids[1])
	require.NoError(t, err)
	assert.Equal(t, "P1 - B5", last.Name)
	assert.Equal(t, 16, last.Column)
	require.NoError(t, s.Validate())
}

func TestRemoveAndRestoreBox(t *testing.T) {
	s, err := NewSheet(fixture(), nil)
	require.NoError(t, err)
	first := s.Boxes()[0]

	require.NoError(t, s.RemoveBox(first.ID))
	assert.Equal(t, 1, s.Grid().Cell(5, ColBoxed).Int())
	assert.True(t, s.Grid().Cell(5, 12).IsEmpty())
	assert.True(t, s.Grid().Cell(HeaderRow, 12).IsEmpty())
	require.NoError(t, s.Validate())

	slots := s.DeletedSlots()
	require.Len(t, slots, 1)
	assert.Equal(t, Slot{Column: 12, SuggestedName: "P1 - B1"}, slots[0])

	_, err = s.Box(first.ID)
	assert.ErrorIs(t, err, ErrUnknownBox)

	id, err := s.RestoreBox(12, BoxSpec{Weight: "9"})
	require.NoError(t, err)
	b, err := s.Box(id)
	require.NoError(t, err)
	assert.Equal(t, "P1 - B1", b.Name)
	assert.Equal(t, "Box 1 quantity", s.Grid().Cell(HeaderRow, 12).String())
	assert.Equal(t, 12, s.Refs()[0].Column)

	_, err = s.RestoreBox(13, BoxSpec{})
	assert.ErrorIs(t, err, ErrSlotOccupied)
}

func TestQuantityMutations(t *testing.T) {
	s, err := NewSheet(fixture(), nil)
	require.NoError(t, err)
	b1, b2 := s.Boxes()[0].ID, s.Boxes()[1].ID

	require.NoError(t, s.AddQuantity(6, b1, 3))
	assert.Equal(t, 3, s.Grid().Cell(6, ColBoxed).Int())

	err = s.AddQuantity(6, b2, 3)
	assert.ErrorIs(t, err, ErrExceedsAvailable)
	assert.Equal(t, 3, s.Grid().Cell(6, ColBoxed).Int())

	assert.ErrorIs(t, s.AddQuantity(6, b2, 0), ErrInvalidQuantity)
	assert.ErrorIs(t, s.AddQuantity(7, b2, 1), ErrNotItemRow)
	assert.ErrorIs(t, s.AddQuantity(6, "nope", 1), ErrUnknownBox)

	require.NoError(t, s.ReduceQuantity(6, b1, 3))
	assert.True(t, s.Grid().Cell(6, 12).IsEmpty())
	assert.Equal(t, "0", s.Grid().Cell(6, ColBoxed).String())
	assert.ErrorIs(t, s.ReduceQuantity(6, b1, 1), ErrExceedsBoxed)

	require.NoError(t, s.AddQuantityToBoxes(5, []BoxID{b1, b2}, 2))
	assert.Equal(t, 4, s.Grid().Cell(5, 12).Int())
	assert.Equal(t, 3, s.Grid().Cell(5, 13).Int())
	assert.Equal(t, 7, s.Grid().Cell(5, ColBoxed).Int())
	assert.ErrorIs(t, s.AddQuantityToBoxes(5, []BoxID{b1, b2}, 2), ErrExceedsAvailable)

	require.NoError(t, s.RemoveItem(5, b2))
	assert.Equal(t, 4, s.Grid().Cell(5, ColBoxed).Int())
	require.NoError(t, s.Validate())
}

func TestBoxTotals(t *testing.T) {
	s, err := NewSheet(fixture(), nil)
	require.NoError(t, err)
	totals := s.BoxTotals()
	require.Len(t, totals, 2)
	assert.Equal(t, 1, totals[0].ItemCount)
	assert.Equal(t, 2, totals[0].TotalQuantity)
	assert.Equal(t, "P1 - B2", totals[1].Name)
}

func TestValidateAndRecompute(t *testing.T) {
	g := fixture()
	g.Set(5, ColBoxed, IntCell(9))
	s, err := NewSheet(g, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Validate(), ErrInconsistentTotal)
	s.Recompute()
	require.NoError(t, s.Validate())
	assert.Equal(t, 3, s.Grid().Cell(5, ColBoxed).Int())
}

func TestItemsAndFind(t *testing.T) {
	s, err := NewSheet(fixture(), nil)
	require.NoError(t, err)
	items := s.Items()
	require.Len(t, items, 2)
	assert.Equal(t, 7, items[0].Available())

	it, err := s.FindItem("x002")
	require.NoError(t, err)
	assert.Equal(t, 6, it.Row)
	_, err = s.FindItem("missing")
	assert.ErrorIs(t, err, ErrNotItemRow)
}
