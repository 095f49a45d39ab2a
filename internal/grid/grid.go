package grid

import (
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"
)

// Layout of the Amazon box-content sheet.
const (
	HeaderRow      = 4
	FirstItemRow   = 5
	FirstBoxColumn = 12
	BoxNameLabel   = "Name of box"

	ColSKU        = 0
	ColTitle      = 1
	ColID         = 2
	ColASIN       = 3
	ColFNSKU      = 4
	ColCondition  = 5
	ColPrepType   = 6
	ColPrepUnits  = 7
	ColLabelUnits = 8
	ColExpected   = 9
	ColBoxed      = 10

	// FirstNumericColumn is where exported cells are written as numbers.
	FirstNumericColumn = ColExpected
)

// Box metadata rows relative to the box-name row.
const (
	offsetName = iota
	offsetWeight
	offsetWidth
	offsetLength
	offsetHeight
	boxMetaRows
)

type Row []Cell

type Grid []Row

// FromStrings builds a grid from raw sheet strings.
func FromStrings(rows [][]string) Grid {
	g := make(Grid, len(rows))
	for i, r := range rows {
		row := make(Row, len(r))
		for j, s := range r {
			row[j] = ParseCell(s)
		}
		g[i] = row
	}
	return g
}

// Strings returns the stored text of every cell.
func (g Grid) Strings() [][]string {
	out := make([][]string, len(g))
	for i, r := range g {
		row := make([]string, len(r))
		for j, c := range r {
			row[j] = c.text
		}
		out[i] = row
	}
	return out
}

// Rows returns the grid as generic JSON values, one []any per row.
func (g Grid) Rows() []any {
	out := make([]any, len(g))
	for i, r := range g {
		row := make([]any, len(r))
		for j, c := range r {
			row[j] = c.text
		}
		out[i] = row
	}
	return out
}

// FromRows accepts the generic shape produced by decoding JSON: a sequence
// of rows, each a sequence of scalars. A scalar row becomes a one-cell row.
func FromRows(v any) (Grid, error) {
	rows, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("grid: expected a sequence of rows, got %T", v)
	}
	g := make(Grid, len(rows))
	for i, r := range rows {
		switch rv := r.(type) {
		case []any:
			row := make(Row, len(rv))
			for j, cv := range rv {
				row[j] = cellFromValue(cv)
			}
			g[i] = row
		case nil:
			g[i] = Row{}
		default:
			g[i] = Row{cellFromValue(rv)}
		}
	}
	return g, nil
}

func cellFromValue(v any) Cell {
	switch t := v.(type) {
	case nil:
		return Cell{}
	case string:
		return ParseCell(t)
	case float64:
		return FloatCell(t)
	case int:
		return IntCell(t)
	case int64:
		return IntCell(int(t))
	case int32:
		return IntCell(int(t))
	case bool:
		return TextCell(strconv.FormatBool(t))
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return TextCell(fmt.Sprint(t))
		}
		return TextCell(string(b))
	}
}

// Cell returns the cell at (r, c) or an empty cell when out of range.
func (g Grid) Cell(r, c int) Cell {
	if r < 0 || r >= len(g) || c < 0 || c >= len(g[r]) {
		return Cell{}
	}
	return g[r][c]
}

// Set writes a cell, padding the row with empty cells as needed.
func (g Grid) Set(r, c int, v Cell) {
	if r < 0 || r >= len(g) || c < 0 {
		return
	}
	g[r] = g[r].pad(c + 1)
	g[r][c] = v
}

func (r Row) pad(n int) Row {
	for len(r) < n {
		r = append(r, Cell{})
	}
	return r
}

// Width is the length of the longest row.
func (g Grid) Width() int {
	w := 0
	for _, r := range g {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

func (g Grid) Clone() Grid {
	out := make(Grid, len(g))
	for i, r := range g {
		out[i] = append(Row(nil), r...)
	}
	return out
}

// BoxNameRow finds the row whose first cell is the box-name label.
func (g Grid) BoxNameRow() (int, bool) {
	for i, r := range g {
		if len(r) > 0 && r[0].text == BoxNameLabel {
			return i, true
		}
	}
	return 0, false
}

// ItemRows returns the half-open range of item rows.
func (g Grid) ItemRows() (int, int, error) {
	end, ok := g.BoxNameRow()
	if !ok {
		return 0, 0, ErrNoBoxRow
	}
	if end < FirstItemRow {
		return FirstItemRow, FirstItemRow, nil
	}
	return FirstItemRow, end, nil
}

// BoxCount counts the named boxes: the non-empty cells of the box-name
// row, less the label itself.
func (g Grid) BoxCount() int {
	row, ok := g.BoxNameRow()
	if !ok {
		return 0
	}
	n := 0
	for _, c := range g[row] {
		if !c.IsEmpty() {
			n++
		}
	}
	return n - 1
}
