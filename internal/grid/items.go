package grid

import (
	"errors"
	"fmt"
	"strings"
)

func (s *Sheet) item(r int) Item {
	return Item{
		Row:      r,
		SKU:      s.g.Cell(r, ColSKU).String(),
		Title:    s.g.Cell(r, ColTitle).String(),
		ASIN:     s.g.Cell(r, ColASIN).String(),
		FNSKU:    s.g.Cell(r, ColFNSKU).String(),
		Expected: s.g.Cell(r, ColExpected).Int(),
		Boxed:    s.g.Cell(r, ColBoxed).Int(),
	}
}

// Items lists the non-blank item rows.
func (s *Sheet) Items() []Item {
	var out []Item
	for r := FirstItemRow; r < s.boxRow; r++ {
		if s.g.Cell(r, ColSKU).IsEmpty() && s.g.Cell(r, ColFNSKU).IsEmpty() {
			continue
		}
		out = append(out, s.item(r))
	}
	return out
}

// FindItem matches an FNSKU or SKU, case-insensitively.
func (s *Sheet) FindItem(key string) (Item, error) {
	for _, it := range s.Items() {
		if strings.EqualFold(it.FNSKU, key) || strings.EqualFold(it.SKU, key) {
			return it, nil
		}
	}
	return Item{}, fmt.Errorf("%w: %q", ErrNotItemRow, key)
}

func (s *Sheet) checkItemRow(r int) error {
	if r < FirstItemRow || r >= s.boxRow {
		return fmt.Errorf("%w: %d", ErrNotItemRow, r)
	}
	return nil
}

func (s *Sheet) setBoxed(r, n int) {
	if n < 0 {
		n = 0
	}
	s.g.Set(r, ColBoxed, IntCell(n))
}

func (s *Sheet) setQuantity(r, c, n int) {
	if n <= 0 {
		s.g.Set(r, c, Cell{})
		return
	}
	s.g.Set(r, c, IntCell(n))
}

// Quantity is the number of units of item row r packed in box id.
func (s *Sheet) Quantity(r int, id BoxID) (int, error) {
	c, err := s.column(id)
	if err != nil {
		return 0, err
	}
	return s.g.Cell(r, c).Int(), nil
}

// AddQuantity packs qty more units of item row r into box id.
func (s *Sheet) AddQuantity(r int, id BoxID, qty int) error {
	return s.AddQuantityToBoxes(r, []BoxID{id}, qty)
}

// AddQuantityToBoxes packs qty units of item row r into each of the boxes.
// Either every box is updated or none is.
func (s *Sheet) AddQuantityToBoxes(r int, ids []BoxID, qty int) error {
	if err := s.checkItemRow(r); err != nil {
		return err
	}
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	cols := make([]int, 0, len(ids))
	for _, id := range ids {
		c, err := s.column(id)
		if err != nil {
			return err
		}
		cols = append(cols, c)
	}
	it := s.item(r)
	need := qty * len(cols)
	if need > it.Available() {
		return fmt.Errorf("%w: need %d, %d available", ErrExceedsAvailable, need, it.Available())
	}
	for _, c := range cols {
		s.setQuantity(r, c, s.g.Cell(r, c).Int()+qty)
	}
	s.setBoxed(r, it.Boxed+need)
	return nil
}

// ReduceQuantity takes qty units of item row r out of box id.
func (s *Sheet) ReduceQuantity(r int, id BoxID, qty int) error {
	if err := s.checkItemRow(r); err != nil {
		return err
	}
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	c, err := s.column(id)
	if err != nil {
		return err
	}
	cur := s.g.Cell(r, c).Int()
	if qty > cur {
		return fmt.Errorf("%w: %d in box, %d requested", ErrExceedsBoxed, cur, qty)
	}
	s.setQuantity(r, c, cur-qty)
	s.setBoxed(r, s.g.Cell(r, ColBoxed).Int()-qty)
	return nil
}

// RemoveItem empties item row r from box id.
func (s *Sheet) RemoveItem(r int, id BoxID) error {
	if err := s.checkItemRow(r); err != nil {
		return err
	}
	c, err := s.column(id)
	if err != nil {
		return err
	}
	cur := s.g.Cell(r, c).Int()
	if cur == 0 {
		s.g.Set(r, c, Cell{})
		return nil
	}
	return s.ReduceQuantity(r, id, cur)
}

func (s *Sheet) BoxTotals() []Totals {
	out := make([]Totals, 0, len(s.refs))
	for _, ref := range s.refs {
		t := Totals{ID: ref.ID, Column: ref.Column, Name: s.g.Cell(s.boxRow, ref.Column).String()}
		for r := FirstItemRow; r < s.boxRow; r++ {
			if q := s.g.Cell(r, ref.Column).Int(); q > 0 {
				t.ItemCount++
				t.TotalQuantity += q
			}
		}
		out = append(out, t)
	}
	return out
}

func (s *Sheet) boxSum(r int) int {
	sum := 0
	for c := FirstBoxColumn; c < len(s.g[r]); c++ {
		sum += s.g.Cell(r, c).Int()
	}
	return sum
}

// Validate reports every row whose total boxed cell disagrees with its box
// columns, and any box-row width mismatch.
func (s *Sheet) Validate() error {
	var errs []error
	w := len(s.g[HeaderRow])
	for r := FirstItemRow; r < s.boxRow+boxMetaRows; r++ {
		if len(s.g[r]) != w {
			errs = append(errs, fmt.Errorf("%w: row %d has %d cells, header has %d", ErrMisaligned, r, len(s.g[r]), w))
		}
	}
	for r := FirstItemRow; r < s.boxRow; r++ {
		boxed, sum := s.g.Cell(r, ColBoxed).Int(), s.boxSum(r)
		if boxed != sum {
			errs = append(errs, fmt.Errorf("%w: row %d records %d, boxes hold %d", ErrInconsistentTotal, r, boxed, sum))
		}
	}
	return errors.Join(errs...)
}

// Recompute rewrites every total boxed cell from the box columns.
func (s *Sheet) Recompute() {
	for r := FirstItemRow; r < s.boxRow; r++ {
		if s.g.Cell(r, ColSKU).IsEmpty() && s.g.Cell(r, ColFNSKU).IsEmpty() && s.boxSum(r) == 0 {
			continue
		}
		s.setBoxed(r, s.boxSum(r))
	}
}
