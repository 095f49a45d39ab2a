package grid

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/google/uuid"
)

var (
	ErrNoBoxRow          = errors.New("grid: no box name row")
	ErrUnknownBox        = errors.New("grid: unknown box")
	ErrNotItemRow        = errors.New("grid: not an item row")
	ErrInvalidQuantity   = errors.New("grid: quantity must be greater than zero")
	ErrExceedsAvailable  = errors.New("grid: quantity exceeds available units")
	ErrExceedsBoxed      = errors.New("grid: quantity exceeds units in box")
	ErrSlotOccupied      = errors.New("grid: column is not a deleted box slot")
	ErrInconsistentTotal = errors.New("grid: total boxed does not match box quantities")
	ErrMisaligned        = errors.New("grid: box columns are not aligned")
)

var boxNumberPattern = regexp.MustCompile(`B(\d+)$`)

// BoxID identifies a box independently of its column.
type BoxID string

// BoxRef maps a box identifier to the column that holds it on the wire.
type BoxRef struct {
	ID     BoxID `json:"id"`
	Column int   `json:"column"`
}

// BoxSpec describes the metadata written into the box rows.
type BoxSpec struct {
	Name   string
	Weight string
	Width  string
	Length string
	Height string
}

type Box struct {
	ID     BoxID
	Column int
	Number int
	Name   string
	Weight string
	Width  string
	Length string
	Height string
}

// Slot is a box column whose name was cleared and can be restored.
type Slot struct {
	Column        int
	SuggestedName string
}

type Item struct {
	Row      int
	SKU      string
	Title    string
	ASIN     string
	FNSKU    string
	Expected int
	Boxed    int
}

func (i Item) Available() int { return i.Expected - i.Boxed }

type Totals struct {
	ID            BoxID
	Column        int
	Name          string
	ItemCount     int
	TotalQuantity int
}

// Sheet is a box-content grid with a stable box index. All mutations keep
// the header, item and box-metadata rows the same width.
type Sheet struct {
	g      Grid
	boxRow int
	refs   []BoxRef
	newID  func() BoxID
}

// NewSheet locates the box rows of g and reconciles refs with the columns
// that currently hold a box.
func NewSheet(g Grid, refs []BoxRef) (*Sheet, error) {
	row, ok := g.BoxNameRow()
	if !ok {
		return nil, ErrNoBoxRow
	}
	if row+boxMetaRows > len(g) {
		return nil, fmt.Errorf("%w: box metadata rows truncated at row %d", ErrNoBoxRow, row)
	}
	if row <= HeaderRow {
		return nil, fmt.Errorf("%w: box name row %d precedes item rows", ErrNoBoxRow, row)
	}
	s := &Sheet{
		g:      g,
		boxRow: row,
		newID:  func() BoxID { return BoxID(uuid.NewString()) },
	}
	s.align()
	s.reconcile(refs)
	return s, nil
}

func (s *Sheet) Grid() Grid { return s.g }

func (s *Sheet) Refs() []BoxRef { return append([]BoxRef(nil), s.refs...) }

func (s *Sheet) BoxNameRow() int { return s.boxRow }

func (s *Sheet) width() int {
	w := len(s.g[HeaderRow])
	for r := FirstItemRow; r < s.boxRow+boxMetaRows; r++ {
		if len(s.g[r]) > w {
			w = len(s.g[r])
		}
	}
	return w
}

func (s *Sheet) align() {
	w := s.width()
	s.g[HeaderRow] = s.g[HeaderRow].pad(w)
	for r := FirstItemRow; r < s.boxRow+boxMetaRows; r++ {
		s.g[r] = s.g[r].pad(w)
	}
}

func (s *Sheet) reconcile(refs []BoxRef) {
	byColumn := make(map[int]BoxID, len(refs))
	for _, ref := range refs {
		if _, dup := byColumn[ref.Column]; !dup && ref.ID != "" {
			byColumn[ref.Column] = ref.ID
		}
	}
	s.refs = s.refs[:0]
	names := s.g[s.boxRow]
	for c := FirstBoxColumn; c < len(names); c++ {
		if names[c].IsEmpty() {
			continue
		}
		id, ok := byColumn[c]
		if !ok {
			id = s.newID()
		}
		s.refs = append(s.refs, BoxRef{ID: id, Column: c})
	}
}

func (s *Sheet) column(id BoxID) (int, error) {
	for _, ref := range s.refs {
		if ref.ID == id {
			return ref.Column, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownBox, id)
}

// BoxNumber reads the trailing "B<n>" of a box name.
func BoxNumber(name string) (int, bool) {
	m := boxNumberPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func (s *Sheet) box(ref BoxRef) Box {
	c := ref.Column
	name := s.g.Cell(s.boxRow+offsetName, c).String()
	n, ok := BoxNumber(name)
	if !ok {
		n = c - FirstBoxColumn + 1
	}
	return Box{
		ID:     ref.ID,
		Column: c,
		Number: n,
		Name:   name,
		Weight: s.g.Cell(s.boxRow+offsetWeight, c).String(),
		Width:  s.g.Cell(s.boxRow+offsetWidth, c).String(),
		Length: s.g.Cell(s.boxRow+offsetLength, c).String(),
		Height: s.g.Cell(s.boxRow+offsetHeight, c).String(),
	}
}

func (s *Sheet) Boxes() []Box {
	out := make([]Box, 0, len(s.refs))
	for _, ref := range s.refs {
		out = append(out, s.box(ref))
	}
	return out
}

func (s *Sheet) Box(id BoxID) (Box, error) {
	c, err := s.column(id)
	if err != nil {
		return Box{}, err
	}
	return s.box(BoxRef{ID: id, Column: c}), nil
}

// BoxByName returns the first box with the given name.
func (s *Sheet) BoxByName(name string) (Box, error) {
	for _, b := range s.Boxes() {
		if b.Name == name {
			return b, nil
		}
	}
	return Box{}, fmt.Errorf("%w: %q", ErrUnknownBox, name)
}

// NextBoxNumber is one past the highest box number in use.
func (s *Sheet) NextBoxNumber() int {
	highest := 0
	for _, b := range s.Boxes() {
		if n, ok := BoxNumber(b.Name); ok && n > highest {
			highest = n
		}
	}
	return highest + 1
}

func (s *Sheet) NextBoxName() string {
	return boxName(s.NextBoxNumber())
}

func boxName(n int) string { return fmt.Sprintf("P1 - B%d", n) }

func quantityHeader(n int) string { return fmt.Sprintf("Box %d quantity", n) }

// DeletedSlots lists box columns whose name is empty.
func (s *Sheet) DeletedSlots() []Slot {
	var out []Slot
	names := s.g[s.boxRow]
	for c := FirstBoxColumn; c < len(names); c++ {
		if names[c].IsEmpty() {
			out = append(out, Slot{Column: c, SuggestedName: boxName(c - FirstBoxColumn + 1)})
		}
	}
	return out
}

func (s *Sheet) writeBox(c int, spec BoxSpec) {
	n, ok := BoxNumber(spec.Name)
	if !ok {
		n = c - FirstBoxColumn + 1
	}
	s.g.Set(HeaderRow, c, TextCell(quantityHeader(n)))
	s.g.Set(s.boxRow+offsetName, c, TextCell(spec.Name))
	s.g.Set(s.boxRow+offsetWeight, c, ParseCell(spec.Weight))
	s.g.Set(s.boxRow+offsetWidth, c, ParseCell(spec.Width))
	s.g.Set(s.boxRow+offsetLength, c, ParseCell(spec.Length))
	s.g.Set(s.boxRow+offsetHeight, c, ParseCell(spec.Height))
}

// AddBox appends a box column. An empty name takes the next free number.
func (s *Sheet) AddBox(spec BoxSpec) BoxID {
	if spec.Name == "" {
		spec.Name = s.NextBoxName()
	}
	c := max(s.width(), FirstBoxColumn)
	s.writeBox(c, spec)
	s.align()
	id := s.newID()
	s.refs = append(s.refs, BoxRef{ID: id, Column: c})
	return id
}

// AddBoxes appends count boxes numbered from NextBoxNumber, sharing the
// dimensions of spec.
func (s *Sheet) AddBoxes(count int, spec BoxSpec) []BoxID {
	next := s.NextBoxNumber()
	ids := make([]BoxID, 0, count)
	for i := 0; i < count; i++ {
		spec.Name = boxName(next + i)
		ids = append(ids, s.AddBox(spec))
	}
	return ids
}

// RestoreBox refills a deleted slot.
func (s *Sheet) RestoreBox(column int, spec BoxSpec) (BoxID, error) {
	if column < FirstBoxColumn || column >= s.width() || !s.g.Cell(s.boxRow, column).IsEmpty() {
		return "", fmt.Errorf("%w: %d", ErrSlotOccupied, column)
	}
	if spec.Name == "" {
		spec.Name = boxName(column - FirstBoxColumn + 1)
	}
	s.writeBox(column, spec)
	id := s.newID()
	s.refs = append(s.refs, BoxRef{ID: id, Column: column})
	sort.Slice(s.refs, func(i, j int) bool { return s.refs[i].Column < s.refs[j].Column })
	return id, nil
}

// UpdateBox rewrites the metadata of a box. Empty fields keep their value.
func (s *Sheet) UpdateBox(id BoxID, spec BoxSpec) error {
	c, err := s.column(id)
	if err != nil {
		return err
	}
	cur := s.box(BoxRef{ID: id, Column: c})
	if spec.Name == "" {
		spec.Name = cur.Name
	}
	if spec.Weight == "" {
		spec.Weight = cur.Weight
	}
	if spec.Width == "" {
		spec.Width = cur.Width
	}
	if spec.Length == "" {
		spec.Length = cur.Length
	}
	if spec.Height == "" {
		spec.Height = cur.Height
	}
	s.writeBox(c, spec)
	return nil
}

// RemoveBox unboxes every item of the box and clears its column, leaving a
// deleted slot behind.
func (s *Sheet) RemoveBox(id BoxID) error {
	c, err := s.column(id)
	if err != nil {
		return err
	}
	for r := FirstItemRow; r < s.boxRow; r++ {
		if q := s.g.Cell(r, c).Int(); q > 0 {
			s.setBoxed(r, s.g.Cell(r, ColBoxed).Int()-q)
		}
		s.g.Set(r, c, Cell{})
	}
	s.g.Set(HeaderRow, c, Cell{})
	for off := offsetName; off < boxMetaRows; off++ {
		s.g.Set(s.boxRow+off, c, Cell{})
	}
	for i, ref := range s.refs {
		if ref.ID == id {
			s.refs = append(s.refs[:i], s.refs[i+1:]...)
			break
		}
	}
	return nil
}
