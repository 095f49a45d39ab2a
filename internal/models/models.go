package models

import (
	"time"

	"github.com/Qubut/fba-boxes/internal/grid"
)

// TimeLayout is the ISO-8601 form used for every stored timestamp.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// SheetData is a sidecar sheet kept only so it can be written back on export.
type SheetData struct {
	Name string     `json:"name"`
	Data [][]string `json:"data"`
}

type OriginalSheetData struct {
	Instruction *SheetData `json:"instruction,omitempty"`
	Metadata    *SheetData `json:"metadata,omitempty"`
}

// ParsedWorkbook is what the parser extracts from an uploaded workbook.
type ParsedWorkbook struct {
	MainJSON          grid.Grid         `json:"mainJson"`
	OriginalSheetData OriginalSheetData `json:"originalSheetData"`
}

type Shipment struct {
	ShipmentID        string            `json:"shipmentID"`
	ShipmentName      string            `json:"shipmentName,omitempty"`
	CreatedDate       string            `json:"createdDate,omitempty"`
	LastModifiedDate  string            `json:"lastModifiedDate,omitempty"`
	MainJSON          grid.Grid         `json:"mainJson"`
	OriginalSheetData OriginalSheetData `json:"originalSheetData"`
	Boxes             []grid.BoxRef     `json:"boxes,omitempty"`
}

// DisplayName falls back to the identifier when the shipment is unnamed.
func (s *Shipment) DisplayName() string {
	if s.ShipmentName != "" {
		return s.ShipmentName
	}
	return s.ShipmentID
}

// Sheet opens the box view of the main grid. Box identifiers assigned on
// the way are written back to s.
func (s *Shipment) Sheet() (*grid.Sheet, error) {
	sh, err := grid.NewSheet(s.MainJSON, s.Boxes)
	if err != nil {
		return nil, err
	}
	s.Boxes = sh.Refs()
	return sh, nil
}

// Apply stores the state of a mutated sheet.
func (s *Shipment) Apply(sh *grid.Sheet) {
	s.MainJSON = sh.Grid()
	s.Boxes = sh.Refs()
}

// IndexEntry is the denormalized listing record for a shipment.
type IndexEntry struct {
	ShipmentID       string `json:"shipmentID"`
	CreatedDate      string `json:"createdDate"`
	LastModifiedDate string `json:"lastModifiedDate"`
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts the stored layout and any RFC 3339 timestamp.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
