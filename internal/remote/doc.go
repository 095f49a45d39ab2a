package remote

import (
	"errors"
	"fmt"
	"time"

	"github.com/Qubut/fba-boxes/internal/codec"
	"github.com/Qubut/fba-boxes/internal/grid"
	"github.com/Qubut/fba-boxes/internal/models"
)

// DocVersion is written on every uploaded shipment.
const DocVersion = "1.0"

// ShipmentDoc is the remote form of a shipment. Grids are flattened since
// document stores refuse nested arrays.
type ShipmentDoc struct {
	ShipmentID         string           `firestore:"shipmentID"                 bson:"shipmentID"          json:"shipmentID"`
	ShipmentName       string           `firestore:"shipmentName"               bson:"shipmentName"        json:"shipmentName"`
	MainJSON           map[string]any   `firestore:"mainJson"                   bson:"mainJson"            json:"mainJson"`
	OriginalSheetData  map[string]any   `firestore:"originalSheetData"          bson:"originalSheetData"   json:"originalSheetData"`
	Boxes              []map[string]any `firestore:"boxes,omitempty"            bson:"boxes,omitempty"     json:"boxes,omitempty"`
	AccountID          string           `firestore:"accountId"                  bson:"accountId"           json:"accountId"`
	SanitizedAccountID string           `firestore:"sanitizedAccountId"         bson:"sanitizedAccountId"  json:"sanitizedAccountId"`
	CreatedDate        time.Time        `firestore:"createdDate"                bson:"createdDate"         json:"createdDate"`
	LastModifiedDate   time.Time        `firestore:"lastModifiedDate"           bson:"lastModifiedDate"    json:"lastModifiedDate"`
	MigratedAt         time.Time        `firestore:"migratedAt,serverTimestamp" bson:"migratedAt,omitempty" json:"migratedAt"`
	Version            string           `firestore:"version"                    bson:"version"             json:"version"`

	// Err is set by a backend when the stored document could not be decoded.
	Err error `firestore:"-" bson:"-" json:"-"`
}

// NewShipmentDoc prepares sh for upload under acct.
func NewShipmentDoc(acct Account, sh *models.Shipment) ShipmentDoc {
	return ShipmentDoc{
		ShipmentID:         sh.ShipmentID,
		ShipmentName:       sh.ShipmentName,
		MainJSON:           codec.Flatten(sh.MainJSON.Rows()),
		OriginalSheetData:  flattenSheets(sh.OriginalSheetData),
		Boxes:              encodeBoxes(sh.Boxes),
		AccountID:          acct.ID,
		SanitizedAccountID: acct.Sanitized,
		CreatedDate:        ValidDate(sh.CreatedDate),
		LastModifiedDate:   ValidDate(sh.LastModifiedDate),
		Version:            DocVersion,
	}
}

// Shipment restores the local form. The report counts cells that could not
// be decoded and were kept as raw text.
func (d ShipmentDoc) Shipment() (*models.Shipment, codec.Report, error) {
	if d.Err != nil {
		return nil, codec.Report{}, d.Err
	}
	restored, rep := codec.RestoreWithReport(d.MainJSON)
	g, err := grid.FromRows(restored)
	if err != nil {
		return nil, rep, fmt.Errorf("main grid: %w", err)
	}
	sheets, err := restoreSheets(d.OriginalSheetData, &rep)
	if err != nil {
		return nil, rep, err
	}
	return &models.Shipment{
		ShipmentID:        d.ShipmentID,
		ShipmentName:      d.ShipmentName,
		CreatedDate:       models.FormatTime(ValidDate(d.CreatedDate)),
		LastModifiedDate:  models.FormatTime(ValidDate(d.LastModifiedDate)),
		MainJSON:          g,
		OriginalSheetData: sheets,
		Boxes:             decodeBoxes(d.Boxes),
	}, rep, nil
}

func sheetRows(data [][]string) []any {
	return grid.FromStrings(data).Rows()
}

func flattenSheets(o models.OriginalSheetData) map[string]any {
	out := make(map[string]any, 2)
	for key, sd := range map[string]*models.SheetData{
		"instruction": o.Instruction,
		"metadata":    o.Metadata,
	} {
		if sd == nil {
			continue
		}
		out[key] = map[string]any{
			"name": sd.Name,
			"data": codec.Flatten(sheetRows(sd.Data)),
		}
	}
	return out
}

func restoreSheets(m map[string]any, rep *codec.Report) (models.OriginalSheetData, error) {
	var out models.OriginalSheetData
	for key, dst := range map[string]**models.SheetData{
		"instruction": &out.Instruction,
		"metadata":    &out.Metadata,
	} {
		raw, ok := m[key].(map[string]any)
		if !ok {
			continue
		}
		restored, r := codec.RestoreWithReport(raw["data"])
		rep.Corrupt += r.Corrupt
		g, err := grid.FromRows(restored)
		if err != nil {
			return out, fmt.Errorf("%s sheet: %w", key, err)
		}
		name, _ := raw["name"].(string)
		*dst = &models.SheetData{Name: name, Data: g.Strings()}
	}
	return out, nil
}

func encodeBoxes(refs []grid.BoxRef) []map[string]any {
	if len(refs) == 0 {
		return nil
	}
	out := make([]map[string]any, len(refs))
	for i, r := range refs {
		out[i] = map[string]any{"id": string(r.ID), "column": int64(r.Column)}
	}
	return out
}

func decodeBoxes(in []map[string]any) []grid.BoxRef {
	var out []grid.BoxRef
	for _, m := range in {
		id, _ := m["id"].(string)
		col, ok := toInt(m["column"])
		if id == "" || !ok {
			continue
		}
		out = append(out, grid.BoxRef{ID: grid.BoxID(id), Column: col})
	}
	return out
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// DocFromMap decodes a stored document field by field. Dates in any form
// ValidDate accepts are tolerated, as written by older clients.
func DocFromMap(id string, m map[string]any) (ShipmentDoc, error) {
	d := ShipmentDoc{ShipmentID: id}
	if v, ok := m["shipmentID"].(string); ok && v != "" {
		d.ShipmentID = v
	}
	main, ok := m["mainJson"].(map[string]any)
	if !ok {
		return ShipmentDoc{ShipmentID: d.ShipmentID}, fmt.Errorf("mainJson: unexpected %T", m["mainJson"])
	}
	d.MainJSON = main
	if v, ok := m["originalSheetData"].(map[string]any); ok {
		d.OriginalSheetData = v
	}
	switch boxes := m["boxes"].(type) {
	case []map[string]any:
		d.Boxes = boxes
	case []any:
		for _, b := range boxes {
			if bm, ok := b.(map[string]any); ok {
				d.Boxes = append(d.Boxes, bm)
			}
		}
	}
	d.ShipmentName, _ = m["shipmentName"].(string)
	d.AccountID, _ = m["accountId"].(string)
	d.SanitizedAccountID, _ = m["sanitizedAccountId"].(string)
	d.Version, _ = m["version"].(string)
	d.CreatedDate = ValidDate(m["createdDate"])
	d.LastModifiedDate = ValidDate(m["lastModifiedDate"])
	if v, ok := m["migratedAt"]; ok && v != nil {
		d.MigratedAt = ValidDate(v)
	}
	return d, nil
}

// decodeFallback is used after a typed decode failed: it retries with
// DocFromMap and otherwise returns a document carrying the error.
func decodeFallback(id string, m map[string]any, typed error) ShipmentDoc {
	d, err := DocFromMap(id, m)
	if err != nil {
		d.Err = fmt.Errorf("decode: %w", errors.Join(typed, err))
	}
	return d
}
