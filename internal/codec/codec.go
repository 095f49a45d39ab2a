// Package codec converts nested grids into the single-level maps accepted by
// document stores that reject arrays of arrays, and back again.
package codec

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

const (
	MetadataKey = "_metadata"
	DataKey     = "data"
	rowPrefix   = "row_"
	colPrefix   = "col_"

	// Encoding marks documents whose cells carry a type tag.
	Encoding = "tagged-v1"

	// ISO8601 matches the timestamps written by the browser client.
	ISO8601 = "2006-01-02T15:04:05.000Z"
)

// Cell type tags. The tag is the first byte of every encoded cell.
const (
	tagString = 's'
	tagNumber = 'n'
	tagBool   = 'b'
	tagNull   = 'z'
	tagJSON   = 'j'
)

// Report counts what Restore saw. Corrupt cells were stored as JSON but
// failed to parse and were returned as raw strings.
type Report struct {
	Rows    int
	Cells   int
	Corrupt int
}

// Flatten encodes v. Sequences become row_<i> -> col_<j> maps; anything
// else is wrapped unchanged under "data".
func Flatten(v any) map[string]any {
	return flattenAt(v, time.Now())
}

func flattenAt(v any, now time.Time) map[string]any {
	rows, ok := v.([]any)
	if !ok {
		return map[string]any{
			MetadataKey: map[string]any{
				"originalLength": 0,
				"isFlattened":    true,
				"flattenedAt":    now.UTC().Format(ISO8601),
				"originalType":   typeOf(v),
			},
			DataKey: v,
		}
	}
	out := make(map[string]any, len(rows)+1)
	for i, row := range rows {
		key := rowPrefix + strconv.Itoa(i)
		cells, isSeq := row.([]any)
		if !isSeq {
			out[key] = encodeCell(row)
			continue
		}
		m := make(map[string]any, len(cells))
		for j, cell := range cells {
			m[colPrefix+strconv.Itoa(j)] = encodeCell(cell)
		}
		out[key] = m
	}
	out[MetadataKey] = map[string]any{
		"originalLength": len(rows),
		"isFlattened":    true,
		"flattenedAt":    now.UTC().Format(ISO8601),
		"originalType":   "array",
		"encoding":       Encoding,
	}
	return out
}

func typeOf(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int32, int64:
		return "number"
	default:
		return "object"
	}
}

func encodeCell(v any) string {
	switch t := v.(type) {
	case nil:
		return string(tagNull)
	case string:
		return string(tagString) + t
	case bool:
		return string(tagBool) + strconv.FormatBool(t)
	case float64:
		return string(tagNumber) + strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return string(tagNumber) + strconv.FormatFloat(float64(t), 'g', -1, 32)
	case int:
		return string(tagNumber) + strconv.Itoa(t)
	case int64:
		return string(tagNumber) + strconv.FormatInt(t, 10)
	case int32:
		return string(tagNumber) + strconv.FormatInt(int64(t), 10)
	case json.Number:
		return string(tagNumber) + t.String()
	case fmt.Stringer:
		return string(tagString) + t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return string(tagString) + fmt.Sprint(t)
		}
		return string(tagJSON) + string(b)
	}
}

// IsFlattened reports whether v carries flattening metadata.
func IsFlattened(v any) bool {
	_, ok := metadataOf(v)
	return ok
}

func metadataOf(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	meta, ok := m[MetadataKey].(map[string]any)
	if !ok {
		return nil, false
	}
	flat, _ := meta["isFlattened"].(bool)
	return meta, flat
}

// Restore reverses Flatten. Values without flattening metadata are returned
// unchanged.
func Restore(v any) any {
	out, _ := RestoreWithReport(v)
	return out
}

func RestoreWithReport(v any) (any, Report) {
	var rep Report
	meta, ok := metadataOf(v)
	if !ok {
		return v, rep
	}
	m := v.(map[string]any)
	if t, _ := meta["originalType"].(string); t != "array" {
		return m[DataKey], rep
	}
	tagged := meta["encoding"] == Encoding

	rowIdx := indexedKeys(m, rowPrefix)
	if len(rowIdx) == 0 {
		return []any{}, rep
	}
	rows := make([]any, rowIdx[len(rowIdx)-1].n+1)
	for _, rk := range rowIdx {
		rep.Rows++
		switch row := m[rk.key].(type) {
		case map[string]any:
			colIdx := indexedKeys(row, colPrefix)
			var cells []any
			if len(colIdx) > 0 {
				cells = make([]any, colIdx[len(colIdx)-1].n+1)
			} else {
				cells = []any{}
			}
			for _, ck := range colIdx {
				rep.Cells++
				cells[ck.n] = decodeCell(row[ck.key], tagged, &rep)
			}
			rows[rk.n] = cells
		default:
			rows[rk.n] = decodeCell(row, tagged, &rep)
		}
	}
	return rows, rep
}

type indexedKey struct {
	key string
	n   int
}

func indexedKeys(m map[string]any, prefix string) []indexedKey {
	out := make([]indexedKey, 0, len(m))
	for k := range m {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		n, err := strconv.Atoi(k[len(prefix):])
		if err != nil || n < 0 {
			continue
		}
		out = append(out, indexedKey{key: k, n: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].n < out[j].n })
	return out
}

func decodeCell(v any, tagged bool, rep *Report) any {
	s, ok := v.(string)
	if !ok {
		// Written by something other than Flatten; pass through.
		return v
	}
	if !tagged {
		return decodeLegacy(s, rep)
	}
	if s == "" {
		return ""
	}
	payload := s[1:]
	switch s[0] {
	case tagString:
		return payload
	case tagNull:
		return nil
	case tagBool:
		return payload == "true"
	case tagNumber:
		f, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			rep.Corrupt++
			return payload
		}
		return f
	case tagJSON:
		var out any
		if err := json.Unmarshal([]byte(payload), &out); err != nil {
			rep.Corrupt++
			return payload
		}
		return out
	default:
		return s
	}
}

// decodeLegacy handles documents written before cells were tagged: every
// cell is a string, and strings opening with '{' or '[' held JSON.
func decodeLegacy(s string, rep *Report) any {
	if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
		return s
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		rep.Corrupt++
		return s
	}
	return out
}
