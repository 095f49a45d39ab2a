package grid

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"unicode"

	json "github.com/goccy/go-json"
)

type Kind uint8

const (
	Empty Kind = iota
	Number
	Text
)

func (k Kind) String() string {
	switch k {
	case Number:
		return "number"
	case Text:
		return "text"
	default:
		return "empty"
	}
}

// Cell is a single grid value. Number cells keep the text they were read
// from so the stored form round-trips unchanged.
type Cell struct {
	kind Kind
	text string
	num  float64
}

// ParseCell classifies a raw cell string.
func ParseCell(s string) Cell {
	if s == "" {
		return Cell{}
	}
	if v, ok := coerceNumber(s); ok {
		return Cell{kind: Number, text: s, num: v}
	}
	return Cell{kind: Text, text: s}
}

func TextCell(s string) Cell {
	if s == "" {
		return Cell{}
	}
	return Cell{kind: Text, text: s}
}

func IntCell(n int) Cell {
	return Cell{kind: Number, text: strconv.Itoa(n), num: float64(n)}
}

func FloatCell(f float64) Cell {
	return Cell{kind: Number, text: strconv.FormatFloat(f, 'f', -1, 64), num: f}
}

func (c Cell) Kind() Kind { return c.kind }

func (c Cell) IsEmpty() bool { return c.kind == Empty }

func (c Cell) String() string { return c.text }

// Float returns the numeric value of a Number cell.
func (c Cell) Float() (float64, bool) {
	if c.kind != Number {
		return 0, false
	}
	return c.num, true
}

// Int truncates Number cells and reads a leading integer from Text cells.
// Anything else is 0.
func (c Cell) Int() int {
	switch c.kind {
	case Number:
		return int(c.num)
	case Text:
		return leadingInt(c.text)
	}
	return 0
}

func (c Cell) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.text)
}

func (c *Cell) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*c = Cell{}
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = ParseCell(s)
	case data[0] == '{' || data[0] == '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return err
		}
		*c = TextCell(buf.String())
	case bytes.Equal(data, []byte("true")) || bytes.Equal(data, []byte("false")):
		*c = TextCell(string(data))
	default:
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return err
		}
		*c = Cell{kind: Number, text: string(data), num: f}
	}
	return nil
}

// CoerceNumber strips thousands separators and whitespace and reports
// whether what is left is a finite number.
func CoerceNumber(s string) (float64, bool) {
	return coerceNumber(s)
}

func coerceNumber(s string) (float64, bool) {
	clean := strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if clean == "" {
		return 0, false
	}
	// ParseFloat accepts spellings like "inf" and "nan"; keep those as text.
	if c := clean[len(clean)-1]; c < '0' || c > '9' {
		if c != '.' {
			return 0, false
		}
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func leadingInt(s string) int {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
