// Package substitute replaces {{variable}} placeholders embedded in block
// content with values from a per-record data object. Substitution is pure:
// the input schema is deep-copied, never mutated.
package substitute

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vello/vello/pkg/schema"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// MissingKeyPolicy controls what an unresolved placeholder becomes.
type MissingKeyPolicy int

const (
	// MissingEmpty substitutes the empty string (default).
	MissingEmpty MissingKeyPolicy = iota
	// MissingKeep leaves the placeholder verbatim.
	MissingKeep
)

type Options struct {
	Missing MissingKeyPolicy
	// MoneyPlaces is the number of decimal places for numeric values under
	// keys listed in MoneyKeys (payslip amount columns). The zero value
	// selects the default of 2; a negative value formats whole units
	// (0 places).
	MoneyPlaces int
	MoneyKeys   []string
}

// Result reports what a single record application did.
type Result struct {
	Schema   *schema.Schema
	Resolved int
	Missing  []string // unique unresolved keys, sorted
}

// Apply substitutes record values into every placeholder-bearing field of the
// schema: text content, table cells (including column labels) and image URLs.
func Apply(s *schema.Schema, record map[string]any, opts Options) (*Result, error) {
	if s == nil {
		return nil, fmt.Errorf("substitute: schema is nil")
	}
	if opts.MoneyPlaces == 0 {
		opts.MoneyPlaces = 2
	} else if opts.MoneyPlaces < 0 {
		opts.MoneyPlaces = 0
	}
	out := s.Clone()
	res := &Result{Schema: out}
	missing := map[string]struct{}{}

	sub := func(in string) string {
		return placeholderRe.ReplaceAllStringFunc(in, func(m string) string {
			key := placeholderRe.FindStringSubmatch(m)[1]
			v, ok := lookup(record, key)
			if !ok {
				missing[key] = struct{}{}
				if opts.Missing == MissingKeep {
					return m
				}
				return ""
			}
			res.Resolved++
			return formatValue(v, key, opts)
		})
	}

	err := out.Walk(func(b *schema.Block) error {
		switch b.Kind {
		case schema.KindText:
			b.Text = sub(b.Text)
		case schema.KindTable:
			for i := range b.Table.Columns {
				b.Table.Columns[i].Label = sub(b.Table.Columns[i].Label)
			}
			for _, row := range b.Table.Rows {
				for i := range row {
					row[i] = sub(row[i])
				}
			}
		case schema.KindImage:
			b.Image.Src = sub(b.Image.Src)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for k := range missing {
		res.Missing = append(res.Missing, k)
	}
	sort.Strings(res.Missing)
	return res, nil
}

// lookup resolves a dotted path into nested maps.
func lookup(record map[string]any, key string) (any, bool) {
	parts := strings.Split(key, ".")
	var cur any = record
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// formatValue renders a record value as substitution text. Numbers go through
// decimal arithmetic so large floats never print exponent notation; money
// keys get fixed decimal places.
func formatValue(v any, key string, opts Options) string {
	money := false
	for _, mk := range opts.MoneyKeys {
		if mk == key {
			money = true
			break
		}
	}
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return t.String()
		}
		return formatDecimal(d, money, opts.MoneyPlaces)
	case float64:
		return formatDecimal(decimal.NewFromFloat(t), money, opts.MoneyPlaces)
	case float32:
		return formatDecimal(decimal.NewFromFloat32(t), money, opts.MoneyPlaces)
	case int:
		return formatDecimal(decimal.NewFromInt(int64(t)), money, opts.MoneyPlaces)
	case int64:
		return formatDecimal(decimal.NewFromInt(t), money, opts.MoneyPlaces)
	case decimal.Decimal:
		return formatDecimal(t, money, opts.MoneyPlaces)
	default:
		return fmt.Sprint(v)
	}
}

func formatDecimal(d decimal.Decimal, money bool, places int) string {
	if money {
		return d.StringFixed(int32(places))
	}
	return d.String()
}
