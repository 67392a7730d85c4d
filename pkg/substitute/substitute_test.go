package substitute

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vello/vello/pkg/schema"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Parse([]byte(`{
	  "paper": "a4",
	  "blocks": [
	    {"type": "text", "frame": {"x": 0, "y": 0, "w": 100, "h": 20},
	     "content": "Hello {{ employee.name }}, period {{period}}"},
	    {"type": "table", "frame": {"x": 0, "y": 40, "w": 400, "h": 100},
	     "columns": [{"label": "Item", "width": 0.5}, {"label": "{{currency}}", "width": 0.5}],
	     "rows": [["Base", "{{salary.base}}"], ["Big", "{{salary.big}}"]]},
	    {"type": "image", "frame": {"x": 0, "y": 160, "w": 50, "h": 50},
	     "src": "https://cdn.example.com/{{employee.id}}.png"}
	  ]
	}`))
	require.NoError(t, err)
	return s
}

func record() map[string]any {
	return map[string]any{
		"employee": map[string]any{"name": "Ada", "id": "e-7"},
		"period":   "2026-08",
		"currency": "EUR",
		"salary":   map[string]any{"base": 4200.5, "big": 1000000.0},
	}
}

func TestApplySubstitutesAllFields(t *testing.T) {
	s := testSchema(t)
	res, err := Apply(s, record(), Options{MoneyKeys: []string{"salary.base"}})
	require.NoError(t, err)

	require.Equal(t, "Hello Ada, period 2026-08", res.Schema.Blocks[0].Text)
	require.Equal(t, "EUR", res.Schema.Blocks[1].Table.Columns[1].Label)
	require.Equal(t, "4200.50", res.Schema.Blocks[1].Table.Rows[0][1])
	// no exponent notation for large floats
	require.Equal(t, "1000000", res.Schema.Blocks[1].Table.Rows[1][1])
	require.Equal(t, "https://cdn.example.com/e-7.png", res.Schema.Blocks[2].Image.Src)
	require.Empty(t, res.Missing)
}

func TestApplyNeverMutatesInput(t *testing.T) {
	s := testSchema(t)
	_, err := Apply(s, record(), Options{})
	require.NoError(t, err)
	require.Equal(t, "Hello {{ employee.name }}, period {{period}}", s.Blocks[0].Text)
	require.Equal(t, "{{salary.base}}", s.Blocks[1].Table.Rows[0][1])
}

func TestMissingKeyPolicies(t *testing.T) {
	s := testSchema(t)
	rec := map[string]any{"period": "x"}

	res, err := Apply(s, rec, Options{})
	require.NoError(t, err)
	require.Equal(t, "Hello , period x", res.Schema.Blocks[0].Text)
	require.Contains(t, res.Missing, "employee.name")
	require.Contains(t, res.Missing, "salary.base")

	res2, err := Apply(s, rec, Options{Missing: MissingKeep})
	require.NoError(t, err)
	require.Equal(t, "Hello {{ employee.name }}, period x", res2.Schema.Blocks[0].Text)
}

func TestMoneyPlaces(t *testing.T) {
	s := testSchema(t)
	money := []string{"salary.base"}

	// zero value defaults to 2 places
	res, err := Apply(s, record(), Options{MoneyKeys: money})
	require.NoError(t, err)
	require.Equal(t, "4200.50", res.Schema.Blocks[1].Table.Rows[0][1])

	res, err = Apply(s, record(), Options{MoneyKeys: money, MoneyPlaces: 3})
	require.NoError(t, err)
	require.Equal(t, "4200.500", res.Schema.Blocks[1].Table.Rows[0][1])

	// negative asks for whole units
	res, err = Apply(s, record(), Options{MoneyKeys: money, MoneyPlaces: -1})
	require.NoError(t, err)
	require.Equal(t, "4201", res.Schema.Blocks[1].Table.Rows[0][1])
}

func TestLookupDottedPathThroughNonMap(t *testing.T) {
	_, ok := lookup(map[string]any{"a": "leaf"}, "a.b")
	require.False(t, ok)
}

func TestFormatValueKinds(t *testing.T) {
	opts := Options{MoneyPlaces: 2}
	require.Equal(t, "", formatValue(nil, "k", opts))
	require.Equal(t, "true", formatValue(true, "k", opts))
	require.Equal(t, "42", formatValue(42, "k", opts))
	require.Equal(t, "0.1", formatValue(0.1, "k", opts))
}
