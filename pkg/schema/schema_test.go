package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

const payslipJSON = `{
  "name": "payslip",
  "paper": "a4",
  "orientation": "portrait",
  "style": {"font_family": "helvetica", "font_size_px": 14},
  "blocks": [
    {"id": "title", "type": "text", "frame": {"x": 40, "y": 32, "w": 714, "h": 28},
     "style": {"font_size_px": 22, "bold": true, "align": "center"},
     "content": "Payslip {{period}}"},
    {"id": "logo", "type": "image", "frame": {"x": 40, "y": 80, "w": 120, "h": 60},
     "src": "https://assets.example.com/logo.png", "fit": "contain"},
    {"id": "lines", "type": "table", "frame": {"x": 40, "y": 180, "w": 714, "h": 300},
     "columns": [{"label": "Item", "width": 0.6}, {"label": "Amount", "width": 0.4}],
     "rows": [["Base salary", "{{salary.base}}"], ["Bonus", "{{salary.bonus}}"]]},
    {"id": "rule", "type": "divider", "frame": {"x": 40, "y": 500, "w": 714, "h": 2}},
    {"id": "footer", "type": "container", "frame": {"x": 40, "y": 520, "w": 714, "h": 80},
     "children": [
       {"type": "text", "frame": {"x": 0, "y": 0, "w": 714, "h": 20}, "content": "{{company.name}}"},
       {"type": "spacer", "frame": {"x": 0, "y": 20, "w": 714, "h": 10}}
     ]}
  ]
}`

func TestParsePayslipSchema(t *testing.T) {
	s, err := Parse([]byte(payslipJSON))
	require.NoError(t, err)
	require.Len(t, s.Blocks, 5)

	require.Equal(t, KindText, s.Blocks[0].Kind)
	require.Equal(t, "Payslip {{period}}", s.Blocks[0].Text)
	require.True(t, s.Blocks[0].Style.Bold)

	require.Equal(t, KindImage, s.Blocks[1].Kind)
	require.Equal(t, "https://assets.example.com/logo.png", s.Blocks[1].Image.Src)

	require.Equal(t, KindTable, s.Blocks[2].Kind)
	require.Len(t, s.Blocks[2].Table.Columns, 2)
	require.True(t, s.Blocks[2].Table.ShowHeader)

	require.Equal(t, KindContainer, s.Blocks[4].Kind)
	require.Len(t, s.Blocks[4].Children, 2)
	require.Equal(t, KindSpacer, s.Blocks[4].Children[1].Kind)
}

func TestJSONRoundTrip(t *testing.T) {
	s, err := Parse([]byte(payslipJSON))
	require.NoError(t, err)

	out, err := json.Marshal(s)
	require.NoError(t, err)

	s2, err := Parse(out)
	require.NoError(t, err)
	require.Equal(t, s, s2)
}

func TestUnknownBlockType(t *testing.T) {
	_, err := Parse([]byte(`{"paper":"a4","blocks":[{"type":"chart","frame":{"x":0,"y":0,"w":10,"h":10}}]}`))
	require.ErrorContains(t, err, "unknown block type")
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"zero size":     `{"paper":"a4","blocks":[{"type":"text","frame":{"x":0,"y":0,"w":0,"h":10}}]}`,
		"negative pos":  `{"paper":"a4","blocks":[{"type":"text","frame":{"x":-1,"y":0,"w":10,"h":10}}]}`,
		"bad paper":     `{"paper":"tabloid","blocks":[]}`,
		"empty img src": `{"paper":"a4","blocks":[{"type":"image","frame":{"x":0,"y":0,"w":10,"h":10},"src":" "}]}`,
		"no columns":    `{"paper":"a4","blocks":[{"type":"table","frame":{"x":0,"y":0,"w":10,"h":10},"rows":[]}]}`,
		"wide row":      `{"paper":"a4","blocks":[{"type":"table","frame":{"x":0,"y":0,"w":10,"h":10},"columns":[{"label":"a","width":1}],"rows":[["x","y"]]}]}`,
		"bad color":     `{"paper":"a4","blocks":[{"type":"text","frame":{"x":0,"y":0,"w":10,"h":10},"style":{"color":"red"}}]}`,
		"bad align":     `{"paper":"a4","blocks":[{"type":"text","frame":{"x":0,"y":0,"w":10,"h":10},"style":{"align":"justify"}}]}`,
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestContainerDepthCap(t *testing.T) {
	inner := `{"type":"text","frame":{"x":0,"y":0,"w":10,"h":10},"content":"x"}`
	for i := 0; i < 9; i++ {
		inner = `{"type":"container","frame":{"x":0,"y":0,"w":10,"h":10},"children":[` + inner + `]}`
	}
	_, err := Parse([]byte(`{"paper":"a4","blocks":[` + inner + `]}`))
	require.ErrorContains(t, err, "nesting")
}

func TestCloneIsDeep(t *testing.T) {
	s, err := Parse([]byte(payslipJSON))
	require.NoError(t, err)

	c := s.Clone()
	c.Blocks[0].Text = "changed"
	c.Blocks[2].Table.Rows[0][0] = "changed"
	c.Blocks[4].Children[0].Text = "changed"

	require.Equal(t, "Payslip {{period}}", s.Blocks[0].Text)
	require.Equal(t, "Base salary", s.Blocks[2].Table.Rows[0][0])
	require.Equal(t, "{{company.name}}", s.Blocks[4].Children[0].Text)
}

func TestEffectiveStyleMerge(t *testing.T) {
	s, err := Parse([]byte(payslipJSON))
	require.NoError(t, err)

	st := s.EffectiveStyle(&s.Blocks[0])
	require.Equal(t, float64(22), st.FontSizePx)
	require.Equal(t, "helvetica", st.FontFamily)
	require.Equal(t, "center", st.Align)
	require.True(t, st.Bold)

	st2 := s.EffectiveStyle(&s.Blocks[3])
	require.Equal(t, float64(14), st2.FontSizePx)
	require.Equal(t, "left", st2.Align)
}

func TestWalkVisitsNested(t *testing.T) {
	s, err := Parse([]byte(payslipJSON))
	require.NoError(t, err)

	var kinds []Kind
	require.NoError(t, s.Walk(func(b *Block) error {
		kinds = append(kinds, b.Kind)
		return nil
	}))
	require.Equal(t, []Kind{KindText, KindImage, KindTable, KindDivider, KindContainer, KindText, KindSpacer}, kinds)
}
