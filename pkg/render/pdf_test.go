package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vello/vello/pkg/schema"
)

// 1x1 transparent PNG.
const onePixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

func mustSchema(t *testing.T, doc string) *schema.Schema {
	t.Helper()
	s, err := schema.Parse([]byte(doc))
	require.NoError(t, err)
	return s
}

func TestPxToPtExact(t *testing.T) {
	if PxToPt(96) != 72 {
		t.Fatalf("PxToPt(96) got=%v want=72", PxToPt(96))
	}
	if PxToPt(4) != 3 {
		t.Fatalf("PxToPt(4) got=%v want=3", PxToPt(4))
	}
	if PtToPx(PxToPt(123)) != 123 {
		t.Fatalf("round trip not exact")
	}
}

func TestDataURIRoundTrip(t *testing.T) {
	raw, err := base64.StdEncoding.DecodeString(onePixelPNG)
	require.NoError(t, err)

	uri := EncodeDataURI("image/png", raw)
	mime, data, err := ParseDataURI(uri)
	require.NoError(t, err)
	require.Equal(t, "image/png", mime)
	require.Equal(t, raw, data)
}

func TestParseDataURIRejects(t *testing.T) {
	for name, uri := range map[string]string{
		"not data":   "https://example.com/x.png",
		"no comma":   "data:image/png;base64",
		"not base64": "data:image/png,rawbytes",
		"bad base64": "data:image/png;base64,@@@@",
	} {
		if _, _, err := ParseDataURI(uri); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestPaginate(t *testing.T) {
	// a4 portrait page is 1123 px tall
	empty := mustSchema(t, `{"paper":"a4","blocks":[]}`)
	require.Equal(t, 1, Paginate(empty))

	twoPages := mustSchema(t, `{"paper":"a4","blocks":[
	  {"type":"text","frame":{"x":0,"y":10,"w":100,"h":20},"content":"p1"},
	  {"type":"text","frame":{"x":0,"y":1500,"w":100,"h":20},"content":"p2"}
	]}`)
	require.Equal(t, 2, Paginate(twoPages))

	// a block starting near the fold with a tall body forces the next page
	overhang := mustSchema(t, `{"paper":"a4","blocks":[
	  {"type":"table","frame":{"x":0,"y":1000,"w":100,"h":400},
	   "columns":[{"label":"a","width":1}],"rows":[["x"]]}
	]}`)
	require.Equal(t, 2, Paginate(overhang))
}

func TestPaginateSpacerExtendsDocument(t *testing.T) {
	s := mustSchema(t, `{"paper":"a4","blocks":[
	  {"type":"spacer","frame":{"x":0,"y":1200,"w":10,"h":10}}
	]}`)
	require.Equal(t, 2, Paginate(s))
}

func TestPreviewWarnings(t *testing.T) {
	s := mustSchema(t, `{"paper":"a4","blocks":[
	  {"id":"t","type":"text","frame":{"x":0,"y":0,"w":100,"h":20},"content":"{{name}}"},
	  {"id":"i","type":"image","frame":{"x":0,"y":30,"w":50,"h":50},"src":"https://example.com/a.png"}
	]}`)
	info := Preview(s)
	require.Equal(t, 1, info.Pages)
	require.Equal(t, 2, info.Blocks)
	require.Len(t, info.Warnings, 2)
}

func TestPreviewFlagsPlaceholdersInTablesAndImages(t *testing.T) {
	s := mustSchema(t, `{"paper":"a4","blocks":[
	  {"id":"cells","type":"table","frame":{"x":0,"y":0,"w":100,"h":40},
	   "columns":[{"label":"Item","width":1}],"rows":[["{{base_pay}}"]]},
	  {"id":"labels","type":"table","frame":{"x":0,"y":60,"w":100,"h":40},
	   "columns":[{"label":"{{month}}","width":1}],"rows":[["ok"]]},
	  {"id":"logo","type":"image","frame":{"x":0,"y":120,"w":50,"h":50},
	   "src":"https://cdn.test/{{tenant}}/logo.png"}
	]}`)
	info := Preview(s)
	var tables, images int
	for _, w := range info.Warnings {
		switch {
		case strings.HasPrefix(w, "table "):
			tables++
		case w == "image logo: unsubstituted placeholder in source":
			images++
		}
	}
	require.Equal(t, 2, tables)
	require.Equal(t, 1, images)

	clean := mustSchema(t, `{"paper":"a4","blocks":[
	  {"type":"table","frame":{"x":0,"y":0,"w":100,"h":40},
	   "columns":[{"label":"Item","width":1}],"rows":[["4200.50"]]}
	]}`)
	require.Empty(t, Preview(clean).Warnings)
}

func TestRenderProducesPDF(t *testing.T) {
	doc := fmt.Sprintf(`{"paper":"a4","orientation":"portrait","blocks":[
	  {"type":"text","frame":{"x":40,"y":32,"w":714,"h":28},
	   "style":{"bold":true,"align":"center","color":"#112233"},"content":"Payslip"},
	  {"type":"table","frame":{"x":40,"y":100,"w":714,"h":200},
	   "columns":[{"label":"Item","width":0.6},{"label":"Amount","width":0.4}],
	   "rows":[["Base","4200.50"],["Bonus","300.00"]]},
	  {"type":"image","frame":{"x":40,"y":350,"w":120,"h":60},
	   "src":"data:image/png;base64,%s"},
	  {"type":"divider","frame":{"x":40,"y":430,"w":714,"h":2}},
	  {"type":"container","frame":{"x":40,"y":460,"w":714,"h":1400},"children":[
	    {"type":"text","frame":{"x":0,"y":0,"w":714,"h":20},"content":"on page one"},
	    {"type":"text","frame":{"x":0,"y":1200,"w":714,"h":20},"content":"on page two"}
	  ]}
	]}`, onePixelPNG)

	out, err := Render(mustSchema(t, doc))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF")), "output is not a PDF")
	// two pages: the nested child sits at absolute y=1660, past the 1123 px fold
	require.Equal(t, 2, Paginate(mustSchema(t, doc)))
}

func TestRenderRejectsRemoteImage(t *testing.T) {
	s := mustSchema(t, `{"paper":"a4","blocks":[
	  {"type":"image","frame":{"x":0,"y":0,"w":50,"h":50},"src":"https://example.com/a.png"}
	]}`)
	_, err := Render(s)
	require.ErrorContains(t, err, "data URI")
}

func TestFontMapping(t *testing.T) {
	fam, style := fontFor(schema.Style{FontFamily: "Times New Roman", Bold: true, Italic: true})
	require.Equal(t, "Times", fam)
	require.Equal(t, "BI", style)

	fam, _ = fontFor(schema.Style{FontFamily: "JetBrains Mono"})
	require.Equal(t, "Courier", fam)

	fam, _ = fontFor(schema.Style{FontFamily: "Inter"})
	require.Equal(t, "Helvetica", fam)
}

func TestParseColor(t *testing.T) {
	r, g, b := parseColor("#0a141e", 1, 2, 3)
	require.Equal(t, []int{10, 20, 30}, []int{r, g, b})

	r, g, b = parseColor("bogus", 1, 2, 3)
	require.Equal(t, []int{1, 2, 3}, []int{r, g, b})
}
