// Package render converts a populated schema into a fixed-size paginated PDF.
// Positions are pre-computed pixels; rendering is a per-block-type switch with
// px→pt conversion, no layout or flow of its own.
package render

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/vello/vello/pkg/schema"
)

// placed is a block flattened to absolute page-space pixels with its
// effective style resolved.
type placed struct {
	block *schema.Block
	frame schema.Frame
	style schema.Style
}

// flatten resolves container nesting into absolute frames. Containers
// themselves draw nothing; their children inherit the container offset.
func flatten(s *schema.Schema) []placed {
	var out []placed
	var rec func(bs []schema.Block, offX, offY float64)
	rec = func(bs []schema.Block, offX, offY float64) {
		for i := range bs {
			b := &bs[i]
			abs := schema.Frame{X: b.Frame.X + offX, Y: b.Frame.Y + offY, W: b.Frame.W, H: b.Frame.H}
			if b.Kind == schema.KindContainer {
				rec(b.Children, abs.X, abs.Y)
				continue
			}
			out = append(out, placed{block: b, frame: abs, style: s.EffectiveStyle(b)})
		}
	}
	rec(s.Blocks, 0, 0)
	return out
}

// Paginate reports how many pages the schema occupies. Page index of a block
// is floor(y / pageHeight); pages are materialized up to the deepest block
// edge. An empty template is one empty page.
func Paginate(s *schema.Schema) int {
	_, pageH := s.Page().SizePx()
	pages := 1
	for _, p := range flatten(s) {
		idx := pageIndex(p.frame.Y, pageH)
		need := idx + 1
		// a block whose body extends past the fold still belongs to its page,
		// but the page must exist for its full extent to be visible
		if bottom := p.frame.Y - float64(idx)*pageH + p.frame.H; bottom > pageH {
			need = idx + 1 + int(math.Ceil((bottom-pageH)/pageH))
		}
		if need > pages {
			pages = need
		}
	}
	return pages
}

func pageIndex(y, pageH float64) int {
	if pageH <= 0 {
		return 0
	}
	idx := int(math.Floor(y / pageH))
	if idx < 0 {
		return 0
	}
	return idx
}

// PreviewInfo is the dry-run render summary.
type PreviewInfo struct {
	Pages    int      `json:"pages"`
	Blocks   int      `json:"blocks"`
	Warnings []string `json:"warnings,omitempty"`
}

// Preview computes pagination and flags content the final render would choke
// on (remote image sources, leftover placeholders) without producing a file.
func Preview(s *schema.Schema) PreviewInfo {
	info := PreviewInfo{Pages: Paginate(s)}
	for _, p := range flatten(s) {
		info.Blocks++
		switch p.block.Kind {
		case schema.KindImage:
			if !strings.HasPrefix(p.block.Image.Src, "data:") {
				info.Warnings = append(info.Warnings, fmt.Sprintf("image %s: remote source not embedded yet", blockName(p.block)))
			}
			if strings.Contains(p.block.Image.Src, "{{") {
				info.Warnings = append(info.Warnings, fmt.Sprintf("image %s: unsubstituted placeholder in source", blockName(p.block)))
			}
		case schema.KindText:
			if strings.Contains(p.block.Text, "{{") {
				info.Warnings = append(info.Warnings, fmt.Sprintf("text %s: unsubstituted placeholder", blockName(p.block)))
			}
		case schema.KindTable:
			if tableHasPlaceholder(p.block.Table) {
				info.Warnings = append(info.Warnings, fmt.Sprintf("table %s: unsubstituted placeholder", blockName(p.block)))
			}
		}
	}
	return info
}

func tableHasPlaceholder(t *schema.TablePayload) bool {
	for _, c := range t.Columns {
		if strings.Contains(c.Label, "{{") {
			return true
		}
	}
	for _, row := range t.Rows {
		for _, cell := range row {
			if strings.Contains(cell, "{{") {
				return true
			}
		}
	}
	return false
}

func blockName(b *schema.Block) string {
	if b.ID != "" {
		return b.ID
	}
	return string(b.Kind)
}

// Render produces the PDF bytes for a populated schema.
func Render(s *schema.Schema) ([]byte, error) {
	var buf bytes.Buffer
	if err := RenderTo(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderTo writes the PDF to w.
func RenderTo(w io.Writer, s *schema.Schema) error {
	if err := s.Validate(); err != nil {
		return err
	}
	pageWPt, pageHPt := s.Page().SizePt()
	_, pageHPx := s.Page().SizePx()

	pdf := fpdf.NewCustom(&fpdf.InitType{
		UnitStr: "pt",
		Size:    fpdf.SizeType{Wd: pageWPt, Ht: pageHPt},
	})
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)

	pages := Paginate(s)
	for i := 0; i < pages; i++ {
		pdf.AddPage()
	}

	for _, p := range flatten(s) {
		idx := pageIndex(p.frame.Y, pageHPx)
		pdf.SetPage(idx + 1)
		local := schema.Frame{
			X: p.frame.X,
			Y: p.frame.Y - float64(idx)*pageHPx,
			W: p.frame.W,
			H: p.frame.H,
		}
		if err := renderBlock(pdf, p.block, local, p.style); err != nil {
			return fmt.Errorf("render block %s: %w", blockName(p.block), err)
		}
	}

	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}

// renderBlock is the per-kind drawing switch. Frames are still pixels here;
// conversion to points happens at the draw calls.
func renderBlock(pdf *fpdf.Fpdf, b *schema.Block, f schema.Frame, st schema.Style) error {
	switch b.Kind {
	case schema.KindText:
		return renderText(pdf, b.Text, f, st)
	case schema.KindTable:
		return renderTable(pdf, b.Table, f, st)
	case schema.KindImage:
		return renderImage(pdf, b.Image, f)
	case schema.KindDivider:
		return renderDivider(pdf, f, st)
	case schema.KindSpacer:
		return nil // occupies space only
	default:
		return fmt.Errorf("unsupported kind %q", b.Kind)
	}
}

func renderText(pdf *fpdf.Fpdf, text string, f schema.Frame, st schema.Style) error {
	applyFont(pdf, st)
	r, g, b := parseColor(st.Color, 0, 0, 0)
	pdf.SetTextColor(r, g, b)

	pad := PxToPt(st.PaddingPx)
	lineHt := PxToPt(st.FontSizePx) * lineHeight(st)
	pdf.SetXY(PxToPt(f.X)+pad, PxToPt(f.Y)+pad)
	pdf.MultiCell(PxToPt(f.W)-2*pad, lineHt, text, "", alignStr(st.Align), false)
	return nil
}

func renderTable(pdf *fpdf.Fpdf, tp *schema.TablePayload, f schema.Frame, st schema.Style) error {
	applyFont(pdf, st)
	tr, tg, tb := parseColor(st.Color, 0, 0, 0)
	pdf.SetTextColor(tr, tg, tb)
	br, bg, bb := parseColor(st.BorderColor, 0, 0, 0)
	pdf.SetDrawColor(br, bg, bb)
	pdf.SetLineWidth(borderWidthPt(st))

	total := 0.0
	for _, c := range tp.Columns {
		total += c.Width
	}
	widths := make([]float64, len(tp.Columns))
	for i, c := range tp.Columns {
		widths[i] = PxToPt(f.W) * (c.Width / total)
	}

	pad := PxToPt(st.PaddingPx)
	rowHt := PxToPt(st.FontSizePx)*lineHeight(st) + 2*pad
	x0 := PxToPt(f.X)
	y := PxToPt(f.Y)

	if tp.ShowHeader {
		fr, fg, fb := parseColor(headerFill(tp, st), 235, 235, 235)
		pdf.SetFillColor(fr, fg, fb)
		family, styleStr := fontFor(st)
		headerStyle := styleStr
		if !strings.Contains(headerStyle, "B") {
			headerStyle += "B"
		}
		pdf.SetFont(family, headerStyle, PxToPt(st.FontSizePx))
		pdf.SetXY(x0, y)
		for i, c := range tp.Columns {
			pdf.CellFormat(widths[i], rowHt, c.Label, "1", 0, alignStr(st.Align), true, 0, "")
		}
		y += rowHt
		pdf.SetFont(family, styleStr, PxToPt(st.FontSizePx))
	}

	for _, row := range tp.Rows {
		pdf.SetXY(x0, y)
		for i := range tp.Columns {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			pdf.CellFormat(widths[i], rowHt, cell, "1", 0, alignStr(st.Align), false, 0, "")
		}
		y += rowHt
	}
	return nil
}

func renderImage(pdf *fpdf.Fpdf, ip *schema.ImagePayload, f schema.Frame) error {
	mime, data, err := ParseDataURI(ip.Src)
	if err != nil {
		return fmt.Errorf("image source must be an embedded data URI (resolve remote images first): %w", err)
	}
	typ, err := imageTypeFromMime(mime)
	if err != nil {
		return err
	}

	sum := sha1.Sum(data)
	name := "img-" + hex.EncodeToString(sum[:8])
	opts := fpdf.ImageOptions{ImageType: typ}
	info := pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if pdf.Err() {
		return pdf.Error()
	}

	x, y := PxToPt(f.X), PxToPt(f.Y)
	w, h := PxToPt(f.W), PxToPt(f.H)
	if ip.Fit != "stretch" && info.Width() > 0 && info.Height() > 0 {
		// contain: scale to fit, center inside the frame
		scale := math.Min(w/info.Width(), h/info.Height())
		sw, sh := info.Width()*scale, info.Height()*scale
		x += (w - sw) / 2
		y += (h - sh) / 2
		w, h = sw, sh
	}
	pdf.ImageOptions(name, x, y, w, h, false, opts, 0, "")
	return nil
}

func renderDivider(pdf *fpdf.Fpdf, f schema.Frame, st schema.Style) error {
	r, g, b := parseColor(st.BorderColor, 0, 0, 0)
	pdf.SetDrawColor(r, g, b)
	w := borderWidthPt(st)
	if st.BorderWidthPx <= 0 && f.H > 0 {
		w = PxToPt(f.H)
	}
	pdf.SetLineWidth(w)
	y := PxToPt(f.Y + f.H/2)
	pdf.Line(PxToPt(f.X), y, PxToPt(f.X+f.W), y)
	return nil
}

func applyFont(pdf *fpdf.Fpdf, st schema.Style) {
	family, styleStr := fontFor(st)
	pdf.SetFont(family, styleStr, PxToPt(st.FontSizePx))
}

// fontFor maps a CSS-ish family name onto the PDF core fonts.
func fontFor(st schema.Style) (family, styleStr string) {
	fam := strings.ToLower(st.FontFamily)
	switch {
	case strings.Contains(fam, "times"), strings.Contains(fam, "serif") && !strings.Contains(fam, "sans"):
		family = "Times"
	case strings.Contains(fam, "courier"), strings.Contains(fam, "mono"):
		family = "Courier"
	default:
		family = "Helvetica"
	}
	if st.Bold {
		styleStr += "B"
	}
	if st.Italic {
		styleStr += "I"
	}
	return family, styleStr
}

func lineHeight(st schema.Style) float64 {
	if st.LineHeight > 0 {
		return st.LineHeight
	}
	return 1.25
}

func borderWidthPt(st schema.Style) float64 {
	if st.BorderWidthPx > 0 {
		return PxToPt(st.BorderWidthPx)
	}
	return PxToPt(1)
}

func headerFill(tp *schema.TablePayload, st schema.Style) string {
	if tp.HeaderFill != "" {
		return tp.HeaderFill
	}
	return st.FillColor
}

func alignStr(a string) string {
	switch a {
	case "center":
		return "C"
	case "right":
		return "R"
	default:
		return "L"
	}
}

// parseColor decodes #RRGGBB, falling back to the given default.
func parseColor(c string, dr, dg, db int) (int, int, int) {
	if len(c) != 7 || c[0] != '#' {
		return dr, dg, db
	}
	r, err1 := strconv.ParseUint(c[1:3], 16, 8)
	g, err2 := strconv.ParseUint(c[3:5], 16, 8)
	b, err3 := strconv.ParseUint(c[5:7], 16, 8)
	if err1 != nil || err2 != nil || err3 != nil {
		return dr, dg, db
	}
	return int(r), int(g), int(b)
}
