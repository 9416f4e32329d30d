package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/common/units"
	"github.com/gomutex/godocx/docx"
	"github.com/gomutex/godocx/wml/ctypes"
	"github.com/gomutex/godocx/wml/stypes"
)

type runStyle struct {
	font   string
	points uint64
	bold   bool
}

type pageSetup struct {
	widthTwips, heightTwips  uint64
	top, bottom, left, right int
}

// docxBuilder wraps a godocx document. Photos are staged in a scratch
// directory because godocx only embeds pictures from files on disk.
type docxBuilder struct {
	doc     *docx.RootDoc
	scratch string
	staged  int
}

func newDocxBuilder() (*docxBuilder, error) {
	doc, err := godocx.NewDocument()
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	dir, err := os.MkdirTemp("", "firecheck-report-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	return &docxBuilder{doc: doc, scratch: dir}, nil
}

func (b *docxBuilder) Close() error {
	return os.RemoveAll(b.scratch)
}

// paragraph appends a body paragraph holding text.
func (b *docxBuilder) paragraph(align stypes.Justification, text string, st runStyle) {
	p := b.doc.AddEmptyParagraph()
	if align != "" {
		p.Justification(align)
	}
	addText(p, text, st)
}

func (b *docxBuilder) emptyParagraph() {
	b.doc.AddEmptyParagraph()
}

func (b *docxBuilder) table() *docx.Table {
	t := b.doc.AddTable()
	t.Style("TableGrid")
	return t
}

// cellParagraph appends a paragraph to a cell.
func cellParagraph(c *docx.Cell, align stypes.Justification) *docx.Paragraph {
	p := c.AddEmptyPara()
	if align != "" {
		p.Justification(align)
	}
	return p
}

// picture embeds an image into p, scaled to widthInches with its aspect
// ratio kept.
func (b *docxBuilder) picture(p *docx.Paragraph, data []byte, info imageInfo, widthInches float64) error {
	b.staged++
	path := filepath.Join(b.scratch, fmt.Sprintf("photo%d.%s", b.staged, info.format))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to stage photo: %w", err)
	}
	height := widthInches * float64(info.height) / float64(info.width)
	if _, err := p.AddPicture(path, units.Inch(widthInches), units.Inch(height)); err != nil {
		return fmt.Errorf("failed to embed photo: %w", err)
	}
	return nil
}

func (b *docxBuilder) pageSetup(pg pageSetup) {
	body := b.doc.Document.Body
	if body.SectPr == nil {
		body.SectPr = ctypes.NewSectionProper()
	}
	body.SectPr.PageSize = &ctypes.PageSize{Width: &pg.widthTwips, Height: &pg.heightTwips}
	if body.SectPr.PageMargin == nil {
		body.SectPr.PageMargin = &ctypes.PageMargin{}
	}
	m := body.SectPr.PageMargin
	m.Top, m.Bottom, m.Left, m.Right = &pg.top, &pg.bottom, &pg.left, &pg.right
}

func (b *docxBuilder) encode() ([]byte, error) {
	b.dedupeDefaults()
	var buf bytes.Buffer
	if err := b.doc.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// dedupeDefaults drops repeated extension defaults from the content types
// part. godocx adds one per embedded picture, and Word rejects a package that
// declares an extension twice.
func (b *docxBuilder) dedupeDefaults() {
	ct := &b.doc.ContentType
	seen := make(map[string]bool, len(ct.Default))
	kept := ct.Default[:0]
	for _, d := range ct.Default {
		ext := strings.ToLower(d.Extension)
		if seen[ext] {
			continue
		}
		seen[ext] = true
		kept = append(kept, d)
	}
	ct.Default = kept
}

// addText appends text to p as styled runs; embedded newlines become line
// breaks.
func addText(p *docx.Paragraph, text string, st runStyle) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		run := p.AddText(line)
		applyStyle(p, run, st)
		if i < len(lines)-1 {
			run.AddBreak(nil)
		}
	}
}

// applyStyle styles the run just added to p. godocx has no run font
// setter, so the fonts go straight onto the run properties; eastAsia is the
// slot Word uses for CJK text.
func applyStyle(p *docx.Paragraph, run *docx.Run, st runStyle) {
	run.Size(st.points)
	if st.bold {
		run.Bold(true)
	}
	if st.font == "" {
		return
	}
	children := p.GetCT().Children
	ct := children[len(children)-1].Run
	ct.Property.Fonts = &ctypes.RunFonts{Ascii: st.font, HAnsi: st.font, EastAsia: st.font}
}
