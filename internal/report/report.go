// Package report renders a project's inspection findings as a Word document:
// a title, one numbered section per category, and a table of findings with
// embedded photos.
package report

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gomutex/godocx/docx"
	"github.com/gomutex/godocx/wml/stypes"

	"github.com/vbonduro/firecheck/internal/domain"
)

// ContentType is the MIME type of the rendered document.
const ContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

const (
	titleSuffix       = " - 消防检查问题清单"
	fileSuffix        = "_消防问题清单.docx"
	emptyCategoryText = "（该项无问题）"
	badImageText      = "[图片格式错误]"
	noPhotoText       = "/"
	descriptionLabel  = "问题描述："
	locationLabel     = "问题位置："

	fontHeading = "黑体"
	fontBody    = "宋体"

	photoWidthInches = 2.0
)

var tableHeaders = []string{"序号", "问题描述", "相关照片", "备注"}

// Letter paper with 2.54 cm top/bottom and 3.17 cm side margins.
var letterPage = pageSetup{
	widthTwips: 12240, heightTwips: 15840,
	top: 1440, bottom: 1440, left: 1797, right: 1797,
}

var (
	titleStyle   = runStyle{font: fontHeading, points: 18, bold: true}
	headingStyle = runStyle{font: fontHeading, points: 14, bold: true}
	headerStyle  = runStyle{font: fontBody, points: 12, bold: true}
	bodyStyle    = runStyle{font: fontBody, points: 10}
)

// Entry is one finding as it appears in the report. Photo holds the raw
// payload, nil when the finding has none.
type Entry struct {
	Category    domain.Category
	Location    string
	Description string
	Remark      string
	Photo       []byte
}

type Document struct {
	FileName       string
	Data           []byte
	PhotosEmbedded int
	PhotoFallbacks int
}

type Renderer struct {
	logger *slog.Logger
}

func NewRenderer(logger *slog.Logger) *Renderer {
	return &Renderer{logger: logger}
}

// FileName returns the download name for a project's report.
func FileName(project string) string {
	r := strings.NewReplacer("/", "_", "\\", "_")
	return r.Replace(project) + fileSuffix
}

// Title returns the document title for a project.
func Title(project string) string {
	return project + titleSuffix
}

// Render builds the report. entries must be ordered oldest first: numbering
// within each category follows that order.
func (r *Renderer) Render(project string, entries []Entry) (*Document, error) {
	b, err := newDocxBuilder()
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			r.logger.Warn("failed to remove report scratch dir", "error", cerr)
		}
	}()
	doc := &Document{FileName: FileName(project)}

	b.pageSetup(letterPage)
	b.paragraph(stypes.JustificationCenter, Title(project), titleStyle)

	for i, category := range domain.Categories {
		items := filterByCategory(entries, category)

		b.emptyParagraph()
		b.paragraph("", sectionNumeral(i+1)+"、"+string(category), headingStyle)

		if len(items) == 0 {
			b.paragraph(stypes.JustificationLeft, emptyCategoryText, bodyStyle)
			continue
		}

		t := b.table()
		header := t.AddRow()
		for _, h := range tableHeaders {
			addText(cellParagraph(header.AddCell(), stypes.JustificationCenter), h, headerStyle)
		}

		for n, item := range items {
			row := t.AddRow()
			addText(cellParagraph(row.AddCell(), stypes.JustificationCenter), strconv.Itoa(n+1), bodyStyle)
			addText(cellParagraph(row.AddCell(), ""),
				descriptionLabel+item.Description+"\n"+locationLabel+item.Location, bodyStyle)
			if err := r.photoCell(b, cellParagraph(row.AddCell(), stypes.JustificationCenter), item, doc); err != nil {
				return nil, err
			}
			addText(cellParagraph(row.AddCell(), stypes.JustificationCenter), item.Remark, bodyStyle)
		}
	}

	data, err := b.encode()
	if err != nil {
		return nil, fmt.Errorf("failed to build document: %w", err)
	}
	doc.Data = data

	r.logger.Debug("report rendered",
		"project", project,
		"entries", len(entries),
		"photos_embedded", doc.PhotosEmbedded,
		"photo_fallbacks", doc.PhotoFallbacks,
		"bytes", len(data),
	)
	return doc, nil
}

// photoCell fills a photo cell. A payload that is not a decodable image
// degrades to a placeholder instead of failing the render.
func (r *Renderer) photoCell(b *docxBuilder, p *docx.Paragraph, item Entry, doc *Document) error {
	if len(item.Photo) == 0 {
		addText(p, noPhotoText, bodyStyle)
		return nil
	}
	info, ok := inspectImage(item.Photo)
	if !ok {
		doc.PhotoFallbacks++
		r.logger.Warn("photo is not a decodable image", "location", item.Location, "bytes", len(item.Photo))
		addText(p, badImageText, bodyStyle)
		return nil
	}
	if err := b.picture(p, item.Photo, info, photoWidthInches); err != nil {
		return err
	}
	doc.PhotosEmbedded++
	return nil
}

func filterByCategory(entries []Entry, category domain.Category) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out
}

var numerals = []string{"一", "二", "三", "四", "五", "六", "七", "八", "九", "十"}

func sectionNumeral(n int) string {
	if n >= 1 && n <= len(numerals) {
		return numerals[n-1]
	}
	return strconv.Itoa(n)
}
