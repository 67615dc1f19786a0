package parser

import (
	"archive/zip"
	"context"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"smartdoc/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

const (
	defaultPageNumber = 1
	pageBreak         = "\f"
)

var (
	blankRun    = regexp.MustCompile(`[ \t\v\f\x{00a0}]+`)
	lineEdge    = regexp.MustCompile(` ?\n ?`)
	newlineRun  = regexp.MustCompile(`\n{3,}`)
	docxPara    = regexp.MustCompile(`</w:p>`)
	docxText    = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)
	slideText   = regexp.MustCompile(`<a:t>([^<]*)</a:t>`)
	slideFileRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
)

// Load reads the document at path into ordered text segments, one per page
// (or slide, or sheet). Whitespace is normalised and empty pages are dropped.
func Load(ctx context.Context, filePath string) ([]schema.Document, error) {
	ext := strings.ToLower(filepath.Ext(filePath))

	var (
		docs []schema.Document
		err  error
	)
	switch ext {
	case ".pdf":
		docs, err = parsePDF(filePath)
	case ".txt":
		docs, err = parseText(ctx, filePath)
	case ".md", ".markdown":
		docs, err = parseMarkdown(filePath)
	case ".html", ".htm":
		docs, err = parseHTML(ctx, filePath)
	case ".docx":
		docs, err = parseDOCX(filePath)
	case ".pptx":
		docs, err = parsePPTX(filePath)
	case ".xlsx", ".xlsm":
		docs, err = parseXLSX(filePath)
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}

	docs = normalizeSegments(docs, filepath.Base(filePath))
	if len(docs) == 0 {
		return nil, fmt.Errorf("parse %s: %w", filePath, models.ErrNoExtractableText)
	}
	log.Debug().Str("file", filePath).Int("segments", len(docs)).Msg("Parsed document")
	return docs, nil
}

func segment(content string, page int) schema.Document {
	return schema.Document{
		PageContent: content,
		Metadata:    map[string]any{models.MetaPage: page},
	}
}

// parsePDF extracts the plain text of every page. The pdf reader panics on
// some malformed inputs, which is reported as an error instead.
func parsePDF(filePath string) (docs []schema.Document, err error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		doc := segment(pageText, i)
		doc.Metadata[models.MetaTotalPages] = numPages
		docs = append(docs, doc)
	}
	return docs, nil
}

// parseText treats form feeds as page breaks.
func parseText(ctx context.Context, filePath string) ([]schema.Document, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	loaded, err := documentloaders.NewText(f).Load(ctx)
	if err != nil {
		return nil, err
	}

	var docs []schema.Document
	for _, d := range loaded {
		pages := strings.Split(d.PageContent, pageBreak)
		for _, p := range pages {
			doc := segment(p, len(docs)+1)
			doc.Metadata[models.MetaTotalPages] = len(pages)
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func parseHTML(ctx context.Context, filePath string) ([]schema.Document, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	loaded, err := documentloaders.NewHTML(f).Load(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]schema.Document, 0, len(loaded))
	for i, d := range loaded {
		docs = append(docs, segment(d.PageContent, i+1))
	}
	return docs, nil
}

// parseMarkdown renders the markdown AST back to plain text.
func parseMarkdown(filePath string) ([]schema.Document, error) {
	src, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	root := md.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	err = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			switch node := n.(type) {
			case *ast.Text:
				b.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte('\n')
				}
			case *ast.AutoLink:
				b.Write(node.URL(src))
			case *ast.CodeBlock, *ast.FencedCodeBlock:
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(src))
				}
			}
			return ast.WalkContinue, nil
		}
		if n.Type() == ast.TypeBlock {
			b.WriteString("\n\n")
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	return []schema.Document{segment(b.String(), defaultPageNumber)}, nil
}

func parseDOCX(filePath string) ([]schema.Document, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	var b strings.Builder
	for _, para := range docxPara.Split(content, -1) {
		line := extractXMLText(para, docxText, "")
		if strings.TrimSpace(line) == "" {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	// DOCX has no page numbers
	return []schema.Document{segment(b.String(), defaultPageNumber)}, nil
}

func parsePPTX(filePath string) ([]schema.Document, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	type slide struct {
		number int
		text   string
	}
	var slides []slide
	for _, file := range f.File {
		m := slideFileRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		number, _ := strconv.Atoi(m[1])
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", file.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file.Name, err)
		}
		slides = append(slides, slide{number: number, text: extractXMLText(string(data), slideText, " ")})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })

	docs := make([]schema.Document, 0, len(slides))
	for _, s := range slides {
		docs = append(docs, segment(s.text, s.number))
	}
	return docs, nil
}

func parseXLSX(filePath string) ([]schema.Document, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []schema.Document
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		var b strings.Builder
		b.WriteString(fmt.Sprintf("Sheet: %s\n", sheetName))
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteString("\n")
		}
		docs = append(docs, segment(b.String(), sheetNum+1))
	}
	return docs, nil
}

// extractXMLText joins the first capture group of every match of re.
func extractXMLText(xmlContent string, re *regexp.Regexp, sep string) string {
	matches := re.FindAllStringSubmatch(xmlContent, -1)
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, html.UnescapeString(m[1]))
	}
	return strings.Join(parts, sep)
}

func normalizeSegments(docs []schema.Document, source string) []schema.Document {
	out := make([]schema.Document, 0, len(docs))
	for _, d := range docs {
		content := normalizeWhitespace(d.PageContent)
		if content == "" {
			continue
		}
		meta := make(map[string]any, len(d.Metadata)+1)
		for k, v := range d.Metadata {
			meta[k] = v
		}
		meta[models.MetaSource] = source
		out = append(out, schema.Document{PageContent: content, Metadata: meta})
	}
	return out
}

func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = blankRun.ReplaceAllString(s, " ")
	s = lineEdge.ReplaceAllString(s, "\n")
	s = newlineRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
