package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// PageSeparator follows every page in Document.Text.
const PageSeparator = "\n\n"

// Document is the text content of one uploaded file.
type Document struct {
	ContentType string
	SizeBytes   int
	Pages       []string
	Metadata    map[string]string
}

// NumPages returns the page count.
func (d Document) NumPages() int {
	return len(d.Pages)
}

// Text joins the pages in order, each followed by PageSeparator.
func (d Document) Text() string {
	var b strings.Builder
	for _, p := range d.Pages {
		b.WriteString(p)
		b.WriteString(PageSeparator)
	}
	return b.String()
}

// FromBytes extracts per-page text and document properties from an in-memory payload.
func FromBytes(ctx context.Context, data []byte, mimeType string, fileName string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	normalized := normalizeMimeType(mimeType, fileName, data)
	doc := Document{ContentType: normalized, SizeBytes: len(data), Metadata: map[string]string{}}

	var err error
	switch normalized {
	case MimePDF:
		doc.Pages, doc.Metadata, err = extractPDF(data)
	case MimeDOCX:
		var text string
		text, err = extractDOCX(data)
		doc.Pages = []string{text}
	default:
		err = fmt.Errorf("unsupported mime type: %s", normalized)
	}
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func extractPDF(data []byte) (pages []string, meta map[string]string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages, meta, err = nil, nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, err
	}

	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, pdfMetadata(r), nil
}

func pdfMetadata(r *pdf.Reader) map[string]string {
	meta := map[string]string{}
	info := r.Trailer().Key("Info")
	if info.Kind() == pdf.Dict {
		keys := info.Keys()
		sort.Strings(keys)
		for _, k := range keys {
			if v := valueString(info.Key(k)); v != "" {
				meta[normalizeKey(k)] = v
			}
		}
	}
	if lang := valueString(r.Trailer().Key("Root").Key("Lang")); lang != "" {
		meta["language"] = lang
	}
	return meta
}

func valueString(v pdf.Value) string {
	switch v.Kind() {
	case pdf.String:
		return strings.TrimSpace(v.Text())
	case pdf.Name:
		return v.Name()
	case pdf.Integer, pdf.Real, pdf.Bool:
		return v.String()
	default:
		return ""
	}
}

func normalizeKey(k string) string {
	k = strings.TrimPrefix(k, "/")
	return strings.ReplaceAll(strings.ToLower(k), "/", "_")
}

func extractDOCX(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty docx data")
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", errors.New("document.xml file not found")
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return stripDocxXML(string(raw)), nil
}

func stripDocxXML(raw string) string {
	decoder := xml.NewDecoder(strings.NewReader(raw))
	var buf strings.Builder
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return raw
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.WriteString(string(t))
		case xml.EndElement:
			if (t.Name.Local == "p" || t.Name.Local == "br") && buf.Len() > 0 {
				buf.WriteString("\n")
			}
		}
	}
	return strings.TrimSpace(buf.String())
}

// normalizeMimeType trusts the declared type unless it is empty or generic,
// in which case the content and file extension decide.
func normalizeMimeType(mimeType string, fileName string, data []byte) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	switch clean {
	case "", "application/octet-stream":
		if bytes.HasPrefix(data, []byte("%PDF-")) {
			return MimePDF
		}
		if strings.EqualFold(filepath.Ext(fileName), ".pdf") {
			return MimePDF
		}
		clean = strings.ToLower(strings.Split(http.DetectContentType(data), ";")[0])
		if clean != "application/zip" {
			return clean
		}
	case "application/zip":
	default:
		return clean
	}

	if isDOCX(data) || strings.EqualFold(filepath.Ext(fileName), ".docx") {
		return MimeDOCX
	}
	return clean
}

func isDOCX(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == "word/document.xml" {
			return true
		}
	}
	return false
}
