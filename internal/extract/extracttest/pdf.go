// Package extracttest builds small in-memory documents for tests.
package extracttest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// PDFOptions sets document-level properties of a generated PDF.
type PDFOptions struct {
	Info map[string]string
	Lang string
}

// PDF returns a valid PDF with one page per argument, each drawn in Helvetica.
func PDF(pages ...string) []byte {
	return BuildPDF(PDFOptions{}, pages...)
}

// BuildPDF is PDF with an Info dictionary and catalog language.
func BuildPDF(opts PDFOptions, pages ...string) []byte {
	// 1 catalog, 2 page tree, 3 font, 4 info, then a page and content stream per page.
	const firstPage = 5
	var objs []string

	catalog := "<< /Type /Catalog /Pages 2 0 R"
	if opts.Lang != "" {
		catalog += " /Lang (" + escape(opts.Lang) + ")"
	}
	objs = append(objs, catalog+" >>")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", firstPage+2*i)
	}
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	objs = append(objs, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	keys := make([]string, 0, len(opts.Info))
	for k := range opts.Info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var info strings.Builder
	info.WriteString("<<")
	for _, k := range keys {
		fmt.Fprintf(&info, " /%s (%s)", k, escape(opts.Info[k]))
	}
	info.WriteString(" >>")
	objs = append(objs, info.String())

	for i, text := range pages {
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", escape(text))
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", firstPage+2*i+1),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info 4 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

// DOCX returns a minimal word-processing archive with one paragraph per argument.
func DOCX(paragraphs ...string) []byte {
	var body strings.Builder
	for _, p := range paragraphs {
		fmt.Fprintf(&body, "<w:p><w:r><w:t>%s</w:t></w:r></w:p>", p)
	}
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		panic(err)
	}
	if _, err := w.Write([]byte(doc)); err != nil {
		panic(err)
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
