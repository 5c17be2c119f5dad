package catalog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Category is one entry of the reference job catalog.
type Category struct {
	ID         string   `json:"id"`
	Code       string   `json:"code"`
	Label      string   `json:"label"`
	Definition string   `json:"definition,omitempty"`
	Aliases    []string `json:"aliases,omitempty"`
}

// Columns names the header fields read from the catalog file. Code and Label
// are required; the others are optional.
type Columns struct {
	Code       string
	Label      string
	Definition string
	Aliases    string
}

// DefaultColumns matches the ROME export layout.
func DefaultColumns() Columns {
	return Columns{
		Code:       "code_rome",
		Label:      "libelle_rome",
		Definition: "definition",
		Aliases:    "appellations",
	}
}

// Parsed is the outcome of reading one catalog file.
type Parsed struct {
	Entries  []Category
	Skipped  int
	Encoding string
}

var errUndecodable = errors.New("catalog file is not decodable in any supported encoding")

type candidate struct {
	name string
	enc  encoding.Encoding
}

// Tried in order; the first clean decode wins. ISO-8859-1 maps every byte and
// therefore always succeeds, so it comes last.
var candidates = []candidate{
	{name: "utf-8"},
	{name: "utf-8-sig", enc: unicode.UTF8BOM},
	{name: "windows-1252", enc: charmap.Windows1252},
	{name: "iso-8859-1", enc: charmap.ISO8859_1},
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadFile loads and parses the catalog at path.
func ReadFile(path string, cols Columns, delimiter string) (Parsed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Parsed{}, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data, cols, delimiter)
}

// Parse decodes data and reads one Category per row. Rows with an empty or
// absent code are skipped and counted.
func Parse(data []byte, cols Columns, delimiter string) (Parsed, error) {
	text, encName, err := decode(data)
	if err != nil {
		return Parsed{}, err
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = pickDelimiter(text, delimiter)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Parsed{Encoding: encName}, nil
		}
		return Parsed{}, fmt.Errorf("read catalog header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	// A missing code column leaves every row without a code, so every row is
	// skipped and counted. A missing label column yields empty labels.
	codeIdx := lookup(index, cols.Code)
	labelIdx := lookup(index, cols.Label)
	defIdx := lookup(index, cols.Definition)
	aliasIdx := lookup(index, cols.Aliases)

	out := Parsed{Encoding: encName}
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Parsed{}, fmt.Errorf("read catalog row: %w", err)
		}
		code := field(row, codeIdx)
		if code == "" {
			out.Skipped++
			continue
		}
		out.Entries = append(out.Entries, Category{
			ID:         code,
			Code:       code,
			Label:      field(row, labelIdx),
			Definition: field(row, defIdx),
			Aliases:    splitAliases(field(row, aliasIdx)),
		})
	}
	return out, nil
}

func decode(data []byte) (string, string, error) {
	for _, c := range candidates {
		switch {
		case c.enc == nil:
			if utf8.Valid(data) && !bytes.HasPrefix(data, utf8BOM) {
				return string(data), c.name, nil
			}
		case c.name == "utf-8-sig":
			if !bytes.HasPrefix(data, utf8BOM) {
				continue
			}
			out, err := c.enc.NewDecoder().Bytes(data)
			if err == nil && utf8.Valid(data[len(utf8BOM):]) {
				return string(out), c.name, nil
			}
		default:
			out, err := c.enc.NewDecoder().Bytes(data)
			if err == nil && !bytes.ContainsRune(out, utf8.RuneError) {
				return string(out), c.name, nil
			}
		}
	}
	return "", "", errUndecodable
}

func pickDelimiter(text, configured string) rune {
	switch configured {
	case ";", ",", "\t", "|":
		return rune(configured[0])
	case "tab":
		return '\t'
	}
	line := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		line = text[:i]
	}
	best, bestCount := ',', strings.Count(line, ",")
	for _, d := range []rune{';', '\t'} {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func lookup(index map[string]int, name string) int {
	if name == "" {
		return -1
	}
	if i, ok := index[strings.ToLower(name)]; ok {
		return i
	}
	return -1
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func splitAliases(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, "|") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
