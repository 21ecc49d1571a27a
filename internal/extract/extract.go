// Package extract pulls plain text out of ingested sources.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var ErrUnsupportedFormat = errors.New("unsupported document format")

// Text normalises inline text: CRLF to LF, invalid UTF-8 replaced, outer space trimmed.
func Text(s string) string {
	s = strings.ToValidUTF8(s, "�")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}

// Document decodes a fetched file. Plain text, markdown and HTML are supported.
func Document(data []byte, contentType, name string) (string, error) {
	switch kind(contentType, name) {
	case "text":
		if !utf8.Valid(data) && bytes.IndexByte(data, 0) >= 0 {
			return "", fmt.Errorf("%s: binary content: %w", name, ErrUnsupportedFormat)
		}
		return Text(string(data)), nil
	case "html":
		return HTML(bytes.NewReader(data))
	default:
		return "", fmt.Errorf("%s (%s): %w", name, contentType, ErrUnsupportedFormat)
	}
}

func kind(contentType, name string) string {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "text/html", "application/xhtml+xml":
		return "html"
	case "text/plain", "text/markdown", "text/x-markdown", "text/csv":
		return "text"
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm", ".xhtml":
		return "html"
	case ".txt", ".md", ".markdown", ".csv", ".text":
		return "text"
	}
	return ""
}

var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Head:     true,
	atom.Iframe:   true,
}

var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Blockquote: true, atom.Pre: true, atom.Table: true, atom.Ul: true, atom.Ol: true,
}

// HTML returns the visible text of a page, one line per block element.
func HTML(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	var (
		b     strings.Builder
		depth int
	)
	newline := func() {
		s := b.String()
		if len(s) > 0 && !strings.HasSuffix(s, "\n") {
			b.WriteByte('\n')
		}
	}

	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return collapse(b.String()), nil
			}
			return "", fmt.Errorf("parse html: %w", z.Err())
		case html.StartTagToken:
			tok := z.Token()
			if skipped[tok.DataAtom] {
				depth++
			} else if blocks[tok.DataAtom] {
				newline()
			}
		case html.EndTagToken:
			tok := z.Token()
			if skipped[tok.DataAtom] {
				if depth > 0 {
					depth--
				}
			} else if blocks[tok.DataAtom] {
				newline()
			}
		case html.SelfClosingTagToken:
			if tok := z.Token(); blocks[tok.DataAtom] {
				newline()
			}
		case html.TextToken:
			if depth > 0 {
				continue
			}
			text := string(z.Text())
			if strings.TrimSpace(text) == "" {
				continue
			}
			s := b.String()
			if len(s) > 0 && !strings.HasSuffix(s, "\n") && !strings.HasSuffix(s, " ") {
				b.WriteByte(' ')
			}
			b.WriteString(strings.TrimSpace(text))
		}
	}
}

// collapse squeezes runs of whitespace inside lines and drops blank lines.
func collapse(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.FieldsFunc(line, unicode.IsSpace), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// HTMLString is HTML over an in-memory page.
func HTMLString(page string) (string, error) {
	return HTML(strings.NewReader(page))
}
