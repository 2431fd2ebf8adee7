package rewriter

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// tag is a start, self-closing or end tag seen while walking a document
type tag struct {
	tok       html.Token
	raw       string
	inPicture bool
}

// edit decides what to emit for a tag. Returning ok=false keeps the original bytes.
type edit func(t *tag) (out string, ok bool)

// walk re-emits doc token by token. Only tags for which fn returns ok are
// re-rendered; every other byte of the document is copied unchanged.
func walk(doc []byte, fn edit) ([]byte, int, error) {
	var (
		out     bytes.Buffer
		changes int
		picture int
	)
	out.Grow(len(doc) + len(doc)/8)

	z := html.NewTokenizer(bytes.NewReader(doc))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				break
			}
			return nil, 0, z.Err()
		}

		raw := append([]byte(nil), z.Raw()...)

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data == "picture" && tt == html.StartTagToken {
				picture++
			}
			if s, ok := fn(&tag{tok: tok, raw: string(raw), inPicture: picture > 0}); ok {
				out.WriteString(s)
				changes++
				continue
			}

		case html.EndTagToken:
			tok := z.Token()
			if tok.Data == "picture" && picture > 0 {
				picture--
			}
			if s, ok := fn(&tag{tok: tok, raw: string(raw), inPicture: picture > 0}); ok {
				out.WriteString(s)
				changes++
				continue
			}
		}

		out.Write(raw)
	}

	return out.Bytes(), changes, nil
}

// getAttr returns the value of key and whether it is present
func getAttr(tok *html.Token, key string) (string, bool) {
	for _, a := range tok.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// setAttr replaces key in place or appends it
func setAttr(tok *html.Token, key, val string) {
	for i, a := range tok.Attr {
		if a.Namespace == "" && a.Key == key {
			tok.Attr[i].Val = val
			return
		}
	}
	tok.Attr = append(tok.Attr, html.Attribute{Key: key, Val: val})
}

// addClass merges class into the class attribute without duplicating it.
// It reports whether the attribute changed.
func addClass(tok *html.Token, class string) bool {
	cur, ok := getAttr(tok, "class")
	if !ok {
		setAttr(tok, "class", class)
		return true
	}
	for _, c := range strings.Fields(cur) {
		if c == class {
			return false
		}
	}
	setAttr(tok, "class", strings.TrimSpace(cur+" "+class))
	return true
}

// render writes a tag back out. Empty-valued attributes are written bare
// (controls, muted, autoplay) except alt, which stays explicit.
func render(tok html.Token) string {
	var sb strings.Builder
	sb.WriteByte('<')
	if tok.Type == html.EndTagToken {
		sb.WriteByte('/')
	}
	sb.WriteString(tok.Data)

	for _, a := range tok.Attr {
		sb.WriteByte(' ')
		if a.Namespace != "" {
			sb.WriteString(a.Namespace)
			sb.WriteByte(':')
		}
		sb.WriteString(a.Key)
		if a.Val == "" && a.Key != "alt" {
			continue
		}
		sb.WriteString(`="`)
		sb.WriteString(html.EscapeString(a.Val))
		sb.WriteByte('"')
	}

	if tok.Type == html.SelfClosingTagToken {
		sb.WriteString(" /")
	}
	sb.WriteByte('>')
	return sb.String()
}
