package importer

import (
	"regexp"
	"strings"

	"github.com/cleared-dev/txnimport/internal/importerr"
)

var (
	sgmlRoot   = regexp.MustCompile(`(?i)<OFX>`)
	sgmlTag    = regexp.MustCompile(`<(/?)([A-Za-z0-9_.]+)>`)
	sgmlEntity = regexp.MustCompile(`^&(amp|lt|gt|quot|apos|#[0-9]+|#x[0-9A-Fa-f]+);`)
)

// SGMLToXML rewrites OFX 1.x markup, where value elements have no closing
// tags, into well-formed XML.
//
// Header lines before <OFX> are dropped. An opening tag followed by text
// becomes a complete value element and is not pushed; an opening tag with no
// text opens a container. A closing tag pops the stack down to and including
// its match, and anything still open at the end is closed.
func SGMLToXML(text string) (string, error) {
	loc := sgmlRoot.FindStringIndex(text)
	if loc == nil {
		return "", importerr.Parse(importerr.CodeNoRootElement, "no <OFX> root element found")
	}
	body := text[loc[0]:]

	var out strings.Builder
	out.Grow(len(body) + len(body)/4)
	var stack []string

	matches := sgmlTag.FindAllStringSubmatchIndex(body, -1)
	for i, m := range matches {
		closing := m[3] > m[2]
		name := strings.ToUpper(body[m[4]:m[5]])

		textEnd := len(body)
		if i+1 < len(matches) {
			textEnd = matches[i+1][0]
		}
		content := strings.TrimSpace(body[m[1]:textEnd])

		if closing {
			for j := len(stack) - 1; j >= 0; j-- {
				if stack[j] != name {
					continue
				}
				for k := len(stack) - 1; k >= j; k-- {
					out.WriteString("</" + stack[k] + ">")
				}
				stack = stack[:j]
				break
			}
			continue
		}

		if content != "" {
			out.WriteString("<" + name + ">" + escapeXMLText(content) + "</" + name + ">")
			continue
		}
		out.WriteString("<" + name + ">")
		stack = append(stack, name)
	}
	for k := len(stack) - 1; k >= 0; k-- {
		out.WriteString("</" + stack[k] + ">")
	}
	return out.String(), nil
}

// escapeXMLText escapes markup characters while leaving existing entity
// references intact.
func escapeXMLText(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '&':
			if sgmlEntity.MatchString(s[i:]) {
				b.WriteByte(c)
			} else {
				b.WriteString("&amp;")
			}
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
