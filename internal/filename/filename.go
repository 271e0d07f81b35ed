// Package filename prepares caller-supplied download names for use in
// Content-Disposition headers.
package filename

import (
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// Default is returned when nothing usable is left after sanitizing.
	Default = "download"

	// MaxLength is the maximum sanitized length in characters.
	MaxLength = 180
)

// Sanitize returns name with path separators, NUL, CR/LF and other control
// characters replaced by '_', truncated to MaxLength characters. It never
// returns an empty string.
func Sanitize(name string) string {
	name = norm.NFC.String(name)

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if isIllegal(r) {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}

	result := strings.TrimSpace(b.String())
	result = truncate(result, MaxLength)

	if strings.Trim(result, "_. \t") == "" {
		return Default
	}
	return result
}

// ASCIIFallback returns the sanitized name with every rune outside printable
// ASCII, and the double quote, replaced by '_'. The result is safe inside a
// quoted-string header parameter.
func ASCIIFallback(name string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' {
			return '_'
		}
		return r
	}, Sanitize(name))
}

// EncodeExtValue encodes the sanitized name as an RFC 5987 ext-value:
// UTF-8''<percent-encoded bytes>.
func EncodeExtValue(name string) string {
	s := Sanitize(name)

	var b strings.Builder
	b.Grow(len("UTF-8''") + len(s)*3)
	b.WriteString("UTF-8''")
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&0x0f])
	}
	return b.String()
}

// ContentDisposition builds a header value carrying both the quoted ASCII
// fallback and the UTF-8 extended form of name.
func ContentDisposition(dispositionType, name string) string {
	return dispositionType +
		`; filename="` + ASCIIFallback(name) + `"` +
		`; filename*=` + EncodeExtValue(name)
}

// FromURL derives a display name from the last path segment of u.
func FromURL(u *url.URL) string {
	if u == nil {
		return Default
	}
	base := path.Base(u.EscapedPath())
	switch base {
	case "", ".", "/":
		return Default
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	return Sanitize(base)
}

const upperHex = "0123456789ABCDEF"

func isIllegal(r rune) bool {
	switch r {
	case '/', '\\', 0, '\r', '\n':
		return true
	}
	return r < 0x20 || r == 0x7f || r == utf8.RuneError
}

// isAttrChar reports whether c may appear unencoded in an RFC 5987 value.
func isAttrChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '!', '#', '$', '&', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
