package query

import (
	"fmt"
	"strings"
)

var readOnlyLeaders = map[string]bool{
	"SELECT": true, "WITH": true, "SHOW": true, "DESCRIBE": true, "DESC": true, "EXPLAIN": true,
}

var mutatingKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true, "ALTER": true,
	"CREATE": true, "TRUNCATE": true, "REPLACE": true, "GRANT": true, "REVOKE": true,
	"MERGE": true, "CALL": true, "ATTACH": true, "DETACH": true, "PRAGMA": true,
	"SET": true, "LOCK": true, "RENAME": true, "INTO": true, "LOAD": true,
	"HANDLER": true, "VACUUM": true,
}

// Dialect controls how string literals are scanned.
type Dialect struct {
	// BackslashEscapes is true when '\' escapes quotes in every literal (MySQL).
	// Otherwise only E'...' literals honour it (Postgres).
	BackslashEscapes bool
	// HashComments is true when '#' starts a line comment (MySQL). The same
	// dialect only reads "--" as a comment when whitespace or a control
	// character follows it, so "1--1" stays arithmetic.
	HashComments bool
	// DollarQuotes is true when $tag$...$tag$ delimits a string (Postgres).
	DollarQuotes bool
}

// DialectFor returns the literal rules of a moviedb driver name.
func DialectFor(driver string) Dialect {
	mysql := driver == "mysql"
	return Dialect{BackslashEscapes: mysql, HashComments: mysql, DollarQuotes: driver == "postgres"}
}

// CheckReadOnly rejects anything but a single read-only statement.
// Literals and comments are blanked out first so their contents cannot trip or
// hide keywords. A keyword directly followed by '(' is a function call
// (REPLACE(), INSERT()) and is allowed.
func CheckReadOnly(sqlText string, d Dialect) error {
	stripped, err := stripLiterals(sqlText, d)
	if err != nil {
		return err
	}

	body := strings.TrimSpace(stripped)
	if i := strings.IndexByte(body, ';'); i >= 0 {
		if strings.TrimSpace(strings.Trim(body[i:], "; \t\r\n")) != "" {
			return fmt.Errorf("%w: multiple statements", ErrNotReadOnly)
		}
		body = strings.TrimSpace(body[:i])
	}

	tokens := tokenize(body)
	if len(tokens) == 0 {
		return fmt.Errorf("%w: empty statement", ErrNotReadOnly)
	}
	if lead := tokens[0].word; !readOnlyLeaders[lead] {
		return fmt.Errorf("%w: statements starting with %s are not allowed", ErrNotReadOnly, lead)
	}
	for _, tok := range tokens {
		if mutatingKeywords[tok.word] && !tok.call {
			return fmt.Errorf("%w: %s is not allowed", ErrNotReadOnly, tok.word)
		}
	}
	return nil
}

type token struct {
	word string // upper-cased
	call bool   // followed by '('
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

func tokenize(s string) []token {
	var out []token
	for i := 0; i < len(s); {
		if !isIdentByte(s[i]) {
			i++
			continue
		}
		start := i
		for i < len(s) && isIdentByte(s[i]) {
			i++
		}
		j := i
		for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
			j++
		}
		out = append(out, token{
			word: strings.ToUpper(s[start:i]),
			call: j < len(s) && s[j] == '(',
		})
	}
	return out
}

// stripLiterals replaces quoted strings, quoted identifiers, and comments with
// a single space. MySQL executable comments (/*! ... */) are rejected because
// the server runs their contents.
func stripLiterals(s string, d Dialect) (string, error) {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '-' && isDashComment(s, i, d), c == '#' && d.HashComments:
			for i < len(s) && s[i] != '\n' {
				i++
			}
			b.WriteByte(' ')
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			if i+2 < len(s) && s[i+2] == '!' {
				return "", fmt.Errorf("%w: executable comments are not allowed", ErrNotReadOnly)
			}
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return "", fmt.Errorf("%w: unterminated comment", ErrNotReadOnly)
			}
			i += 2 + end + 2
			b.WriteByte(' ')
		case c == '$' && d.DollarQuotes && (i == 0 || !isIdentByte(s[i-1])) && dollarTag(s, i) != "":
			tag := dollarTag(s, i)
			end := strings.Index(s[i+len(tag):], tag)
			if end < 0 {
				return "", fmt.Errorf("%w: unterminated dollar-quoted text", ErrNotReadOnly)
			}
			i += len(tag) + end + len(tag)
			b.WriteByte(' ')
		case c == '\'' || c == '"' || c == '`':
			escapes := c != '`' && (d.BackslashEscapes || isEscapePrefix(s, i))
			end, ok := scanQuoted(s, i, escapes)
			if !ok {
				return "", fmt.Errorf("%w: unterminated quoted text", ErrNotReadOnly)
			}
			i = end
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

func isDashComment(s string, i int, d Dialect) bool {
	if i+1 >= len(s) || s[i+1] != '-' {
		return false
	}
	if !d.HashComments || i+2 >= len(s) {
		return true
	}
	return s[i+2] <= ' '
}

// dollarTag returns the opening delimiter ("$$" or "$name$") at i, or "" when
// the '$' starts something else, such as a $1 parameter.
func dollarTag(s string, i int) string {
	j := i + 1
	if j < len(s) && s[j] >= '0' && s[j] <= '9' {
		return ""
	}
	for j < len(s) && s[j] != '$' {
		if !isIdentByte(s[j]) {
			return ""
		}
		j++
	}
	if j >= len(s) {
		return ""
	}
	return s[i : j+1]
}

// isEscapePrefix reports a Postgres E'...' literal opening at i.
func isEscapePrefix(s string, i int) bool {
	if i == 0 || s[i] != '\'' || (s[i-1] != 'E' && s[i-1] != 'e') {
		return false
	}
	return i == 1 || !isIdentByte(s[i-2])
}

// scanQuoted returns the index just past the literal opened at start.
// A doubled quote character stands for itself.
func scanQuoted(s string, start int, backslash bool) (int, bool) {
	q := s[start]
	for i := start + 1; i < len(s); i++ {
		switch {
		case backslash && s[i] == '\\':
			i++
		case s[i] == q:
			if i+1 < len(s) && s[i+1] == q {
				i++
				continue
			}
			return i + 1, true
		}
	}
	return 0, false
}
