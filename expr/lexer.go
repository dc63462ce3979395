package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"

	"github.com/hjlabs/hjmcpsse/protocol"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokPercent
	tokPower
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
)

var tokenNames = map[tokenKind]string{
	tokEOF:      "end of input",
	tokNumber:   "number",
	tokIdent:    "identifier",
	tokPlus:     "'+'",
	tokMinus:    "'-'",
	tokStar:     "'*'",
	tokSlash:    "'/'",
	tokPercent:  "'%'",
	tokPower:    "'**'",
	tokLParen:   "'('",
	tokRParen:   "')'",
	tokLBracket: "'['",
	tokRBracket: "']'",
	tokComma:    "','",
}

func (k tokenKind) String() string { return tokenNames[k] }

type token struct {
	kind tokenKind
	text string
	num  float64
	int  bool
	pos  int
}

// lex splits text into tokens. Characters that cannot start any construct
// of the arithmetic grammar are rejected here, so strings, attribute access,
// assignment and comparison never reach the parser.
func lex(text string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isDigit(c) || (c == '.' && i+1 < len(text) && isDigit(text[i+1])):
			tok, n, err := lexNumber(text, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i += n
		case c == '_' || isLetter(c):
			start := i
			for i < len(text) && (text[i] == '_' || isLetter(text[i]) || isDigit(text[i])) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: text[start:i], pos: start})
		case c == '*' && i+1 < len(text) && text[i+1] == '*':
			toks = append(toks, token{kind: tokPower, text: "**", pos: i})
			i += 2
		case c == '/' && i+1 < len(text) && text[i+1] == '/':
			return nil, unsafef(i, "floor division")
		default:
			kind, ok := singles[c]
			if !ok {
				return nil, unsafeChar(text, i)
			}
			toks = append(toks, token{kind: kind, text: string(c), pos: i})
			i++
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(text)})
	return toks, nil
}

var singles = map[byte]tokenKind{
	'+': tokPlus,
	'-': tokMinus,
	'*': tokStar,
	'/': tokSlash,
	'%': tokPercent,
	'(': tokLParen,
	')': tokRParen,
	'[': tokLBracket,
	']': tokRBracket,
	',': tokComma,
}

func lexNumber(text string, start int) (token, int, error) {
	i := start
	isInt := true
	for i < len(text) && isDigit(text[i]) {
		i++
	}
	if i < len(text) && text[i] == '.' {
		isInt = false
		i++
		for i < len(text) && isDigit(text[i]) {
			i++
		}
	}
	if i < len(text) && (text[i] == 'e' || text[i] == 'E') {
		j := i + 1
		if j < len(text) && (text[j] == '+' || text[j] == '-') {
			j++
		}
		if j < len(text) && isDigit(text[j]) {
			isInt = false
			for j < len(text) && isDigit(text[j]) {
				j++
			}
			i = j
		}
	}
	lit := text[start:i]
	if i < len(text) && (text[i] == '.' || text[i] == '_' || isLetter(text[i])) {
		return token{}, 0, invalidf(start, "malformed number %q", text[start:i+1])
	}
	v, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return token{}, 0, invalidf(start, "malformed number %q", lit)
	}
	if isInt && v > maxExactInt {
		isInt = false
	}
	return token{kind: tokNumber, text: lit, num: v, int: isInt, pos: start}, i - start, nil
}

func unsafeChar(text string, i int) error {
	switch text[i] {
	case '.':
		return unsafef(i, "attribute access")
	case '=':
		return unsafef(i, "assignment or comparison")
	case '<', '>', '!':
		return unsafef(i, "comparison")
	case '\'', '"':
		return unsafef(i, "string literal")
	case '{', '}':
		return unsafef(i, "dictionary or set literal")
	case ':':
		return unsafef(i, "slice or lambda")
	case '&', '|', '^', '~':
		return unsafef(i, "bitwise operator")
	}
	r := []rune(text[i:])[0]
	if unicode.IsPrint(r) {
		return unsafef(i, "character %q", r)
	}
	return unsafef(i, "character %U", r)
}

func unsafef(pos int, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return errors.Mark(errors.Newf("%s at position %d is not allowed", msg, pos), protocol.ErrUnsafeExpression)
}

func invalidf(pos int, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return errors.Mark(errors.Newf("invalid mathematical expression: %s at position %d", msg, pos), protocol.ErrInvalidArguments)
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func describe(t token) string {
	if t.kind == tokNumber || t.kind == tokIdent {
		return strings.TrimSpace(t.kind.String() + " " + strconv.Quote(t.text))
	}
	return t.kind.String()
}
