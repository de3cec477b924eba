package rules

import (
	"github.com/viant/parsly"
	"github.com/viant/parsly/matcher"
)

// Token codes start at 1 so they never collide with parsly.EOF
const (
	whitespaceCode = iota + 1
	ifCode
	thenCode
	fieldCode
	operatorCode
	stringCode
	numberCode
	trueCode
	falseCode
	allowCode
	denyCode
)

var (
	whitespaceToken = parsly.NewToken(whitespaceCode, "Whitespace", matcher.NewWhiteSpace())
	ifToken         = parsly.NewToken(ifCode, `"if"`, &keywordMatcher{word: keywordIf})
	thenToken       = parsly.NewToken(thenCode, `"then"`, &keywordMatcher{word: keywordThen})
	fieldToken      = parsly.NewToken(fieldCode, "Field", &wordMatcher{})
	operatorToken   = parsly.NewToken(operatorCode, "Operator", &operatorMatcher{})
	stringToken     = parsly.NewToken(stringCode, "String", &quotedMatcher{})
	numberToken     = parsly.NewToken(numberCode, "Number", &numberMatcher{})
	trueToken       = parsly.NewToken(trueCode, "true", &keywordMatcher{word: "true"})
	falseToken      = parsly.NewToken(falseCode, "false", &keywordMatcher{word: "false"})
	allowToken      = parsly.NewToken(allowCode, `"allow"`, &keywordMatcher{word: string(ActionAllow)})
	denyToken       = parsly.NewToken(denyCode, `"deny"`, &keywordMatcher{word: string(ActionDeny)})
)

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\v' || c == '\f'
}

func isOperatorChar(c byte) bool {
	return c == '=' || c == '!' || c == '<' || c == '>'
}

func isIdentChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}

// isWordChar reports whether c can continue a bare word: anything but
// whitespace, operator characters and quotes.
func isWordChar(c byte) bool {
	return !isSpace(c) && !isOperatorChar(c) && c != '"'
}

// keywordMatcher matches word only when it is not the prefix of a longer identifier
type keywordMatcher struct {
	word string
}

func (m *keywordMatcher) Match(cursor *parsly.Cursor) int {
	end := cursor.Pos + len(m.word)
	if end > cursor.InputSize || string(cursor.Input[cursor.Pos:end]) != m.word {
		return 0
	}
	if end < cursor.InputSize && isIdentChar(cursor.Input[end]) {
		return 0
	}
	return len(m.word)
}

// wordMatcher matches a bare word. Whether it is a valid field name is
// checked by the parser so the whole word can be reported.
type wordMatcher struct{}

func (m *wordMatcher) Match(cursor *parsly.Cursor) int {
	matched := 0
	for i := cursor.Pos; i < cursor.InputSize && isWordChar(cursor.Input[i]); i++ {
		matched++
	}
	return matched
}

// operatorMatcher matches a run of comparison characters such as ">=" or "=>"
type operatorMatcher struct{}

func (m *operatorMatcher) Match(cursor *parsly.Cursor) int {
	matched := 0
	for i := cursor.Pos; i < cursor.InputSize && isOperatorChar(cursor.Input[i]); i++ {
		matched++
	}
	return matched
}

// quotedMatcher matches a double-quoted string without escapes
type quotedMatcher struct{}

func (m *quotedMatcher) Match(cursor *parsly.Cursor) int {
	pos := cursor.Pos
	if pos >= cursor.InputSize || cursor.Input[pos] != '"' {
		return 0
	}
	for i := pos + 1; i < cursor.InputSize; i++ {
		if cursor.Input[i] == '"' {
			return i - pos + 1
		}
	}
	return 0
}

// numberMatcher matches a decimal literal with optional sign, fraction and
// exponent. A literal running into letters (0x10, 5then) does not match.
type numberMatcher struct{}

func (m *numberMatcher) Match(cursor *parsly.Cursor) int {
	input := cursor.Input
	pos := cursor.Pos
	size := cursor.InputSize
	if pos >= size {
		return 0
	}

	c := input[pos]
	if !(c >= '0' && c <= '9') && c != '.' && c != '-' && c != '+' {
		return 0
	}

	end := pos
	for end < size {
		c = input[end]
		if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+' || c == 'e' || c == 'E' {
			end++
			continue
		}
		break
	}
	if end < size && isIdentChar(input[end]) {
		return 0
	}
	return end - pos
}
