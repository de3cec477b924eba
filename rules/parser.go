package rules

import (
	"strconv"
	"strings"

	"github.com/viant/parsly"
)

const (
	keywordIf   = "if"
	keywordThen = "then"
)

// ParseRules parses rule-language text, one rule per line:
//
//	if FIELD OPERATOR VALUE then ACTION [MODIFIER]
//
// Blank lines are ignored and rules keep their source order. The first
// malformed line fails the whole call with a *SyntaxError.
func ParseRules(source string) ([]Rule, error) {
	lines := strings.Split(source, "\n")
	parsed := make([]Rule, 0, len(lines))

	for i, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		rule, err := parseLine(line, i+1)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, rule)
	}

	return parsed, nil
}

// Validate reports whether source parses, discarding the rules
func Validate(source string) error {
	_, err := ParseRules(source)
	return err
}

// lineParser matches one rule line token by token. Whitespace between
// tokens is optional wherever the tokens cannot run together.
type lineParser struct {
	cursor *parsly.Cursor
	text   string
	line   int
}

func parseLine(text string, lineNo int) (Rule, error) {
	p := &lineParser{cursor: parsly.NewCursor("", []byte(text), 0), text: text, line: lineNo}
	cursor := p.cursor
	rule := Rule{Line: lineNo}

	if cursor.MatchAfterOptional(whitespaceToken, ifToken).Code != ifToken.Code {
		return Rule{}, p.fail(`expected "if"`)
	}

	field, err := p.field()
	if err != nil {
		return Rule{}, err
	}
	rule.Field = field

	op, err := p.operator()
	if err != nil {
		return Rule{}, err
	}
	rule.Operator = op

	value, err := p.value()
	if err != nil {
		return Rule{}, err
	}
	rule.Value = value

	if cursor.MatchAfterOptional(whitespaceToken, thenToken).Code != thenToken.Code {
		return Rule{}, p.fail(`expected "then"`)
	}

	matched := cursor.MatchAfterOptional(whitespaceToken, allowToken, denyToken)
	switch matched.Code {
	case allowToken.Code:
		rule.Action = ActionAllow
	case denyToken.Code:
		rule.Action = ActionDeny
	default:
		return Rule{}, p.fail(`expected action "allow" or "deny"`)
	}

	if cursor.Pos < cursor.InputSize {
		rule.Modifier = strings.TrimSpace(string(cursor.Input[cursor.Pos:]))
	}
	return rule, nil
}

func (p *lineParser) field() (string, error) {
	matched := p.cursor.MatchAfterOptional(whitespaceToken, fieldToken)
	if matched.Code != fieldToken.Code {
		return "", p.fail("expected field name")
	}
	name := matched.Text(p.cursor)
	if err := ValidateField(name); err != nil {
		return "", p.failAt(name, err.Error())
	}
	return name, nil
}

func (p *lineParser) operator() (Operator, error) {
	matched := p.cursor.MatchAfterOptional(whitespaceToken, operatorToken)
	if matched.Code != operatorToken.Code {
		return "", p.fail("expected comparison operator")
	}
	symbol := matched.Text(p.cursor)
	op, ok := operatorSymbols[symbol]
	if !ok {
		return "", p.failAt(symbol, "unknown comparison operator")
	}
	return op, nil
}

func (p *lineParser) value() (Value, error) {
	matched := p.cursor.MatchAfterOptional(whitespaceToken, stringToken, trueToken, falseToken, numberToken)
	switch matched.Code {
	case stringToken.Code:
		quoted := matched.Text(p.cursor)
		return StringValue(quoted[1 : len(quoted)-1]), nil
	case trueToken.Code:
		return BoolValue(true), nil
	case falseToken.Code:
		return BoolValue(false), nil
	case numberToken.Code:
		literal := matched.Text(p.cursor)
		f, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return Value{}, p.failAt(literal, "expected number, quoted string, true or false")
		}
		return NumberValue(f), nil
	}

	p.skipSpace()
	cursor := p.cursor
	switch {
	case cursor.Pos >= cursor.InputSize:
		return Value{}, p.fail("expected value")
	case cursor.Input[cursor.Pos] == '"':
		return Value{}, p.fail("unterminated string literal")
	default:
		return Value{}, p.fail("expected number, quoted string, true or false")
	}
}

func (p *lineParser) skipSpace() {
	p.cursor.MatchOne(whitespaceToken)
}

// fail reports the fragment at the cursor. At the end of the line the
// whole line is the fragment.
func (p *lineParser) fail(msg string) error {
	p.skipSpace()
	cursor := p.cursor
	pos := cursor.Pos
	if pos >= cursor.InputSize {
		return &SyntaxError{Line: p.line, Column: pos + 1, Fragment: strings.TrimSpace(p.text), Message: msg}
	}

	var n int
	switch {
	case cursor.Input[pos] == '"':
		n = (&quotedMatcher{}).Match(cursor)
		if n == 0 {
			n = cursor.InputSize - pos
		}
	case isOperatorChar(cursor.Input[pos]):
		n = (&operatorMatcher{}).Match(cursor)
	default:
		n = (&wordMatcher{}).Match(cursor)
	}
	fragment := strings.TrimSpace(string(cursor.Input[pos : pos+n]))
	return &SyntaxError{Line: p.line, Column: pos + 1, Fragment: fragment, Message: msg}
}

// failAt reports a fragment the cursor has just consumed
func (p *lineParser) failAt(fragment, msg string) error {
	return &SyntaxError{Line: p.line, Column: p.cursor.Pos - len(fragment) + 1, Fragment: fragment, Message: msg}
}
