package coerce

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// tryJSONArray parses s as a JSON array, normalizing numbers to int64/float64.
func tryJSONArray(s string) ([]any, error) {
	v, err := decodeJSON(s)
	if err != nil {
		return nil, err
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("not a JSON array")
	}
	return arr, nil
}

// tryJSONObject parses s as a JSON object, normalizing numbers.
func tryJSONObject(s string) (map[string]any, error) {
	v, err := decodeJSON(s)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("not a JSON object")
	}
	return m, nil
}

func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalizeJSONValue(v), nil
}

// normalizeJSONValue converts json.Number leaves into int64 or float64,
// recursively, so downstream converters see the same shapes a literal or
// CSV parse would produce.
func normalizeJSONValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeJSONValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeJSONValue(e)
		}
		return out
	default:
		return v
	}
}

// parseCSV treats s as a single line of comma-separated values, the last
// fallback when neither JSON nor Python-literal syntax applies.
func parseCSV(s string) ([]any, error) {
	if s == "" {
		return []any{}, nil
	}
	r := csv.NewReader(strings.NewReader(s))
	record, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("csv parse: %w", err)
	}
	out := make([]any, len(record))
	for i, f := range record {
		out[i] = strings.TrimSpace(f)
	}
	return out, nil
}

// ParseLiteral exposes the Python-literal parser for callers outside this
// package (the expression evaluator uses it as a fast path for bracketed
// container literals that are not valid Go expression syntax).
func ParseLiteral(s string) (any, error) {
	return parseLiteral(s)
}

// parseLiteral parses s as a Python-style literal: lists ([...]), tuples or
// parenthesized groups ((...)), dicts/sets ({...}), quoted strings, numbers,
// and the bare words True/False/None. It exists because encoding/json can't
// parse single-quoted strings, trailing commas, or bare True/False/None,
// all of which the accepted command-line syntax allows.
func parseLiteral(s string) (any, error) {
	p := &litParser{src: s}
	p.skipSpace()
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("unexpected trailing input at %d", p.pos)
	}
	return v, nil
}

type litParser struct {
	src string
	pos int
}

func (p *litParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n') {
		p.pos++
	}
}

func (p *litParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *litParser) parseValue() (any, error) {
	p.skipSpace()
	switch c := p.peek(); {
	case c == '[':
		return p.parseSeq('[', ']')
	case c == '(':
		return p.parseSeq('(', ')')
	case c == '{':
		return p.parseDictOrSet()
	case c == '\'' || c == '"':
		return p.parseString(c)
	case c == '-' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	default:
		return p.parseWord()
	}
}

func (p *litParser) parseSeq(open, close byte) ([]any, error) {
	if p.peek() != open {
		return nil, fmt.Errorf("expected %q", open)
	}
	p.pos++
	var items []any
	p.skipSpace()
	for p.peek() != close {
		if p.pos >= len(p.src) {
			return nil, fmt.Errorf("unterminated sequence")
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
		p.skipSpace()
		if p.peek() == ',' {
			p.pos++
			p.skipSpace()
			continue
		}
		break
	}
	if p.peek() != close {
		return nil, fmt.Errorf("expected %q", close)
	}
	p.pos++
	if items == nil {
		items = []any{}
	}
	return items, nil
}

// parseDictOrSet parses {...}. A set literal ({1, 2, 3}) is returned as a
// []any since this module has no dedicated set container type; a dict
// literal ({"a": 1}) is returned as map[string]any.
func (p *litParser) parseDictOrSet() (any, error) {
	if p.peek() != '{' {
		return nil, fmt.Errorf("expected '{'")
	}
	p.pos++
	p.skipSpace()
	if p.peek() == '}' {
		p.pos++
		return map[string]any{}, nil
	}
	first, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.peek() == ':' {
		p.pos++
		p.skipSpace()
		firstVal, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		m := map[string]any{fmt.Sprintf("%v", first): firstVal}
		p.skipSpace()
		for p.peek() == ',' {
			p.pos++
			p.skipSpace()
			if p.peek() == '}' {
				break
			}
			k, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			p.skipSpace()
			if p.peek() != ':' {
				return nil, fmt.Errorf("expected ':' in dict literal")
			}
			p.pos++
			p.skipSpace()
			v, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			m[fmt.Sprintf("%v", k)] = v
			p.skipSpace()
		}
		if p.peek() != '}' {
			return nil, fmt.Errorf("expected '}'")
		}
		p.pos++
		return m, nil
	}
	items := []any{first}
	for p.peek() == ',' {
		p.pos++
		p.skipSpace()
		if p.peek() == '}' {
			break
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
		p.skipSpace()
	}
	if p.peek() != '}' {
		return nil, fmt.Errorf("expected '}'")
	}
	p.pos++
	return items, nil
}

func (p *litParser) parseString(quote byte) (string, error) {
	p.pos++ // opening quote
	var buf bytes.Buffer
	for {
		if p.pos >= len(p.src) {
			return "", fmt.Errorf("unterminated string literal")
		}
		c := p.src[p.pos]
		if c == quote {
			p.pos++
			return buf.String(), nil
		}
		if c == '\\' && p.pos+1 < len(p.src) {
			p.pos++
			switch p.src[p.pos] {
			case 'n':
				buf.WriteByte('\n')
			case 't':
				buf.WriteByte('\t')
			default:
				buf.WriteByte(p.src[p.pos])
			}
			p.pos++
			continue
		}
		buf.WriteByte(c)
		p.pos++
	}
}

func (p *litParser) parseNumber() (any, error) {
	start := p.pos
	if p.peek() == '-' {
		p.pos++
	}
	isFloat := false
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c >= '0' && c <= '9' {
			p.pos++
			continue
		}
		if c == '.' && !isFloat {
			isFloat = true
			p.pos++
			continue
		}
		break
	}
	text := p.src[start:p.pos]
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, err
	}
	return i, nil
}

// parseWord consumes a bare token and maps True/False/None (and their
// lowercase Go-ish spellings) to the corresponding Go value; anything else
// is returned verbatim as a string.
func (p *litParser) parseWord() (any, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == ',' || c == ']' || c == ')' || c == '}' || c == ':' || c == ' ' || c == '\t' || c == '\n' {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return nil, fmt.Errorf("unexpected character at %d", p.pos)
	}
	word := p.src[start:p.pos]
	switch word {
	case "True", "true":
		return true, nil
	case "False", "false":
		return false, nil
	case "None", "null", "none":
		return nil, nil
	default:
		return word, nil
	}
}
