package script

import (
	"fmt"
	"regexp"
	"strings"
)

// pattern pairs a regex (always anchored at the start of the remaining
// line) with the function that turns a match into a Token.
type pattern struct {
	re   *regexp.Regexp
	make func(lx *Lexer, match []string) Token
}

var patterns = []pattern{
	{regexp.MustCompile(`^\$([a-zA-Z_][a-zA-Z0-9_]*)`), func(lx *Lexer, m []string) Token {
		return lx.tok(VARIABLE, m[1])
	}},
	{regexp.MustCompile(`^-([a-zA-Z][a-zA-Z0-9_]*)`), func(lx *Lexer, m []string) Token {
		return lx.tok(PARAMETER, m[0])
	}},
	{regexp.MustCompile(`^"([^"\\]*(?:\\.[^"\\]*)*)"`), func(lx *Lexer, m []string) Token {
		return lx.tok(STRING, decodeEscapes(m[1]))
	}},
	{regexp.MustCompile(`^'([^'\\]*(?:\\.[^'\\]*)*)'`), func(lx *Lexer, m []string) Token {
		return lx.tok(STRING, decodeEscapes(m[1]))
	}},
	{regexp.MustCompile(`^\d+\.\d+`), func(lx *Lexer, m []string) Token {
		return lx.tok(NUMBER, m[0])
	}},
	{regexp.MustCompile(`^\d+`), func(lx *Lexer, m []string) Token {
		return lx.tok(NUMBER, m[0])
	}},
	// Multi-character operators must be tried before '=' and '|' so that
	// '==' and '||' don't lex as ASSIGNMENT/PIPE pairs.
	{regexp.MustCompile(`^(==|!=|<=|>=|&&|\|\||[+\-*/%<>!])`), func(lx *Lexer, m []string) Token {
		return lx.tok(OPERATOR, m[0])
	}},
	{regexp.MustCompile(`^=`), func(lx *Lexer, m []string) Token { return lx.tok(ASSIGNMENT, "=") }},
	{regexp.MustCompile(`^:`), func(lx *Lexer, m []string) Token { return lx.tok(COLON, ":") }},
	{regexp.MustCompile(`^;`), func(lx *Lexer, m []string) Token { return lx.tok(SEMICOLON, ";") }},
	{regexp.MustCompile(`^\|`), func(lx *Lexer, m []string) Token { return lx.tok(PIPE, "|") }},
	{regexp.MustCompile(`^\[`), func(lx *Lexer, m []string) Token { return lx.tok(LEFT_BRACKET, "[") }},
	{regexp.MustCompile(`^\]`), func(lx *Lexer, m []string) Token { return lx.tok(RIGHT_BRACKET, "]") }},
	{regexp.MustCompile(`^\(`), func(lx *Lexer, m []string) Token { return lx.tok(LEFT_PAREN, "(") }},
	{regexp.MustCompile(`^\)`), func(lx *Lexer, m []string) Token { return lx.tok(RIGHT_PAREN, ")") }},
	{regexp.MustCompile(`^,`), func(lx *Lexer, m []string) Token { return lx.tok(COMMA, ",") }},
	{regexp.MustCompile(`^\.`), func(lx *Lexer, m []string) Token { return lx.tok(DOT, ".") }},
	{regexp.MustCompile(`^[ \t]+`), func(lx *Lexer, m []string) Token {
		return Token{Type: -1, Value: m[0]} // whitespace sentinel, filtered below
	}},
	{regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_\-]*`), func(lx *Lexer, m []string) Token {
		return lx.identifierOrKeywordOrCommand(m[0])
	}},
}

func decodeEscapes(s string) string {
	replacer := strings.NewReplacer(`\"`, `"`, `\'`, "'", `\\`, `\`, `\n`, "\n", `\t`, "\t")
	return replacer.Replace(s)
}

// Lexer tokenizes script text, tracking an indentation-column stack (like
// Python's own tokenizer) to emit INDENT/DEDENT tokens.
type Lexer struct {
	line, column int
	indentStack  []int
	allTokens    []Token // includes whitespace, for command-vs-identifier context
}

// NewLexer constructs a Lexer ready to tokenize text.
func NewLexer() *Lexer {
	return &Lexer{line: 1, column: 1, indentStack: []int{0}}
}

func (lx *Lexer) tok(t TokenType, value string) Token {
	return Token{Type: t, Value: value, Line: lx.line, Column: lx.column}
}

func (lx *Lexer) identifierOrKeywordOrCommand(word string) Token {
	if Keywords[word] {
		return lx.tok(KEYWORD, word)
	}
	if lx.precededByLineStart() {
		return lx.tok(COMMAND, word)
	}
	return lx.tok(IDENTIFIER, word)
}

// precededByLineStart reports whether the token stream so far ends at the
// start of a logical line: nothing yet, or the last significant token was
// NEWLINE/INDENT/DEDENT (skipping over whitespace).
func (lx *Lexer) precededByLineStart() bool {
	n := len(lx.allTokens)
	if n == 0 {
		return true
	}
	last := lx.allTokens[n-1]
	if last.Type == -1 { // whitespace
		if n < 2 {
			return true
		}
		last = lx.allTokens[n-2]
	}
	return last.Type == NEWLINE || last.Type == INDENT || last.Type == DEDENT
}

// Tokenize converts text into the full token stream, including a trailing
// EOF token.
func (lx *Lexer) Tokenize(text string) ([]Token, error) {
	var result []Token
	lines := splitKeepEnds(text)

	for _, line := range lines {
		trimmed := strings.TrimRight(line, "\n")
		if strings.TrimSpace(trimmed) == "" {
			lx.line++
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(trimmed), "#") {
			result = append(result, Token{Type: COMMENT, Value: strings.TrimSpace(trimmed), Line: lx.line, Column: 1})
			lx.line++
			continue
		}

		indentTokens, err := lx.processIndentation(trimmed)
		if err != nil {
			return nil, err
		}
		result = append(result, indentTokens...)
		for _, it := range indentTokens {
			lx.allTokens = append(lx.allTokens, it)
		}

		pos := len(trimmed) - len(strings.TrimLeft(trimmed, " \t"))
		lx.column = pos + 1
		rest := trimmed

		for pos < len(rest) {
			if rest[pos] == '#' {
				result = append(result, Token{Type: COMMENT, Value: rest[pos:], Line: lx.line, Column: lx.column})
				break
			}
			matched := false
			for _, p := range patterns {
				loc := p.re.FindStringSubmatchIndex(rest[pos:])
				if loc == nil {
					continue
				}
				groups := submatches(rest[pos:], loc)
				token := p.make(lx, groups)
				advance := loc[1]
				lx.allTokens = append(lx.allTokens, token)
				if token.Type != -1 {
					result = append(result, token)
				}
				pos += advance
				lx.column += advance
				matched = true
				break
			}
			if !matched {
				return nil, fmt.Errorf("invalid syntax at line %d, column %d: %q", lx.line, lx.column, rest[pos])
			}
		}

		newlineTok := Token{Type: NEWLINE, Value: "\n", Line: lx.line, Column: lx.column}
		result = append(result, newlineTok)
		lx.allTokens = append(lx.allTokens, newlineTok)
		lx.line++
		lx.column = 1
	}

	for len(lx.indentStack) > 1 {
		lx.indentStack = lx.indentStack[:len(lx.indentStack)-1]
		result = append(result, Token{Type: DEDENT, Line: lx.line, Column: 1})
	}
	result = append(result, Token{Type: EOF, Line: lx.line, Column: 1})
	return result, nil
}

func submatches(s string, loc []int) []string {
	out := make([]string, len(loc)/2)
	for i := range out {
		start, end := loc[2*i], loc[2*i+1]
		if start < 0 {
			out[i] = ""
			continue
		}
		out[i] = s[start:end]
	}
	return out
}

func (lx *Lexer) processIndentation(line string) ([]Token, error) {
	indentSize := len(line) - len(strings.TrimLeft(line, " \t"))
	current := lx.indentStack[len(lx.indentStack)-1]

	if indentSize > current {
		lx.indentStack = append(lx.indentStack, indentSize)
		return []Token{{Type: INDENT, Value: strings.Repeat(" ", indentSize), Line: lx.line, Column: 1}}, nil
	}
	if indentSize < current {
		var toks []Token
		for indentSize < lx.indentStack[len(lx.indentStack)-1] {
			lx.indentStack = lx.indentStack[:len(lx.indentStack)-1]
			toks = append(toks, Token{Type: DEDENT, Line: lx.line, Column: 1})
			if indentSize > lx.indentStack[len(lx.indentStack)-1] {
				return nil, fmt.Errorf("invalid dedent at line %d", lx.line)
			}
		}
		return toks, nil
	}
	return nil, nil
}

// splitKeepEnds splits text into lines, each retaining its trailing "\n"
// (the last line keeps none if the input doesn't end with one).
func splitKeepEnds(text string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}
