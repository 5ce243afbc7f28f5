package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lex(t *testing.T, src string) []Token {
	t.Helper()
	tokens, err := NewLexer().Tokenize(src)
	require.NoError(t, err)
	return tokens
}

func types(tokens []Token) []TokenType {
	out := make([]TokenType, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Type
	}
	return out
}

func TestLexSimpleCommandLine(t *testing.T) {
	tokens := lex(t, "connect prod01 -port 2222\n")
	assert.Equal(t, []TokenType{COMMAND, IDENTIFIER, PARAMETER, NUMBER, NEWLINE, EOF}, types(tokens))
	assert.Equal(t, "connect", tokens[0].Value)
	assert.Equal(t, "prod01", tokens[1].Value)
	assert.Equal(t, "-port", tokens[2].Value)
	assert.Equal(t, "2222", tokens[3].Value)
}

func TestLexFirstWordIsCommandRestAreIdentifiers(t *testing.T) {
	tokens := lex(t, "echo echo echo\n")
	assert.Equal(t, []TokenType{COMMAND, IDENTIFIER, IDENTIFIER, NEWLINE, EOF}, types(tokens))
}

func TestLexIndentDedent(t *testing.T) {
	src := "foreach $h in $hosts:\n    echo $h\n    echo done\nvars\n"
	tokens := lex(t, src)
	assert.Equal(t, []TokenType{
		KEYWORD, VARIABLE, KEYWORD, VARIABLE, COLON, NEWLINE,
		INDENT, COMMAND, VARIABLE, NEWLINE,
		COMMAND, IDENTIFIER, NEWLINE,
		DEDENT, COMMAND, NEWLINE,
		EOF,
	}, types(tokens))
}

func TestLexNestedBlocksEmitOneDedentPerPop(t *testing.T) {
	src := "if $a:\n    if $b:\n        vars\nvars\n"
	tokens := lex(t, src)
	dedents := 0
	for _, tok := range tokens {
		if tok.Type == DEDENT {
			dedents++
		}
	}
	assert.Equal(t, 2, dedents)
}

func TestLexDanglingIndentClosedAtEOF(t *testing.T) {
	tokens := lex(t, "try:\n    vars")
	last := types(tokens)
	require.GreaterOrEqual(t, len(last), 2)
	assert.Equal(t, EOF, last[len(last)-1])
	assert.Equal(t, DEDENT, last[len(last)-2])
}

func TestLexMismatchedDedentFails(t *testing.T) {
	_, err := NewLexer().Tokenize("if $a:\n        vars\n    vars\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dedent")
}

func TestLexBlankAndCommentLinesDoNotAffectIndentStack(t *testing.T) {
	src := "if $a:\n    vars\n\n# comment at column zero\n    vars\n"
	tokens, err := NewLexer().Tokenize(src)
	require.NoError(t, err)
	indents, dedents := 0, 0
	for _, tok := range tokens {
		switch tok.Type {
		case INDENT:
			indents++
		case DEDENT:
			dedents++
		}
	}
	assert.Equal(t, 1, indents)
	assert.Equal(t, 1, dedents)
}

func TestLexStringsDecodeEscapes(t *testing.T) {
	tokens := lex(t, `echo "a \"quoted\" word" 'single\n'` + "\n")
	require.Equal(t, STRING, tokens[1].Type)
	assert.Equal(t, `a "quoted" word`, tokens[1].Value)
	require.Equal(t, STRING, tokens[2].Type)
	assert.Equal(t, "single\n", tokens[2].Value)
}

func TestLexNumbers(t *testing.T) {
	tokens := lex(t, "echo 42 3.14\n")
	assert.Equal(t, NUMBER, tokens[1].Type)
	assert.Equal(t, "42", tokens[1].Value)
	assert.Equal(t, NUMBER, tokens[2].Type)
	assert.Equal(t, "3.14", tokens[2].Value)
}

func TestLexVariableAndAssignment(t *testing.T) {
	tokens := lex(t, "$count = $count + 1\n")
	assert.Equal(t, []TokenType{VARIABLE, ASSIGNMENT, VARIABLE, OPERATOR, NUMBER, NEWLINE, EOF}, types(tokens))
	assert.Equal(t, "count", tokens[0].Value)
	assert.Equal(t, "+", tokens[3].Value)
}

func TestLexOperators(t *testing.T) {
	tokens := lex(t, "$ok = $a == 1 && $b != 2 || $c <= 3\n")
	var ops []string
	for _, tok := range tokens {
		if tok.Type == OPERATOR {
			ops = append(ops, tok.Value)
		}
	}
	assert.Equal(t, []string{"==", "&&", "!=", "||", "<="}, ops)
}

func TestLexKeywordsAreNotCommands(t *testing.T) {
	tokens := lex(t, "foreach $x in [1, 2]:\n    break\n")
	assert.Equal(t, KEYWORD, tokens[0].Type)
	var breakTok *Token
	for i := range tokens {
		if tokens[i].Value == "break" {
			breakTok = &tokens[i]
		}
	}
	require.NotNil(t, breakTok)
	assert.Equal(t, KEYWORD, breakTok.Type)
}

func TestLexInlineCommentTerminatesLine(t *testing.T) {
	tokens := lex(t, "vars # trailing note\n")
	assert.Equal(t, []TokenType{COMMAND, COMMENT, NEWLINE, EOF}, types(tokens))
	assert.Equal(t, "# trailing note", tokens[1].Value)
}

func TestLexPipeAndBrackets(t *testing.T) {
	tokens := lex(t, "list-systems | count\n")
	assert.Equal(t, []TokenType{COMMAND, PIPE, IDENTIFIER, NEWLINE, EOF}, types(tokens))

	tokens = lex(t, "$xs = [1, 2]\n")
	assert.Equal(t, []TokenType{VARIABLE, ASSIGNMENT, LEFT_BRACKET, NUMBER, COMMA, NUMBER, RIGHT_BRACKET, NEWLINE, EOF}, types(tokens))
}

func TestLexInvalidCharacterFails(t *testing.T) {
	_, err := NewLexer().Tokenize("echo \x01\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid syntax")
}

func TestLexLineAndColumnTracking(t *testing.T) {
	tokens := lex(t, "vars\nconnect prod01\n")
	require.Equal(t, COMMAND, tokens[0].Type)
	assert.Equal(t, 1, tokens[0].Line)
	// "connect" follows the first NEWLINE.
	require.Equal(t, COMMAND, tokens[2].Type)
	assert.Equal(t, 2, tokens[2].Line)
	assert.Equal(t, 1, tokens[2].Column)
	require.Equal(t, IDENTIFIER, tokens[3].Type)
	assert.Equal(t, 9, tokens[3].Column)
}
