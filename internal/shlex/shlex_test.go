package shlex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitBasic(t *testing.T) {
	tokens, err := Split("connect web1 -timeout 30")
	require.NoError(t, err)
	assert.Equal(t, []string{"connect", "web1", "-timeout", "30"}, tokens)
}

func TestSplitQuoted(t *testing.T) {
	tokens, err := Split(`add-system "my system" -tags 'prod,web'`)
	require.NoError(t, err)
	assert.Equal(t, []string{"add-system", "my system", "-tags", "prod,web"}, tokens)
}

func TestSplitUnclosedQuoteFails(t *testing.T) {
	_, err := Split(`connect "unterminated`)
	assert.Error(t, err)
}

func TestSplitEmpty(t *testing.T) {
	tokens, err := Split("")
	require.NoError(t, err)
	assert.Empty(t, tokens)
}
