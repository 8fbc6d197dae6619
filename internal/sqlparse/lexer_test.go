package sqlparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexBasicTokens(t *testing.T) {
	toks, err := Lex(`SELECT * FROM t WHERE a != 1`)
	require.NoError(t, err)
	var kinds []Kind
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}
	assert.Contains(t, kinds, KindSymbol)
	assert.Equal(t, KindEOF, kinds[len(kinds)-1])
}

func TestLexEscapedStringLiteral(t *testing.T) {
	toks, err := Lex(`'it''s fine'`)
	require.NoError(t, err)
	require.Equal(t, KindString, toks[0].Kind)
	assert.Equal(t, "it's fine", toks[0].Text)
}

func TestLexUnterminatedStringIsError(t *testing.T) {
	_, err := Lex(`'unterminated`)
	require.Error(t, err)
}

func TestLexLineComment(t *testing.T) {
	toks, err := Lex("SELECT 1 -- a trailing comment\n")
	require.NoError(t, err)
	assert.Equal(t, KindIdent, toks[0].Kind)
	assert.Equal(t, KindNumber, toks[1].Kind)
	assert.Equal(t, KindEOF, toks[2].Kind)
}

func TestLexPsqlMetaCommand(t *testing.T) {
	toks, err := Lex(`\dt`)
	require.NoError(t, err)
	assert.Equal(t, KindIdent, toks[0].Kind)
	assert.Equal(t, `\dt`, toks[0].Text)
}

func TestLexUnexpectedCharacter(t *testing.T) {
	_, err := Lex(`SELECT @`)
	require.Error(t, err)
}
