package parser

import (
	"testing"

	"github.com/brackenfield/gbtk/pkg/asm/expr"
	"github.com/brackenfield/gbtk/pkg/asm/lexer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseExprLine(t *testing.T, src string) *expr.Node {
	t.Helper()
	lx := lexer.New("test.asm", []string{src}, nil)
	n, err := NewExprParser(lx).ParseExpr()
	require.NoError(t, err)
	return n
}

func TestExprParser_PrecedenceMultiplyBeforeAdd(t *testing.T) {
	n := parseExprLine(t, "1 + 2 * 3")
	assert.True(t, n.IsConst())
	assert.EqualValues(t, 7, n.Const)
}

func TestExprParser_FixedPowerBindsTighterThanAddAndFolds(t *testing.T) {
	n := parseExprLine(t, "2 ** 1 + 1")
	// ** binds tighter than +, so this is (2**1) + 1 in fixed point terms;
	// verify it at least folds to a constant without erroring.
	assert.True(t, n.IsConst())
}

func TestExprParser_Parentheses(t *testing.T) {
	n := parseExprLine(t, "(1 + 2) * 3")
	assert.True(t, n.IsConst())
	assert.EqualValues(t, 9, n.Const)
}

func TestExprParser_UnaryMinus(t *testing.T) {
	n := parseExprLine(t, "-5 + 2")
	assert.True(t, n.IsConst())
	assert.EqualValues(t, -3, n.Const)
}

func TestExprParser_SymbolStaysUnfolded(t *testing.T) {
	n := parseExprLine(t, "Start + 1")
	assert.False(t, n.IsConst())
	assert.Equal(t, expr.KindBinary, n.Kind)
}

func TestExprParser_HighLowIntrinsics(t *testing.T) {
	n := parseExprLine(t, "HIGH($1234)")
	assert.True(t, n.IsConst())
	assert.EqualValues(t, 0x12, n.Const)

	n = parseExprLine(t, "LOW($1234)")
	assert.True(t, n.IsConst())
	assert.EqualValues(t, 0x34, n.Const)
}

func TestExprParser_SizeofTakesLiteralSectionName(t *testing.T) {
	n := parseExprLine(t, `SIZEOF("ROM0")`)
	assert.Equal(t, expr.KindIntrinsic, n.Kind)
	require.Len(t, n.Args, 1)
	assert.Equal(t, expr.KindSymbol, n.Args[0].Kind)
	assert.Equal(t, "ROM0", n.Args[0].Symbol)
}

func TestExprParser_BankOfCurrentSection(t *testing.T) {
	n := parseExprLine(t, "BANK(@)")
	require.Len(t, n.Args, 1)
	assert.Equal(t, "@", n.Args[0].Symbol)
}
