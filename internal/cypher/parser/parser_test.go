package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleMatch(t *testing.T) {
	q, err := Parse(`MATCH (a)-[r:knows]->(b) RETURN a, r, b`)
	require.NoError(t, err)

	require.Len(t, q.Matches, 1)
	require.Len(t, q.Matches[0].Paths, 1)

	path := q.Matches[0].Paths[0]
	require.Len(t, path.Nodes, 2)
	require.Len(t, path.Rels, 1)

	assert.Equal(t, "a", path.Nodes[0].Var)
	assert.Equal(t, "b", path.Nodes[1].Var)
	assert.Equal(t, "r", path.Rels[0].Var)
	assert.Equal(t, "knows", path.Rels[0].RelType)
	assert.Equal(t, DirectionOut, path.Rels[0].Direction)

	require.Len(t, q.Items, 3)
	assert.Equal(t, "a", q.Items[0].Text)
	assert.Equal(t, "r", q.Items[1].Text)
	assert.Equal(t, "b", q.Items[2].Text)
}

func TestParseDirections(t *testing.T) {
	tests := []struct {
		query string
		want  Direction
	}{
		{`MATCH (a)-[r]->(b) RETURN r`, DirectionOut},
		{`MATCH (a)<-[r]-(b) RETURN r`, DirectionIn},
		{`MATCH (a)-[r]-(b) RETURN r`, DirectionBoth},
	}
	for _, tc := range tests {
		q, err := Parse(tc.query)
		require.NoError(t, err, tc.query)
		assert.Equal(t, tc.want, q.Matches[0].Paths[0].Rels[0].Direction, tc.query)
	}
}

func TestParseLabelAndProperties(t *testing.T) {
	q, err := Parse(`MATCH (p:Person {name: "Alice", age: 30}) RETURN p`)
	require.NoError(t, err)

	node := q.Matches[0].Paths[0].Nodes[0]
	assert.Equal(t, "p", node.Var)
	assert.Equal(t, "Person", node.Label)
	require.Len(t, node.Properties, 2)

	assert.Equal(t, "name", node.Properties[0].Key)
	str, ok := node.Properties[0].Value.(*StringLit)
	require.True(t, ok)
	assert.Equal(t, "Alice", str.Value)

	assert.Equal(t, "age", node.Properties[1].Key)
	num, ok := node.Properties[1].Value.(*NumberLit)
	require.True(t, ok)
	assert.Equal(t, 30.0, num.Value)
}

func TestParseLongPathAndMultipleMatches(t *testing.T) {
	q, err := Parse(`MATCH (a)-[:x]->(b)-[:y]->(c) MATCH (d) RETURN a, d`)
	require.NoError(t, err)

	require.Len(t, q.Matches, 2)
	first := q.Matches[0].Paths[0]
	assert.Len(t, first.Nodes, 3)
	assert.Len(t, first.Rels, 2)
	assert.Equal(t, "", first.Rels[0].Var)
	assert.Equal(t, "x", first.Rels[0].RelType)
}

func TestParseWhere(t *testing.T) {
	q, err := Parse(`MATCH (n) WHERE n.age >= 21 AND NOT n.name = $banned RETURN n`)
	require.NoError(t, err)
	require.NotNil(t, q.Where)

	and, ok := q.Where.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, "AND", and.Op)

	cmp, ok := and.Left.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, ">=", cmp.Op)

	prop, ok := cmp.Left.(*PropertyAccess)
	require.True(t, ok)
	assert.Equal(t, "n", prop.Var)
	assert.Equal(t, "age", prop.Key)

	not, ok := and.Right.(*UnaryExpr)
	require.True(t, ok)
	assert.Equal(t, "NOT", not.Op)

	eq, ok := not.Operand.(*BinaryExpr)
	require.True(t, ok)
	param, ok := eq.Right.(*Parameter)
	require.True(t, ok)
	assert.Equal(t, "banned", param.Name)
}

func TestParseArithmeticPrecedence(t *testing.T) {
	q, err := Parse(`MATCH (n) WHERE n.a + 2 * 3 = 7 RETURN n`)
	require.NoError(t, err)

	eq := q.Where.(*BinaryExpr)
	require.Equal(t, "=", eq.Op)

	add, ok := eq.Left.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, "+", add.Op)

	mul, ok := add.Right.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, "*", mul.Op)
}

func TestParseComparisonWithNegativeNumber(t *testing.T) {
	// `< -` must lex as less-than followed by unary minus, not as the
	// start of an incoming relationship.
	q, err := Parse(`MATCH (n) WHERE n.delta < -1 RETURN n`)
	require.NoError(t, err)

	cmp := q.Where.(*BinaryExpr)
	assert.Equal(t, "<", cmp.Op)
	neg, ok := cmp.Right.(*UnaryExpr)
	require.True(t, ok)
	assert.Equal(t, "-", neg.Op)
}

func TestParseReturnModifiers(t *testing.T) {
	q, err := Parse(`MATCH (n) RETURN DISTINCT n.name AS name SKIP 5 LIMIT 10`)
	require.NoError(t, err)

	assert.True(t, q.Distinct)
	require.Len(t, q.Items, 1)
	assert.Equal(t, "name", q.Items[0].Alias)
	assert.Equal(t, "n.name", q.Items[0].Text)
	require.NotNil(t, q.Skip)
	assert.Equal(t, 5, *q.Skip)
	require.NotNil(t, q.Limit)
	assert.Equal(t, 10, *q.Limit)
}

func TestParseFunctions(t *testing.T) {
	q, err := Parse(`MATCH (a)-[r:knows]->(b) RETURN id(a), type(r)`)
	require.NoError(t, err)

	require.Len(t, q.Items, 2)
	idCall, ok := q.Items[0].Expr.(*FuncCall)
	require.True(t, ok)
	assert.Equal(t, "id", idCall.Name)
	assert.Equal(t, "id(a)", q.Items[0].Text)

	typeCall, ok := q.Items[1].Expr.(*FuncCall)
	require.True(t, ok)
	assert.Equal(t, "type", typeCall.Name)
}

func TestParseRejectsUnsupportedClauses(t *testing.T) {
	queries := []string{
		`CREATE (n)`,
		`MATCH (n) DELETE n`,
		`MATCH (n) SET n.x = 1`,
		`MERGE (n)`,
		`MATCH (n) RETURN n ORDER BY n`,
		`MATCH (n) RETURN n UNION MATCH (m) RETURN m`,
		`MATCH (a)-[r*]->(b) RETURN a`,
	}
	for _, query := range queries {
		_, err := Parse(query)
		assert.Error(t, err, query)
		assert.Contains(t, err.Error(), "not supported", query)
	}
}

func TestParseErrorsCarryPosition(t *testing.T) {
	_, err := Parse("MATCH (n)\nRETURN n WHERE")
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 2, perr.Line)
	assert.Equal(t, 10, perr.Column)
}

func TestParseSyntaxErrors(t *testing.T) {
	queries := []string{
		``,
		`RETURN 1`,
		`MATCH n RETURN n`,
		`MATCH (n RETURN n`,
		`MATCH (n) RETURN`,
		`MATCH (n) WHERE RETURN n`,
		`MATCH (n) RETURN n LIMIT x`,
		`MATCH (n) RETURN n.`,
		`MATCH (a)-[r]->(b RETURN a`,
		`MATCH (n {name}) RETURN n`,
		`MATCH (n) WHERE n.name = 'unterminated RETURN n`,
	}
	for _, query := range queries {
		_, err := Parse(query)
		assert.Error(t, err, "query %q should not parse", query)
	}
}
