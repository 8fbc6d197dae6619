package sqlparse

import (
	"strings"

	"postgrustql/internal/types"
)

// Condition is the tagged union over WHERE-clause predicates. AND binds
// tighter than OR.
type Condition interface{ isCondition() }

type Equals struct {
	Column string
	Value  types.Value
}

type NotEquals struct {
	Column string
	Value  types.Value
}

type GreaterThan struct {
	Column string
	Value  types.Value
}

type LessThan struct {
	Column string
	Value  types.Value
}

type And struct{ Left, Right Condition }
type Or struct{ Left, Right Condition }

func (Equals) isCondition()      {}
func (NotEquals) isCondition()   {}
func (GreaterThan) isCondition() {}
func (LessThan) isCondition()    {}
func (And) isCondition()         {}
func (Or) isCondition()          {}

// parseCondition parses an OR-level expression.
func (p *Parser) parseCondition() (Condition, error) {
	left, err := p.parseAndCondition()
	if err != nil {
		return nil, err
	}
	for p.matchKeywords("OR") {
		right, err := p.parseAndCondition()
		if err != nil {
			return nil, err
		}
		left = Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAndCondition() (Condition, error) {
	left, err := p.parsePrimaryCondition()
	if err != nil {
		return nil, err
	}
	for p.matchKeywords("AND") {
		right, err := p.parsePrimaryCondition()
		if err != nil {
			return nil, err
		}
		left = And{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parsePrimaryCondition() (Condition, error) {
	if p.matchSymbol("(") {
		inner, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return inner, nil
	}

	column, err := p.parseColumnRef()
	if err != nil {
		return nil, err
	}

	switch {
	case p.matchSymbol("="):
		v, err := p.parseValueLiteral()
		if err != nil {
			return nil, err
		}
		return Equals{Column: column, Value: v}, nil
	case p.matchSymbol("!="):
		v, err := p.parseValueLiteral()
		if err != nil {
			return nil, err
		}
		return NotEquals{Column: column, Value: v}, nil
	case p.matchSymbol(">"):
		v, err := p.parseValueLiteral()
		if err != nil {
			return nil, err
		}
		return GreaterThan{Column: column, Value: v}, nil
	case p.matchSymbol("<"):
		v, err := p.parseValueLiteral()
		if err != nil {
			return nil, err
		}
		return LessThan{Column: column, Value: v}, nil
	default:
		return nil, p.errorf("expected a comparison operator")
	}
}

// parseSelect parses SELECT ... FROM ... [JOIN ...]* [WHERE ...]
// [GROUP BY ...] [ORDER BY ...] [LIMIT n].
func (p *Parser) parseSelect() (Statement, error) {
	if err := p.expectKeywords("SELECT"); err != nil {
		return nil, err
	}
	cols, err := p.parseSelectColumns()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeywords("FROM"); err != nil {
		return nil, err
	}
	from, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	alias, err := p.parseOptionalAlias()
	if err != nil {
		return nil, err
	}

	sel := Select{Columns: cols, From: from, FromAlias: alias}

	for {
		join, ok, err := p.parseJoin()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		sel.Joins = append(sel.Joins, join)
	}

	if p.matchKeywords("WHERE") {
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		sel.Filter = cond
	}

	if p.matchKeywords("GROUP", "BY") {
		cols, err := p.parseIdentList()
		if err != nil {
			return nil, err
		}
		sel.GroupBy = cols
	}

	if p.matchKeywords("ORDER", "BY") {
		col, err := p.parseColumnRef()
		if err != nil {
			return nil, err
		}
		order := Asc
		if p.matchKeywords("DESC") {
			order = Desc
		} else {
			p.matchKeywords("ASC")
		}
		sel.OrderBy = &OrderBy{Column: col, Order: order}
	}

	if p.matchKeywords("LIMIT") {
		n, err := p.expectNumber()
		if err != nil {
			return nil, err
		}
		sel.Limit = &n
	}

	return sel, nil
}

func (p *Parser) parseIdentList() ([]string, error) {
	var out []string
	first, err := p.parseColumnRef()
	if err != nil {
		return nil, err
	}
	out = append(out, first)
	for p.matchSymbol(",") {
		next, err := p.parseColumnRef()
		if err != nil {
			return nil, err
		}
		out = append(out, next)
	}
	return out, nil
}

func (p *Parser) parseSelectColumns() ([]SelectColumn, error) {
	var cols []SelectColumn
	for {
		col, err := p.parseSelectColumn()
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
		if !p.matchSymbol(",") {
			break
		}
	}
	return cols, nil
}

var aggregateNames = map[string]AggregateKind{
	"COUNT": AggCount,
	"SUM":   AggSum,
	"AVG":   AggAvg,
	"MIN":   AggMin,
	"MAX":   AggMax,
}

func (p *Parser) parseSelectColumn() (SelectColumn, error) {
	if p.matchSymbol("*") {
		return SelectColumn{Kind: ColRegular, Column: "*"}, nil
	}

	t := p.peek()
	if t.Kind == KindIdent {
		if kind, ok := aggregateNames[strings.ToUpper(t.Text)]; ok && p.peekAt(1).Kind == KindSymbol && p.peekAt(1).Text == "(" {
			p.advance()
			p.advance()
			col := "*"
			if !p.matchSymbol("*") {
				var err error
				col, err = p.parseColumnRef()
				if err != nil {
					return SelectColumn{}, err
				}
			}
			if err := p.expectSymbol(")"); err != nil {
				return SelectColumn{}, err
			}
			return SelectColumn{Kind: ColAggregate, Aggregate: Aggregate{Kind: kind, Column: col}}, nil
		}
	}

	col, err := p.parseColumnRef()
	if err != nil {
		return SelectColumn{}, err
	}
	return SelectColumn{Kind: ColRegular, Column: col}, nil
}

// parseJoin parses one optional [INNER|LEFT|RIGHT] JOIN table ON
// left.col = right.col clause, defaulting to INNER when the kind keyword
// is omitted.
func (p *Parser) parseJoin() (Join, bool, error) {
	kind := JoinInner
	switch {
	case p.matchKeywords("INNER", "JOIN"):
	case p.matchKeywords("LEFT", "JOIN"):
		kind = JoinLeft
	case p.matchKeywords("LEFT", "OUTER", "JOIN"):
		kind = JoinLeft
	case p.matchKeywords("RIGHT", "JOIN"):
		kind = JoinRight
	case p.matchKeywords("RIGHT", "OUTER", "JOIN"):
		kind = JoinRight
	case p.matchKeywords("JOIN"):
	default:
		return Join{}, false, nil
	}

	table, err := p.expectIdent()
	if err != nil {
		return Join{}, false, err
	}
	alias, err := p.parseOptionalAlias()
	if err != nil {
		return Join{}, false, err
	}
	if err := p.expectKeywords("ON"); err != nil {
		return Join{}, false, err
	}
	left, err := p.parseColumnRef()
	if err != nil {
		return Join{}, false, err
	}
	if err := p.expectSymbol("="); err != nil {
		return Join{}, false, err
	}
	right, err := p.parseColumnRef()
	if err != nil {
		return Join{}, false, err
	}
	return Join{Kind: kind, Table: table, Alias: alias, OnLeft: left, OnRight: right}, true, nil
}

// reservedAfterTable lists the keywords that may legally follow a table
// reference, so a bare identifier in that position can be told apart
// from a table alias.
var reservedAfterTable = map[string]bool{
	"WHERE": true, "GROUP": true, "ORDER": true, "LIMIT": true,
	"JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true,
	"OUTER": true, "ON": true,
}

// parseOptionalAlias consumes [AS] alias after a table reference, if one
// is present.
func (p *Parser) parseOptionalAlias() (string, error) {
	if p.matchKeywords("AS") {
		return p.expectIdent()
	}
	t := p.peek()
	if t.Kind == KindIdent && !strings.HasPrefix(t.Text, `\`) && !reservedAfterTable[strings.ToUpper(t.Text)] {
		p.advance()
		return t.Text, nil
	}
	return "", nil
}
