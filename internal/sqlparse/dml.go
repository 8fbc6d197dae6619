package sqlparse

import "postgrustql/internal/types"

// parseInsert parses INSERT INTO table [(col, ...)] VALUES (v, ...).
func (p *Parser) parseInsert() (Statement, error) {
	if err := p.expectKeywords("INSERT", "INTO"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	var columns []string
	if p.matchSymbol("(") {
		for {
			col, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			columns = append(columns, col)
			if !p.matchSymbol(",") {
				break
			}
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
	}

	if err := p.expectKeywords("VALUES"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	var values []types.Value
	for {
		v, err := p.parseValueLiteral()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		if !p.matchSymbol(",") {
			break
		}
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}

	return Insert{Table: table, Columns: columns, Values: values}, nil
}

// parseUpdate parses UPDATE table SET col = v [, col = v]* [WHERE cond].
func (p *Parser) parseUpdate() (Statement, error) {
	if err := p.expectKeywords("UPDATE"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeywords("SET"); err != nil {
		return nil, err
	}

	var assignments []Assignment
	for {
		col, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol("="); err != nil {
			return nil, err
		}
		v, err := p.parseValueLiteral()
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, Assignment{Column: col, Value: v})
		if !p.matchSymbol(",") {
			break
		}
	}

	upd := Update{Table: table, Assignments: assignments}
	if p.matchKeywords("WHERE") {
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		upd.Filter = cond
	}
	return upd, nil
}

// parseDelete parses DELETE FROM table [WHERE cond].
func (p *Parser) parseDelete() (Statement, error) {
	if err := p.expectKeywords("DELETE", "FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	del := Delete{From: table}
	if p.matchKeywords("WHERE") {
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		del.Filter = cond
	}
	return del, nil
}
