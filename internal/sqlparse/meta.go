package sqlparse

// parseShowTables accepts SHOW TABLES or the psql-style \dt / \d
// shorthand.
func (p *Parser) parseShowTables() (Statement, error) {
	switch {
	case p.matchKeywords("SHOW", "TABLES"):
	case p.matchKeywords(`\dt`):
	case p.matchKeywords(`\d`):
	default:
		return nil, p.errorf("expected SHOW TABLES")
	}
	return ShowTables{}, nil
}

func (p *Parser) parseShowUsers() (Statement, error) {
	switch {
	case p.matchKeywords("SHOW", "USERS"):
	case p.matchKeywords(`\du`):
	default:
		return nil, p.errorf("expected SHOW USERS")
	}
	return ShowUsers{}, nil
}

func (p *Parser) parseShowDatabases() (Statement, error) {
	switch {
	case p.matchKeywords("SHOW", "DATABASES"):
	case p.matchKeywords(`\l`):
	default:
		return nil, p.errorf("expected SHOW DATABASES")
	}
	return ShowDatabases{}, nil
}

// parseVacuum parses VACUUM [table]; an omitted table name means every
// table in the current database.
func (p *Parser) parseVacuum() (Statement, error) {
	if err := p.expectKeywords("VACUUM"); err != nil {
		return nil, err
	}
	v := Vacuum{}
	if p.peek().Kind == KindIdent {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		v.Table = name
	}
	return v, nil
}

// parseExplain parses EXPLAIN <select statement>. Only SELECT can be
// explained, so only that branch of parseStatement is invoked
// recursively here.
func (p *Parser) parseExplain() (Statement, error) {
	if err := p.expectKeywords("EXPLAIN"); err != nil {
		return nil, err
	}
	if !p.peekKeywords("SELECT") {
		return nil, p.errorf("EXPLAIN only supports SELECT statements")
	}
	inner, err := p.parseSelect()
	if err != nil {
		return nil, err
	}
	return Explain{Statement: inner}, nil
}
