package sqlparse

import (
	"strings"

	"postgrustql/internal/catalog"
)

// parseCreateTable parses CREATE TABLE name (col def [, col def]*).
func (p *Parser) parseCreateTable() (Statement, error) {
	if err := p.expectKeywords("CREATE", "TABLE"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	var cols []ColumnDef
	for {
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
		if !p.matchSymbol(",") {
			break
		}
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return CreateTable{Name: name, Columns: cols}, nil
}

func (p *Parser) parseDropTable() (Statement, error) {
	if err := p.expectKeywords("DROP", "TABLE"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return DropTable{Name: name}, nil
}

// parseAlterTable parses the five supported ALTER TABLE operations:
// ADD COLUMN, DROP COLUMN, RENAME COLUMN ... TO ..., RENAME TO, and
// OWNER TO.
func (p *Parser) parseAlterTable() (Statement, error) {
	if err := p.expectKeywords("ALTER", "TABLE"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	var op AlterTableOp
	switch {
	case p.matchKeywords("ADD", "COLUMN"), p.matchKeywords("ADD"):
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		op = AddColumn{Column: col}
	case p.matchKeywords("DROP", "COLUMN"):
		colName, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		op = DropColumnOp{Name: colName}
	case p.matchKeywords("RENAME", "COLUMN"):
		oldName, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeywords("TO"); err != nil {
			return nil, err
		}
		newName, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		op = RenameColumn{OldName: oldName, NewName: newName}
	case p.matchKeywords("RENAME", "TO"):
		newName, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		op = RenameTable{NewName: newName}
	case p.matchKeywords("OWNER", "TO"):
		newOwner, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		op = OwnerTo{NewOwner: newOwner}
	default:
		return nil, p.errorf("unsupported ALTER TABLE operation")
	}

	return AlterTable{Name: name, Operation: op}, nil
}

func (p *Parser) parseCreateDatabase() (Statement, error) {
	if err := p.expectKeywords("CREATE", "DATABASE"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	cd := CreateDatabase{Name: name}
	if p.matchKeywords("OWNER") {
		owner, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		cd.Owner = owner
	}
	return cd, nil
}

func (p *Parser) parseDropDatabase() (Statement, error) {
	if err := p.expectKeywords("DROP", "DATABASE"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return DropDatabase{Name: name}, nil
}

// parsePassword accepts [WITH|SET] PASSWORD 'literal'.
func (p *Parser) parsePassword() (string, error) {
	if !p.matchKeywords("WITH") {
		p.matchKeywords("SET")
	}
	if err := p.expectKeywords("PASSWORD"); err != nil {
		return "", err
	}
	return p.expectString()
}

func (p *Parser) parseCreateUser() (Statement, error) {
	if err := p.expectKeywords("CREATE", "USER"); err != nil {
		return nil, err
	}
	username, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	pwd, err := p.parsePassword()
	if err != nil {
		return nil, err
	}
	cu := CreateUser{Username: username, Password: pwd}
	if p.matchKeywords("SUPERUSER") {
		cu.IsSuperuser = true
	}
	return cu, nil
}

func (p *Parser) parseDropUser() (Statement, error) {
	if err := p.expectKeywords("DROP", "USER"); err != nil {
		return nil, err
	}
	username, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return DropUser{Username: username}, nil
}

func (p *Parser) parseAlterUser() (Statement, error) {
	if err := p.expectKeywords("ALTER", "USER"); err != nil {
		return nil, err
	}
	username, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	pwd, err := p.parsePassword()
	if err != nil {
		return nil, err
	}
	return AlterUser{Username: username, Password: pwd}, nil
}

func (p *Parser) parseCreateRole() (Statement, error) {
	if err := p.expectKeywords("CREATE", "ROLE"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	cr := CreateRole{RoleName: name}
	if p.matchKeywords("SUPERUSER") {
		cr.IsSuperuser = true
	}
	return cr, nil
}

func (p *Parser) parseDropRole() (Statement, error) {
	if err := p.expectKeywords("DROP", "ROLE"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return DropRole{RoleName: name}, nil
}

// parseGrant disambiguates role grants ("GRANT role TO user") from
// privilege grants ("GRANT privilege ON DATABASE db TO user") by
// looking one token past the first identifier.
func (p *Parser) parseGrant() (Statement, error) {
	if err := p.expectKeywords("GRANT"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if p.matchKeywords("TO") {
		user, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return GrantRole{RoleName: name, ToUser: user}, nil
	}
	if err := p.expectKeywords("ON", "DATABASE"); err != nil {
		return nil, err
	}
	db, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeywords("TO"); err != nil {
		return nil, err
	}
	user, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return Grant{Privilege: catalog.Privilege(strings.ToUpper(name)), OnDatabase: db, ToUser: user}, nil
}

func (p *Parser) parseRevoke() (Statement, error) {
	if err := p.expectKeywords("REVOKE"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if p.matchKeywords("FROM") {
		user, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return RevokeRole{RoleName: name, FromUser: user}, nil
	}
	if err := p.expectKeywords("ON", "DATABASE"); err != nil {
		return nil, err
	}
	db, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeywords("FROM"); err != nil {
		return nil, err
	}
	user, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return Revoke{Privilege: catalog.Privilege(strings.ToUpper(name)), OnDatabase: db, FromUser: user}, nil
}

// parseCreateType parses CREATE TYPE name AS ENUM ('a', 'b', ...).
func (p *Parser) parseCreateType() (Statement, error) {
	if err := p.expectKeywords("CREATE", "TYPE"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeywords("AS", "ENUM"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	var values []string
	for {
		v, err := p.expectString()
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
	return CreateType{Name: name, Values: values}, nil
}

func (p *Parser) parseDropType() (Statement, error) {
	if err := p.expectKeywords("DROP", "TYPE"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return DropType{Name: name}, nil
}

// parseCreateIndex parses CREATE [UNIQUE] INDEX name ON table (col, ...)
// [USING (BTREE|HASH)].
func (p *Parser) parseCreateIndex() (Statement, error) {
	if err := p.expectKeywords("CREATE"); err != nil {
		return nil, err
	}
	unique := p.matchKeywords("UNIQUE")
	if err := p.expectKeywords("INDEX"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeywords("ON"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	var cols []string
	for {
		col, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
		if !p.matchSymbol(",") {
			break
		}
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}

	kind := catalog.IndexBTree
	if p.matchKeywords("USING") {
		kindName, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		switch strings.ToUpper(kindName) {
		case "HASH":
			kind = catalog.IndexHash
		case "BTREE":
			kind = catalog.IndexBTree
		default:
			return nil, p.errorf("unknown index kind %q", kindName)
		}
	}

	return CreateIndex{Name: name, Table: table, Columns: cols, Unique: unique, Kind: kind}, nil
}

func (p *Parser) parseDropIndex() (Statement, error) {
	if err := p.expectKeywords("DROP", "INDEX"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return DropIndex{Name: name}, nil
}

// parseCreateView parses CREATE VIEW name AS <select statement>. The
// query text is kept verbatim (reconstructed from its tokens) rather
// than as a parsed Select, since the executor re-parses and re-plans a
// view's query on every reference.
func (p *Parser) parseCreateView() (Statement, error) {
	if err := p.expectKeywords("CREATE", "VIEW"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeywords("AS"); err != nil {
		return nil, err
	}
	query := p.consumeRemainder()
	if query == "" {
		return nil, p.errorf("expected a query after AS")
	}
	return CreateView{Name: name, Query: query}, nil
}

func (p *Parser) parseDropView() (Statement, error) {
	if err := p.expectKeywords("DROP", "VIEW"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return DropView{Name: name}, nil
}

// consumeRemainder joins every remaining token's literal text (up to but
// not including a trailing ';' or EOF) with single spaces, advancing the
// parser to that point.
func (p *Parser) consumeRemainder() string {
	var parts []string
	for {
		t := p.peek()
		if t.Kind == KindEOF || (t.Kind == KindSymbol && t.Text == ";") {
			break
		}
		if t.Kind == KindString {
			parts = append(parts, "'"+strings.ReplaceAll(t.Text, "'", "''")+"'")
		} else {
			parts = append(parts, t.Text)
		}
		p.advance()
	}
	return strings.Join(parts, " ")
}
