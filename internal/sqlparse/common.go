package sqlparse

import (
	"strconv"
	"strings"

	"postgrustql/internal/catalog"
	"postgrustql/internal/types"
)

// parseColumnRef accepts a bare column name or a "table.column" qualified
// reference and returns it as written (qualification is resolved later by
// the executor, not here).
func (p *Parser) parseColumnRef() (string, error) {
	first, err := p.expectIdent()
	if err != nil {
		return "", err
	}
	if p.matchSymbol(".") {
		second, err := p.expectIdent()
		if err != nil {
			return "", err
		}
		return first + "." + second, nil
	}
	return first, nil
}

// parseValueLiteral consumes one literal token (number, string, or the
// bare words TRUE/FALSE/NULL) and returns it as a types.Value.
func (p *Parser) parseValueLiteral() (types.Value, error) {
	t := p.peek()
	switch t.Kind {
	case KindString:
		p.advance()
		return types.ParseLiteral(t.Text, true), nil
	case KindNumber:
		p.advance()
		return types.ParseLiteral(t.Text, false), nil
	case KindSymbol:
		if t.Text == "-" {
			p.advance()
			n := p.peek()
			if n.Kind != KindNumber {
				return types.Value{}, p.errorf("expected number after '-'")
			}
			p.advance()
			return types.ParseLiteral("-"+n.Text, false), nil
		}
	case KindIdent:
		switch strings.ToUpper(t.Text) {
		case "TRUE", "FALSE", "NULL":
			p.advance()
			return types.ParseLiteral(t.Text, false), nil
		}
	}
	return types.Value{}, p.errorf("expected a literal value")
}

// parseDataType recognizes the fixed set of supported column types:
// SMALLINT, INTEGER, REAL, DECIMAL(p,s), SERIAL, BIGSERIAL, TEXT,
// CHAR(n), BOOLEAN, DATE, TIMESTAMP, TIMESTAMPTZ, UUID, JSON, BYTEA, and
// a named enum type reference.
func (p *Parser) parseDataType() (types.DataType, error) {
	name, err := p.expectIdent()
	if err != nil {
		return types.DataType{}, err
	}
	switch strings.ToUpper(name) {
	case "SMALLINT":
		return types.SmallInt(), nil
	case "INTEGER", "INT":
		return types.Integer(), nil
	case "REAL", "FLOAT":
		return types.Real(), nil
	case "SERIAL":
		return types.Serial(), nil
	case "BIGSERIAL":
		return types.BigSerial(), nil
	case "TEXT":
		return types.Text(), nil
	case "BOOLEAN", "BOOL":
		return types.Boolean(), nil
	case "DATE":
		return types.Date(), nil
	case "TIMESTAMPTZ":
		return types.TimestampTZ(), nil
	case "TIMESTAMP":
		return types.Timestamp(), nil
	case "UUID":
		return types.UUID(), nil
	case "JSON":
		return types.JSON(), nil
	case "BYTEA":
		return types.Bytea(), nil
	case "DECIMAL", "NUMERIC":
		if err := p.expectSymbol("("); err != nil {
			return types.DataType{}, err
		}
		prec, err := p.expectNumber()
		if err != nil {
			return types.DataType{}, err
		}
		if err := p.expectSymbol(","); err != nil {
			return types.DataType{}, err
		}
		scale, err := p.expectNumber()
		if err != nil {
			return types.DataType{}, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return types.DataType{}, err
		}
		return types.Decimal(prec, scale), nil
	case "CHAR", "VARCHAR":
		if err := p.expectSymbol("("); err != nil {
			return types.DataType{}, err
		}
		length, err := p.expectNumber()
		if err != nil {
			return types.DataType{}, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return types.DataType{}, err
		}
		return types.Char(length), nil
	default:
		// Assumed to be a user-defined enum type name; the executor
		// resolves it against the database's registered enums.
		return types.DataType{Kind: types.KindEnum, EnumName: name}, nil
	}
}

func (p *Parser) expectNumber() (int, error) {
	t := p.peek()
	if t.Kind != KindNumber {
		return 0, p.errorf("expected a number")
	}
	p.advance()
	n, err := strconv.Atoi(t.Text)
	if err != nil {
		return 0, p.errorf("invalid number %q", t.Text)
	}
	return n, nil
}

// parseColumnDef parses one "name TYPE [constraint...]" entry inside a
// CREATE TABLE column list.
func (p *Parser) parseColumnDef() (ColumnDef, error) {
	name, err := p.expectIdent()
	if err != nil {
		return ColumnDef{}, err
	}
	dt, err := p.parseDataType()
	if err != nil {
		return ColumnDef{}, err
	}
	col := ColumnDef{Name: name, DataType: dt, Nullable: true}
	if dt.IsSerial() {
		col.Nullable = false
		col.PrimaryKey = true
	}
	for {
		switch {
		case p.matchKeywords("NOT", "NULL"):
			col.Nullable = false
		case p.matchKeywords("PRIMARY", "KEY"):
			col.PrimaryKey = true
			col.Nullable = false
		case p.matchKeywords("UNIQUE"):
			col.Unique = true
		case p.matchKeywords("REFERENCES"):
			refTable, err := p.expectIdent()
			if err != nil {
				return ColumnDef{}, err
			}
			refCol := ""
			if p.matchSymbol("(") {
				refCol, err = p.expectIdent()
				if err != nil {
					return ColumnDef{}, err
				}
				if err := p.expectSymbol(")"); err != nil {
					return ColumnDef{}, err
				}
			}
			col.ForeignKey = &catalog.ForeignKey{ReferencedTable: refTable, ReferencedColumn: refCol}
		default:
			return col, nil
		}
	}
}
