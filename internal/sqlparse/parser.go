package sqlparse

import (
	"fmt"
	"strings"
)

// ParseError reports where parsing failed: a message plus
// the unparsed remainder of the input at the point parsing stopped.
type ParseError struct {
	Message   string
	Remaining string
}

func (e *ParseError) Error() string {
	if e.Remaining == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (near: %q)", e.Message, e.Remaining)
}

// Parser walks a flat token slice produced by Lex. It holds no AST state
// between calls; each parseXxx method returns a fully-formed Statement
// or an error.
type Parser struct {
	toks []Token
	pos  int
}

// Parse lexes and parses one SQL statement, tolerating a single trailing
// semicolon. Any unconsumed input after the statement is an error.
func Parse(sql string) (Statement, error) {
	toks, err := Lex(sql)
	if err != nil {
		return nil, &ParseError{Message: err.Error()}
	}
	p := &Parser{toks: toks}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	p.matchSymbol(";")
	if !p.atEOF() {
		return nil, p.errorf("unexpected trailing input")
	}
	return stmt, nil
}

func (p *Parser) parseStatement() (Statement, error) {
	switch {
	case p.peekKeywords("CREATE", "UNIQUE", "INDEX"), p.peekKeywords("CREATE", "INDEX"):
		return p.parseCreateIndex()
	case p.peekKeywords("CREATE", "TABLE"):
		return p.parseCreateTable()
	case p.peekKeywords("CREATE", "DATABASE"):
		return p.parseCreateDatabase()
	case p.peekKeywords("CREATE", "USER"):
		return p.parseCreateUser()
	case p.peekKeywords("CREATE", "ROLE"):
		return p.parseCreateRole()
	case p.peekKeywords("CREATE", "TYPE"):
		return p.parseCreateType()
	case p.peekKeywords("CREATE", "VIEW"):
		return p.parseCreateView()
	case p.peekKeywords("DROP", "TABLE"):
		return p.parseDropTable()
	case p.peekKeywords("DROP", "DATABASE"):
		return p.parseDropDatabase()
	case p.peekKeywords("DROP", "USER"):
		return p.parseDropUser()
	case p.peekKeywords("DROP", "ROLE"):
		return p.parseDropRole()
	case p.peekKeywords("DROP", "INDEX"):
		return p.parseDropIndex()
	case p.peekKeywords("DROP", "VIEW"):
		return p.parseDropView()
	case p.peekKeywords("DROP", "TYPE"):
		return p.parseDropType()
	case p.peekKeywords("ALTER", "TABLE"):
		return p.parseAlterTable()
	case p.peekKeywords("ALTER", "USER"):
		return p.parseAlterUser()
	case p.peekKeywords("INSERT", "INTO"):
		return p.parseInsert()
	case p.peekKeywords("SELECT"):
		return p.parseSelect()
	case p.peekKeywords("UPDATE"):
		return p.parseUpdate()
	case p.peekKeywords("DELETE", "FROM"):
		return p.parseDelete()
	case p.peekKeywords("BEGIN"), p.peekKeywords("START", "TRANSACTION"):
		return p.parseBegin()
	case p.peekKeywords("COMMIT"):
		return p.parseCommit()
	case p.peekKeywords("ROLLBACK"):
		return p.parseRollback()
	case p.peekKeywords("GRANT"):
		return p.parseGrant()
	case p.peekKeywords("REVOKE"):
		return p.parseRevoke()
	case p.peekKeywords("SHOW", "TABLES"), p.peekKeywords(`\dt`), p.peekKeywords(`\d`):
		return p.parseShowTables()
	case p.peekKeywords("SHOW", "USERS"), p.peekKeywords(`\du`):
		return p.parseShowUsers()
	case p.peekKeywords("SHOW", "DATABASES"), p.peekKeywords(`\l`):
		return p.parseShowDatabases()
	case p.peekKeywords("VACUUM"):
		return p.parseVacuum()
	case p.peekKeywords("EXPLAIN"):
		return p.parseExplain()
	default:
		return nil, p.errorf("unrecognized statement")
	}
}

func (p *Parser) peek() Token { return p.toks[p.pos] }

func (p *Parser) peekAt(n int) Token {
	idx := p.pos + n
	if idx >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[idx]
}

func (p *Parser) advance() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) atEOF() bool { return p.peek().Kind == KindEOF }

func isKeywordToken(t Token, word string) bool {
	if strings.HasPrefix(word, `\`) {
		return t.Kind == KindIdent && t.Text == word
	}
	return t.Kind == KindIdent && strings.EqualFold(t.Text, word)
}

// peekKeywords reports whether the next len(words) tokens match word,
// case-insensitively, without consuming anything.
func (p *Parser) peekKeywords(words ...string) bool {
	for i, w := range words {
		if !isKeywordToken(p.peekAt(i), w) {
			return false
		}
	}
	return true
}

// matchKeywords consumes the next len(words) tokens if they match,
// reporting whether it did.
func (p *Parser) matchKeywords(words ...string) bool {
	if !p.peekKeywords(words...) {
		return false
	}
	p.pos += len(words)
	return true
}

func (p *Parser) expectKeywords(words ...string) error {
	if !p.matchKeywords(words...) {
		return p.errorf("expected %s", strings.Join(words, " "))
	}
	return nil
}

func (p *Parser) expectIdent() (string, error) {
	t := p.peek()
	if t.Kind != KindIdent {
		return "", p.errorf("expected identifier")
	}
	p.advance()
	return t.Text, nil
}

func (p *Parser) expectString() (string, error) {
	t := p.peek()
	if t.Kind != KindString {
		return "", p.errorf("expected a quoted string")
	}
	p.advance()
	return t.Text, nil
}

func (p *Parser) matchSymbol(sym string) bool {
	t := p.peek()
	if t.Kind == KindSymbol && t.Text == sym {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expectSymbol(sym string) error {
	if !p.matchSymbol(sym) {
		return p.errorf("expected %q", sym)
	}
	return nil
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	return &ParseError{Message: fmt.Sprintf(format, args...), Remaining: p.remainingText()}
}

func (p *Parser) remainingText() string {
	var sb strings.Builder
	for i := p.pos; i < len(p.toks) && p.toks[i].Kind != KindEOF; i++ {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(p.toks[i].Text)
	}
	return sb.String()
}
