package exec

import (
	"fmt"
	"sort"
	"strings"

	"postgrustql/internal/catalog"
	"postgrustql/internal/sqlparse"
	"postgrustql/internal/storage"
	"postgrustql/internal/txn"
	"postgrustql/internal/types"
)

// colRef names one column in its owning table's natural order, used to
// expand a bare "*" select list.
type colRef struct {
	table string // lowercased
	name  string
}

// rowContext resolves a possibly-qualified column reference ("col" or
// "table.col") against one joined tuple spanning one or more tables. It
// is immutable: joining in another table produces a new rowContext
// rather than mutating the receiver, so a partial join tree can be
// shared across branches.
type rowContext struct {
	order   []string
	tables  map[string]*catalog.Table
	values  map[string][]types.Value
	primary string
}

// contextKey is the name a table is addressed by inside a rowContext:
// its alias when one was given, its own name otherwise.
func contextKey(table *catalog.Table, alias string) string {
	if alias != "" {
		return strings.ToLower(alias)
	}
	return strings.ToLower(table.Name)
}

func newSingleRowContext(table *catalog.Table, values []types.Value) *rowContext {
	return newAliasedRowContext(table, "", values)
}

func newAliasedRowContext(table *catalog.Table, alias string, values []types.Value) *rowContext {
	key := contextKey(table, alias)
	return &rowContext{
		order:   []string{key},
		tables:  map[string]*catalog.Table{key: table},
		values:  map[string][]types.Value{key: values},
		primary: key,
	}
}

func (rc *rowContext) withTable(table *catalog.Table, alias string, values []types.Value) *rowContext {
	key := contextKey(table, alias)
	out := &rowContext{
		order:   append(append([]string(nil), rc.order...), key),
		tables:  make(map[string]*catalog.Table, len(rc.tables)+1),
		values:  make(map[string][]types.Value, len(rc.values)+1),
		primary: rc.primary,
	}
	for k, v := range rc.tables {
		out.tables[k] = v
	}
	for k, v := range rc.values {
		out.values[k] = v
	}
	out.tables[key] = table
	out.values[key] = values
	return out
}

// withNullTable joins in table with every column NULL, for the
// unmatched side of a LEFT/RIGHT JOIN.
func (rc *rowContext) withNullTable(table *catalog.Table, alias string) *rowContext {
	nulls := make([]types.Value, len(table.Columns))
	for i := range nulls {
		nulls[i] = types.Null()
	}
	return rc.withTable(table, alias, nulls)
}

func splitColumnRef(ref string) (table, column string, qualified bool) {
	if i := strings.IndexByte(ref, '.'); i >= 0 {
		return ref[:i], ref[i+1:], true
	}
	return "", ref, false
}

func (rc *rowContext) resolve(ref string) (types.Value, error) {
	tableAlias, col, qualified := splitColumnRef(ref)
	if qualified {
		key := strings.ToLower(tableAlias)
		t, ok := rc.tables[key]
		if !ok {
			return types.Value{}, catalog.NewNotFound("table", tableAlias)
		}
		idx := t.ColumnIndex(col)
		if idx < 0 {
			return types.Value{}, catalog.NewNotFound("column", col)
		}
		return rc.values[key][idx], nil
	}
	if t, ok := rc.tables[rc.primary]; ok {
		if idx := t.ColumnIndex(col); idx >= 0 {
			return rc.values[rc.primary][idx], nil
		}
	}
	for _, key := range rc.order {
		if key == rc.primary {
			continue
		}
		if idx := rc.tables[key].ColumnIndex(col); idx >= 0 {
			return rc.values[key][idx], nil
		}
	}
	return types.Value{}, catalog.NewNotFound("column", col)
}

func columnRefsFor(table *catalog.Table, alias string) []colRef {
	out := make([]colRef, len(table.Columns))
	key := contextKey(table, alias)
	for i, c := range table.Columns {
		out[i] = colRef{table: key, name: c.Name}
	}
	return out
}

// asComparableFloat extracts a numeric representation of v, if it holds
// one of the numeric kinds, for comparisons across mismatched but
// numerically compatible kinds (e.g. a SMALLINT column against an
// untyped integer literal).
func asComparableFloat(v types.Value) (float64, bool) {
	switch v.Kind {
	case types.KindSmallInt:
		return float64(v.I16), true
	case types.KindInteger, types.KindSerial, types.KindBigSerial:
		return float64(v.I64), true
	case types.KindReal:
		return v.F64, true
	case types.KindDecimal:
		return v.Dec.AsFloat(), true
	default:
		return 0, false
	}
}

func looseCompare(a, b types.Value) (int, error) {
	if a.Kind == b.Kind {
		return a.Compare(b)
	}
	af, aok := asComparableFloat(a)
	bf, bok := asComparableFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	}
	return a.Compare(b)
}

func compareColumn(rc *rowContext, column string, literal types.Value, pick func(int) bool) (bool, error) {
	v, err := rc.resolve(column)
	if err != nil {
		return false, err
	}
	if v.IsNull() || literal.IsNull() {
		return false, nil
	}
	cmp, err := looseCompare(v, literal)
	if err != nil {
		return false, err
	}
	return pick(cmp), nil
}

// evalCondition evaluates a parsed WHERE/ON predicate against one joined
// tuple.
func evalCondition(cond sqlparse.Condition, rc *rowContext) (bool, error) {
	switch c := cond.(type) {
	case sqlparse.Equals:
		return compareColumn(rc, c.Column, c.Value, func(cmp int) bool { return cmp == 0 })
	case sqlparse.NotEquals:
		return compareColumn(rc, c.Column, c.Value, func(cmp int) bool { return cmp != 0 })
	case sqlparse.GreaterThan:
		return compareColumn(rc, c.Column, c.Value, func(cmp int) bool { return cmp > 0 })
	case sqlparse.LessThan:
		return compareColumn(rc, c.Column, c.Value, func(cmp int) bool { return cmp < 0 })
	case sqlparse.And:
		left, err := evalCondition(c.Left, rc)
		if err != nil || !left {
			return false, err
		}
		return evalCondition(c.Right, rc)
	case sqlparse.Or:
		left, err := evalCondition(c.Left, rc)
		if err != nil {
			return false, err
		}
		if left {
			return true, nil
		}
		return evalCondition(c.Right, rc)
	default:
		return false, fmt.Errorf("exec: unsupported condition %T", cond)
	}
}

func evalJoinOn(rc *rowContext, onLeft, onRight string) (bool, error) {
	lv, err := rc.resolve(onLeft)
	if err != nil {
		return false, err
	}
	rv, err := rc.resolve(onRight)
	if err != nil {
		return false, err
	}
	return lv.Equal(rv), nil
}

// aliasedTable pairs a joined-in table with the alias it is addressed
// by, so NULL-padding for outer joins can rebuild contexts under the
// same keys.
type aliasedTable struct {
	table *catalog.Table
	alias string
}

// applyJoin nested-loop joins joinRows onto every existing context,
// producing INNER, LEFT, or RIGHT semantics.
func applyJoin(contexts []*rowContext, knownTables []aliasedTable, joinTable *catalog.Table, joinRows []storage.Row, j sqlparse.Join) ([]*rowContext, error) {
	var out []*rowContext
	rightMatched := make([]bool, len(joinRows))

	for _, left := range contexts {
		matchedAny := false
		for ri, jr := range joinRows {
			combined := left.withTable(joinTable, j.Alias, jr.Values)
			ok, err := evalJoinOn(combined, j.OnLeft, j.OnRight)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, combined)
				matchedAny = true
				rightMatched[ri] = true
			}
		}
		if !matchedAny && j.Kind == sqlparse.JoinLeft {
			out = append(out, left.withNullTable(joinTable, j.Alias))
		}
	}

	if j.Kind == sqlparse.JoinRight {
		for ri, jr := range joinRows {
			if rightMatched[ri] {
				continue
			}
			rc := newAliasedRowContext(joinTable, j.Alias, jr.Values)
			for _, kt := range knownTables {
				rc = rc.withNullTable(kt.table, kt.alias)
			}
			out = append(out, rc)
		}
	}

	return out, nil
}

// gatherRows resolves a SELECT's FROM/JOIN/WHERE clauses into the set of
// joined tuples a client statement sees, scanning through MVCC
// visibility at one fresh snapshot.
func (s *Session) gatherRows(db *catalog.Database, st sqlparse.Select, tx *txn.Tx) ([]*rowContext, []colRef, error) {
	table := db.FindTable(st.From)
	if table == nil {
		if viewQuery, ok := db.Views[strings.ToLower(st.From)]; ok {
			name := st.From
			if st.FromAlias != "" {
				name = st.FromAlias
			}
			return s.gatherViewRows(viewQuery, name, tx)
		}
		return nil, nil, catalog.NewNotFound("table", st.From)
	}

	rowStore, err := s.Engine.storageFor(s.Database, table.Name)
	if err != nil {
		return nil, nil, err
	}
	snapshot := s.Engine.Txns.Snapshot()
	baseRows, err := visibleRows(rowStore, tx.ID(), snapshot)
	if err != nil {
		return nil, nil, err
	}

	contexts := make([]*rowContext, 0, len(baseRows))
	for _, r := range baseRows {
		contexts = append(contexts, newAliasedRowContext(table, st.FromAlias, r.Values))
	}
	cols := columnRefsFor(table, st.FromAlias)
	knownTables := []aliasedTable{{table: table, alias: st.FromAlias}}

	for _, j := range st.Joins {
		joinTable := db.FindTable(j.Table)
		if joinTable == nil {
			return nil, nil, catalog.NewNotFound("table", j.Table)
		}
		joinStore, err := s.Engine.storageFor(s.Database, joinTable.Name)
		if err != nil {
			return nil, nil, err
		}
		joinRows, err := visibleRows(joinStore, tx.ID(), snapshot)
		if err != nil {
			return nil, nil, err
		}
		contexts, err = applyJoin(contexts, knownTables, joinTable, joinRows, j)
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, columnRefsFor(joinTable, j.Alias)...)
		knownTables = append(knownTables, aliasedTable{table: joinTable, alias: j.Alias})
	}

	if st.Filter != nil {
		filtered := contexts[:0]
		for _, rc := range contexts {
			ok, err := evalCondition(st.Filter, rc)
			if err != nil {
				return nil, nil, err
			}
			if ok {
				filtered = append(filtered, rc)
			}
		}
		contexts = filtered
	}

	return contexts, cols, nil
}

// gatherViewRows materializes a stored view's query as a virtual table,
// so the outer SELECT can filter/project over it exactly like a real
// one.
func (s *Session) gatherViewRows(viewQuery, alias string, tx *txn.Tx) ([]*rowContext, []colRef, error) {
	parsed, err := sqlparse.Parse(viewQuery)
	if err != nil {
		return nil, nil, err
	}
	innerSelect, ok := parsed.(sqlparse.Select)
	if !ok {
		return nil, nil, fmt.Errorf("exec: view %q does not store a SELECT", alias)
	}
	res := s.execSelect(innerSelect, tx)
	if res.IsError() {
		return nil, nil, res.Err
	}

	virtual := &catalog.Table{Name: alias, Columns: make([]*catalog.Column, len(res.Columns))}
	for i, name := range res.Columns {
		virtual.Columns[i] = &catalog.Column{Name: name, DataType: types.Text(), Nullable: true}
	}
	contexts := make([]*rowContext, 0, len(res.Rows))
	for _, row := range res.Rows {
		contexts = append(contexts, newSingleRowContext(virtual, row))
	}
	return contexts, columnRefsFor(virtual, ""), nil
}

// checkGroupByColumns enforces GROUP BY contract: every
// non-aggregate projected column must be among the grouping columns.
// Without this, aggregateRows would resolve such a column against an
// arbitrary group member instead of rejecting the statement.
func checkGroupByColumns(st sqlparse.Select) error {
	grouped := make(map[string]bool, len(st.GroupBy))
	for _, g := range st.GroupBy {
		_, col, _ := splitColumnRef(g)
		grouped[strings.ToLower(col)] = true
	}
	for _, c := range st.Columns {
		if c.Kind == sqlparse.ColAggregate {
			continue
		}
		if c.Column == "*" {
			return catalog.NewConstraintViolation("column", "*", "select list must name grouping columns or aggregates when GROUP BY is present")
		}
		_, col, _ := splitColumnRef(c.Column)
		if !grouped[strings.ToLower(col)] {
			return catalog.NewConstraintViolation("column", c.Column, "must appear in the GROUP BY clause or be used in an aggregate function")
		}
	}
	return nil
}

func hasAggregate(cols []sqlparse.SelectColumn) bool {
	for _, c := range cols {
		if c.Kind == sqlparse.ColAggregate {
			return true
		}
	}
	return false
}

// projectRows expands "*" against allCols and evaluates every select
// expression against every joined tuple.
func projectRows(selCols []sqlparse.SelectColumn, rows []*rowContext, allCols []colRef) ([][]types.Value, []string, error) {
	exprs := selCols
	star := false
	for _, c := range selCols {
		if c.Kind == sqlparse.ColRegular && c.Column == "*" {
			star = true
		}
	}
	if star {
		exprs = make([]sqlparse.SelectColumn, len(allCols))
		for i, cr := range allCols {
			exprs[i] = sqlparse.SelectColumn{Kind: sqlparse.ColRegular, Column: cr.name}
		}
	}

	cols := make([]string, len(exprs))
	for i, e := range exprs {
		cols[i] = e.Column
	}

	out := make([][]types.Value, 0, len(rows))
	for _, rc := range rows {
		vals := make([]types.Value, len(exprs))
		for i, e := range exprs {
			v, err := rc.resolve(e.Column)
			if err != nil {
				return nil, nil, err
			}
			vals[i] = v
		}
		out = append(out, vals)
	}
	return out, cols, nil
}

func sortRows(rows [][]types.Value, cols []string, ob sqlparse.OrderBy) {
	idx := -1
	_, bare, _ := splitColumnRef(ob.Column)
	for i, c := range cols {
		_, cbare, _ := splitColumnRef(c)
		if strings.EqualFold(cbare, bare) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		cmp, err := rows[i][idx].Compare(rows[j][idx])
		if err != nil {
			return false
		}
		if ob.Order == sqlparse.Desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

func groupRows(groupBy []string, rows []*rowContext) ([][]*rowContext, error) {
	if len(groupBy) == 0 {
		return [][]*rowContext{rows}, nil
	}
	var order []string
	groups := map[string][]*rowContext{}
	for _, rc := range rows {
		parts := make([]string, len(groupBy))
		for i, g := range groupBy {
			v, err := rc.resolve(g)
			if err != nil {
				return nil, err
			}
			parts[i] = v.String()
		}
		key := strings.Join(parts, "\x00")
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], rc)
	}
	out := make([][]*rowContext, len(order))
	for i, k := range order {
		out[i] = groups[k]
	}
	return out, nil
}

func aggregateName(a sqlparse.Aggregate) string {
	names := map[sqlparse.AggregateKind]string{
		sqlparse.AggCount: "count", sqlparse.AggSum: "sum", sqlparse.AggAvg: "avg",
		sqlparse.AggMin: "min", sqlparse.AggMax: "max",
	}
	return fmt.Sprintf("%s(%s)", names[a.Kind], a.Column)
}

func computeAggregate(agg sqlparse.Aggregate, group []*rowContext) (types.Value, error) {
	switch agg.Kind {
	case sqlparse.AggCount:
		if agg.Column == "*" {
			return types.NewInteger(int64(len(group))), nil
		}
		n := 0
		for _, rc := range group {
			v, err := rc.resolve(agg.Column)
			if err != nil {
				return types.Value{}, err
			}
			if !v.IsNull() {
				n++
			}
		}
		return types.NewInteger(int64(n)), nil
	case sqlparse.AggSum, sqlparse.AggAvg:
		sum := 0.0
		count := 0
		for _, rc := range group {
			v, err := rc.resolve(agg.Column)
			if err != nil {
				return types.Value{}, err
			}
			if v.IsNull() {
				continue
			}
			f, ok := asComparableFloat(v)
			if !ok {
				return types.Value{}, catalog.NewTypeMismatch("aggregate over non-numeric column " + agg.Column)
			}
			sum += f
			count++
		}
		if count == 0 {
			return types.Null(), nil
		}
		if agg.Kind == sqlparse.AggSum {
			return types.NewReal(sum), nil
		}
		return types.NewReal(sum / float64(count)), nil
	case sqlparse.AggMin, sqlparse.AggMax:
		var best *types.Value
		for _, rc := range group {
			v, err := rc.resolve(agg.Column)
			if err != nil {
				return types.Value{}, err
			}
			if v.IsNull() {
				continue
			}
			if best == nil {
				vv := v
				best = &vv
				continue
			}
			cmp, err := best.Compare(v)
			if err != nil {
				return types.Value{}, err
			}
			if (agg.Kind == sqlparse.AggMin && cmp > 0) || (agg.Kind == sqlparse.AggMax && cmp < 0) {
				vv := v
				best = &vv
			}
		}
		if best == nil {
			return types.Null(), nil
		}
		return *best, nil
	default:
		return types.Value{}, fmt.Errorf("exec: unsupported aggregate kind")
	}
}

func aggregateRows(st sqlparse.Select, rows []*rowContext) (Result, error) {
	groups, err := groupRows(st.GroupBy, rows)
	if err != nil {
		return Result{}, err
	}

	cols := make([]string, len(st.Columns))
	for i, c := range st.Columns {
		if c.Kind == sqlparse.ColAggregate {
			cols[i] = aggregateName(c.Aggregate)
		} else {
			cols[i] = c.Column
		}
	}

	var out [][]types.Value
	for _, g := range groups {
		// With no GROUP BY the single (possibly empty) group still
		// produces one output row: COUNT over an empty table is 0, the
		// other aggregates are NULL.
		if len(g) == 0 && len(st.GroupBy) > 0 {
			continue
		}
		vals := make([]types.Value, len(st.Columns))
		for i, c := range st.Columns {
			if c.Kind == sqlparse.ColAggregate {
				v, err := computeAggregate(c.Aggregate, g)
				if err != nil {
					return Result{}, err
				}
				vals[i] = v
				continue
			}
			v, err := g[0].resolve(c.Column)
			if err != nil {
				return Result{}, err
			}
			vals[i] = v
		}
		out = append(out, vals)
	}

	if st.OrderBy != nil {
		sortRows(out, cols, *st.OrderBy)
	}
	if st.Limit != nil && *st.Limit < len(out) {
		out = out[:*st.Limit]
	}
	return RowSet(cols, out), nil
}

func (s *Session) execSelect(st sqlparse.Select, tx *txn.Tx) Result {
	db, meta, err := s.currentDB()
	if err != nil {
		return Err(err)
	}
	if err := s.requirePrivilege(meta, catalog.PrivSelect); err != nil {
		return Err(err)
	}

	rows, allCols, err := s.gatherRows(db, st, tx)
	if err != nil {
		return Err(err)
	}

	if len(st.GroupBy) > 0 || hasAggregate(st.Columns) {
		if err := checkGroupByColumns(st); err != nil {
			return Err(err)
		}
		res, err := aggregateRows(st, rows)
		if err != nil {
			return Err(err)
		}
		return res
	}

	vals, cols, err := projectRows(st.Columns, rows, allCols)
	if err != nil {
		return Err(err)
	}
	if st.OrderBy != nil {
		sortRows(vals, cols, *st.OrderBy)
	}
	if st.Limit != nil && *st.Limit < len(vals) {
		vals = vals[:*st.Limit]
	}
	return RowSet(cols, vals)
}

func (s *Session) execExplain(st sqlparse.Explain, tx *txn.Tx) Result {
	sel, ok := st.Statement.(sqlparse.Select)
	if !ok {
		return Err(fmt.Errorf("exec: EXPLAIN only supports SELECT statements"))
	}
	return RowSet([]string{"QUERY PLAN"}, [][]types.Value{{types.NewText(describePlan(sel))}})
}

// describePlan renders a one-line textual plan. Since this executor has
// no cost-based optimizer, EXPLAIN only describes
// the fixed scan-join-filter-aggregate-sort-limit pipeline it always
// runs, not a chosen strategy among alternatives.
func describePlan(sel sqlparse.Select) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Seq Scan on %s", sel.From)
	for _, j := range sel.Joins {
		fmt.Fprintf(&b, " -> Nested Loop Join %s ON %s = %s", j.Table, j.OnLeft, j.OnRight)
	}
	if sel.Filter != nil {
		b.WriteString(" Filter: (...)")
	}
	if len(sel.GroupBy) > 0 {
		b.WriteString(" GroupAggregate")
	}
	if sel.OrderBy != nil {
		fmt.Fprintf(&b, " Sort Key: %s", sel.OrderBy.Column)
	}
	if sel.Limit != nil {
		fmt.Fprintf(&b, " Limit: %d", *sel.Limit)
	}
	return b.String()
}
