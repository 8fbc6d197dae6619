package exec

import (
	"fmt"

	"postgrustql/internal/catalog"
	"postgrustql/internal/sqlparse"
	"postgrustql/internal/storage"
	"postgrustql/internal/storage/page"
	"postgrustql/internal/txn"
	"postgrustql/internal/types"
)

// visibleRows returns every row version of st visible to readerTx under
// snapshot, in storage scan order.
func visibleRows(st storage.RowStorage, readerTx uint64, snapshot map[uint64]bool) ([]storage.Row, error) {
	var out []storage.Row
	err := st.Scan(func(r storage.Row) bool {
		if txn.Visible(r.Xmin, r.Xmax, readerTx, snapshot) {
			out = append(out, r)
		}
		return true
	})
	return out, err
}

// buildInsertValues maps an INSERT's column list (or positional values,
// if the list was omitted) onto the table's full column order, filling
// omitted SERIAL/BIGSERIAL columns from the table's sequence and leaving
// every other omitted column NULL.
func buildInsertValues(table *catalog.Table, st sqlparse.Insert) ([]types.Value, error) {
	out := make([]types.Value, len(table.Columns))
	filled := make([]bool, len(table.Columns))

	if st.Columns == nil {
		if len(st.Values) != len(table.Columns) {
			return nil, catalog.NewColumnCountMismatch(table.Name, len(table.Columns), len(st.Values))
		}
		copy(out, st.Values)
		for i := range out {
			filled[i] = true
		}
	} else {
		if len(st.Columns) != len(st.Values) {
			return nil, catalog.NewColumnCountMismatch(table.Name, len(st.Columns), len(st.Values))
		}
		for i, name := range st.Columns {
			idx := table.ColumnIndex(name)
			if idx < 0 {
				return nil, catalog.NewNotFound("column", name)
			}
			out[idx] = st.Values[i]
			filled[idx] = true
		}
	}

	for i, col := range table.Columns {
		if filled[i] && !(col.DataType.IsSerial() && out[i].IsNull()) {
			continue
		}
		if col.DataType.IsSerial() {
			out[i] = types.NewInteger(table.NextSerial(col.Name))
			continue
		}
		if !filled[i] {
			out[i] = types.Null()
		}
	}
	return out, nil
}

// checkConstraints validates NOT NULL, PRIMARY KEY/UNIQUE, and FOREIGN
// KEY constraints for a candidate row against the table's current
// visible rows.
func (s *Session) checkConstraints(db *catalog.Database, table *catalog.Table, values []types.Value, tx *txn.Tx, skip storage.RowStorage, skipRow *page.RowID) error {
	for i, col := range table.Columns {
		v := values[i]
		if v.IsNull() && !col.Nullable {
			return catalog.NewConstraintViolation("column", col.Name, "NOT NULL violation")
		}
		coerced, err := types.CoerceTo(v, col.DataType)
		if err != nil {
			return catalog.NewTypeMismatch(fmt.Sprintf("%s.%s: %v", table.Name, col.Name, err))
		}
		values[i] = coerced
	}

	snapshot := s.Engine.Txns.Snapshot()
	st, err := s.Engine.storageFor(s.Database, table.Name)
	if err != nil {
		return err
	}
	rows, err := visibleRows(st, tx.ID(), snapshot)
	if err != nil {
		return err
	}

	for i, col := range table.Columns {
		if !col.PrimaryKey && !col.Unique {
			continue
		}
		if values[i].IsNull() {
			continue
		}
		for _, r := range rows {
			if skipRow != nil && r.ID == *skipRow {
				continue
			}
			if r.Values[i].Equal(values[i]) {
				kind := "UNIQUE"
				if col.PrimaryKey {
					kind = "PRIMARY KEY"
				}
				return catalog.NewConstraintViolation("column", col.Name, kind+" violation")
			}
		}
	}

	for i, col := range table.Columns {
		if col.ForeignKey == nil || values[i].IsNull() {
			continue
		}
		refTable := db.FindTable(col.ForeignKey.ReferencedTable)
		if refTable == nil {
			return catalog.NewNotFound("table", col.ForeignKey.ReferencedTable)
		}
		refCol := col.ForeignKey.ReferencedColumn
		refIdx := 0
		if refCol != "" {
			refIdx = refTable.ColumnIndex(refCol)
			if refIdx < 0 {
				return catalog.NewNotFound("column", refCol)
			}
		}
		refStorage, err := s.Engine.storageFor(s.Database, refTable.Name)
		if err != nil {
			return err
		}
		refRows, err := visibleRows(refStorage, tx.ID(), snapshot)
		if err != nil {
			return err
		}
		found := false
		for _, rr := range refRows {
			if rr.Values[refIdx].Equal(values[i]) {
				found = true
				break
			}
		}
		if !found {
			return catalog.NewConstraintViolation("column", col.Name, "FOREIGN KEY violation: no matching row in "+refTable.Name)
		}
	}
	return nil
}

func (s *Session) execInsert(st sqlparse.Insert, tx *txn.Tx) Result {
	db, meta, err := s.currentDB()
	if err != nil {
		return Err(err)
	}
	if err := s.requirePrivilege(meta, catalog.PrivInsert); err != nil {
		return Err(err)
	}
	table := db.FindTable(st.Table)
	if table == nil {
		return Err(catalog.NewNotFound("table", st.Table))
	}

	values, err := buildInsertValues(table, st)
	if err != nil {
		return Err(err)
	}
	if err := s.checkConstraints(db, table, values, tx, nil, nil); err != nil {
		return Err(err)
	}

	rowStore, err := s.Engine.storageFor(s.Database, table.Name)
	if err != nil {
		return Err(err)
	}
	rowID, err := rowStore.Insert(tx.ID(), values)
	if err != nil {
		return Err(err)
	}
	tx.RecordInsert(table.Name, rowID, page.EncodeTuple(tx.ID(), nil, values))
	return Affected(1)
}

func (s *Session) execUpdate(st sqlparse.Update, tx *txn.Tx) Result {
	db, meta, err := s.currentDB()
	if err != nil {
		return Err(err)
	}
	if err := s.requirePrivilege(meta, catalog.PrivUpdate); err != nil {
		return Err(err)
	}
	table := db.FindTable(st.Table)
	if table == nil {
		return Err(catalog.NewNotFound("table", st.Table))
	}
	rowStore, err := s.Engine.storageFor(s.Database, table.Name)
	if err != nil {
		return Err(err)
	}

	snapshot := s.Engine.Txns.Snapshot()
	rows, err := visibleRows(rowStore, tx.ID(), snapshot)
	if err != nil {
		return Err(err)
	}

	affected := 0
	for _, r := range rows {
		if st.Filter != nil {
			match, err := evalCondition(st.Filter, newSingleRowContext(table, r.Values))
			if err != nil {
				return Err(err)
			}
			if !match {
				continue
			}
		}

		newValues := append([]types.Value(nil), r.Values...)
		for _, a := range st.Assignments {
			idx := table.ColumnIndex(a.Column)
			if idx < 0 {
				return Err(catalog.NewNotFound("column", a.Column))
			}
			newValues[idx] = a.Value
		}

		rowID := r.ID
		if err := s.checkConstraints(db, table, newValues, tx, rowStore, &rowID); err != nil {
			return Err(err)
		}

		// UPDATE is logical-delete-then-insert, never in-place value
		// rewrite.
		newID, err := rowStore.Insert(tx.ID(), newValues)
		if err != nil {
			return Err(err)
		}
		if err := rowStore.StampXmax(r.ID, tx.ID()); err != nil {
			return Err(err)
		}
		tx.RecordDelete(table.Name, r.ID, page.EncodeTuple(r.Xmin, nil, r.Values))
		tx.RecordInsert(table.Name, newID, page.EncodeTuple(tx.ID(), nil, newValues))
		affected++
	}
	return Affected(affected)
}

func (s *Session) execDelete(st sqlparse.Delete, tx *txn.Tx) Result {
	db, meta, err := s.currentDB()
	if err != nil {
		return Err(err)
	}
	if err := s.requirePrivilege(meta, catalog.PrivDelete); err != nil {
		return Err(err)
	}
	table := db.FindTable(st.From)
	if table == nil {
		return Err(catalog.NewNotFound("table", st.From))
	}
	rowStore, err := s.Engine.storageFor(s.Database, table.Name)
	if err != nil {
		return Err(err)
	}

	snapshot := s.Engine.Txns.Snapshot()
	rows, err := visibleRows(rowStore, tx.ID(), snapshot)
	if err != nil {
		return Err(err)
	}

	affected := 0
	for _, r := range rows {
		if st.Filter != nil {
			match, err := evalCondition(st.Filter, newSingleRowContext(table, r.Values))
			if err != nil {
				return Err(err)
			}
			if !match {
				continue
			}
		}
		if err := rowStore.StampXmax(r.ID, tx.ID()); err != nil {
			return Err(err)
		}
		tx.RecordDelete(table.Name, r.ID, page.EncodeTuple(r.Xmin, nil, r.Values))
		affected++
	}
	return Affected(affected)
}
