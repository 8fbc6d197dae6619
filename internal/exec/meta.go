package exec

import (
	"sort"

	"go.uber.org/zap"

	"postgrustql/internal/catalog"
	"postgrustql/internal/sqlparse"
	"postgrustql/internal/types"
)

// execShowTables lists every table in the session's current database.
func (s *Session) execShowTables() Result {
	db, _, err := s.currentDB()
	if err != nil {
		return Err(err)
	}
	names := make([]string, 0, len(db.Tables))
	for _, t := range db.Tables {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	rows := make([][]types.Value, len(names))
	for i, n := range names {
		rows[i] = []types.Value{types.NewText(n)}
	}
	return RowSet([]string{"table_name"}, rows)
}

// execShowUsers lists every user known to the server instance. Only a
// superuser may enumerate other accounts.
func (s *Session) execShowUsers() Result {
	if s.User == nil || !s.Engine.Instance.IsSuperuser(s.User) {
		return Err(catalog.NewPermissionDenied("user", "", "SHOW USERS requires superuser"))
	}
	names := make([]string, 0, len(s.Engine.Instance.Users))
	for _, u := range s.Engine.Instance.Users {
		names = append(names, u.Username)
	}
	sort.Strings(names)
	rows := make([][]types.Value, len(names))
	for i, n := range names {
		u := s.Engine.Instance.Users[n]
		rows[i] = []types.Value{types.NewText(u.Username), types.NewBoolean(u.IsSuperuser)}
	}
	return RowSet([]string{"username", "is_superuser"}, rows)
}

// execShowDatabases lists every database and its owner.
func (s *Session) execShowDatabases() Result {
	names := make([]string, 0, len(s.Engine.Instance.Databases))
	for _, db := range s.Engine.Instance.Databases {
		names = append(names, db.Name)
	}
	sort.Strings(names)
	rows := make([][]types.Value, len(names))
	for i, n := range names {
		meta := s.Engine.Instance.Metadata[lower(n)]
		owner := ""
		if meta != nil {
			owner = meta.Owner
		}
		rows[i] = []types.Value{types.NewText(n), types.NewText(owner)}
	}
	return RowSet([]string{"database_name", "owner"}, rows)
}

// execVacuum physically reclaims dead tuple versions whose xmax is at or
// below the lowest active transaction id, either for one named table or every table in
// the current database.
func (s *Session) execVacuum(st sqlparse.Vacuum) Result {
	db, _, err := s.currentDB()
	if err != nil {
		return Err(err)
	}

	var tableNames []string
	if st.Table != "" {
		table := db.FindTable(st.Table)
		if table == nil {
			return Err(catalog.NewNotFound("table", st.Table))
		}
		tableNames = []string{table.Name}
	} else {
		for _, t := range db.Tables {
			tableNames = append(tableNames, t.Name)
		}
	}

	minActive := s.Engine.minActiveTxID()
	removed := 0
	for _, name := range tableNames {
		rowStore, err := s.Engine.storageFor(s.Database, name)
		if err != nil {
			return Err(err)
		}
		n, err := rowStore.Vacuum(minActive)
		if err != nil {
			return Err(err)
		}
		removed += n
	}
	s.Engine.log.Info("vacuum complete",
		zap.String("database", s.Database),
		zap.Int("tables", len(tableNames)),
		zap.Int("tuples_removed", removed))
	return Ok("VACUUM")
}
