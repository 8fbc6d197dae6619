package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"postgrustql/internal/catalog"
	"postgrustql/internal/config"
	"postgrustql/internal/exec"
	"postgrustql/internal/pgwire"
	"postgrustql/internal/sqlparse"
	"postgrustql/internal/storage"
	"postgrustql/internal/storage/buffer"
	"postgrustql/internal/storage/page"
	"postgrustql/internal/txn"
	"postgrustql/internal/wal"
)

// defaultPoolCapacity is the buffer pool's fixed frame count.
const defaultPoolCapacity = 1000

func catalogPath(dataDir string) string {
	return filepath.Join(dataDir, "catalog.bin")
}

func walDir(dataDir string) string {
	return filepath.Join(dataDir, "wal")
}

func tablesDir(dataDir string) string {
	return filepath.Join(dataDir, "tables")
}

// server holds every piece of live state bootstrap wires together: the
// WAL writer, the shared buffer pool, the engine, and the open page
// files backing it, so close/checkpoint can tear everything down in the
// right order.
type server struct {
	cfg    config.Config
	log    *zap.Logger
	wal    *wal.Writer
	pool   *buffer.Pool
	inst   *catalog.ServerInstance
	txns   *txn.Manager
	engine *exec.Engine

	mu    sync.Mutex
	files map[string]*page.File // "db/table" -> open page file, for close/checkpoint
}

// bootstrap opens the WAL, recovers from it, loads or initializes the
// catalog, and wires an exec.Engine over a storage factory that opens
// one page file per table on first reference.
func bootstrap(cfg config.Config, log *zap.Logger) (*server, error) {
	if err := os.MkdirAll(walDir(cfg.DataDir), 0o755); err != nil {
		return nil, fmt.Errorf("bootstrap: create wal dir: %w", err)
	}
	if err := os.MkdirAll(tablesDir(cfg.DataDir), 0o755); err != nil {
		return nil, fmt.Errorf("bootstrap: create tables dir: %w", err)
	}

	w, err := wal.Open(walDir(cfg.DataDir), log)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open wal: %w", err)
	}

	recovered, err := wal.Scan(walDir(cfg.DataDir))
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("bootstrap: scan wal: %w", err)
	}
	if lsn, ok := recovered.LastCheckpointLSN(); ok {
		log.Info("found checkpoint", zap.Uint64("lsn", lsn))
	}

	inst, err := loadOrInitCatalog(cfg)
	if err != nil {
		_ = w.Close()
		return nil, err
	}

	srv := &server{
		cfg:   cfg,
		log:   log,
		wal:   w,
		pool:  buffer.New(defaultPoolCapacity),
		inst:  inst,
		files: map[string]*page.File{},
	}

	srv.txns = txn.NewManager(w, log)
	srv.txns.FastForward(recovered.MaxTxID() + 1)

	srv.engine = exec.NewEngine(inst, srv.txns, srv.openTableStorage, log)

	if err := recovered.Redo(srv.redoResolver()); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("bootstrap: redo wal: %w", err)
	}

	return srv, nil
}

// loadOrInitCatalog reads an existing checkpoint, or seeds a fresh
// ServerInstance when none exists and POSTGRUSTQL_INITDB permits it.
func loadOrInitCatalog(cfg config.Config) (*catalog.ServerInstance, error) {
	path := catalogPath(cfg.DataDir)
	if _, err := os.Stat(path); err == nil {
		inst, err := wal.LoadCheckpoint(path)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load checkpoint: %w", err)
		}
		return inst, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("bootstrap: stat catalog: %w", err)
	}

	if !cfg.InitDB {
		return nil, fmt.Errorf("bootstrap: no catalog at %s and POSTGRUSTQL_INITDB=false", path)
	}
	return bootstrapFreshCatalog(cfg), nil
}

// openTableStorage is the exec.StorageFactory: one page file per
// (database, table), opened lazily and cached, fronted by the server's
// single shared buffer pool.
func (s *server) openTableStorage(database, table string) (storage.RowStorage, error) {
	file, err := s.pageFile(database, table)
	if err != nil {
		return nil, err
	}
	return storage.Open(file, s.pool), nil
}

func (s *server) pageFile(database, table string) (*page.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(database) + "/" + strings.ToLower(table)
	if f, ok := s.files[key]; ok {
		return f, nil
	}
	dir := filepath.Join(tablesDir(s.cfg.DataDir), strings.ToLower(database))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("bootstrap: create table dir: %w", err)
	}
	path := filepath.Join(dir, strings.ToLower(table)+".pages")
	f, err := page.Open(path)
	if err != nil {
		return nil, err
	}
	s.files[key] = f
	return f, nil
}

// redoResolver maps a bare table name from the WAL to its storage by
// searching every database's catalog for a table with that name. The WAL
// record format carries only the table name, not its
// owning database, so a table name must be unique across the instance
// for recovery to disambiguate it correctly; this matches the
// single-exclusive-write-lock, single-writer-at-a-time model the whole
// server already assumes.
func (s *server) redoResolver() wal.TableResolver {
	return func(table string) storage.RowStorage {
		for dbName, db := range s.inst.Databases {
			if db.FindTable(table) == nil {
				continue
			}
			st, err := s.engine.StorageFor(dbName, table)
			if err != nil {
				s.log.Error("redo: open table storage", zap.String("table", table), zap.Error(err))
				return nil
			}
			return st
		}
		return nil
	}
}

// checkpoint flushes every open page file's dirty pages and writes a
// fresh catalog.bin snapshot plus a matching Checkpoint WAL record.
func (s *server) checkpoint() error {
	if err := s.pool.FlushAll(); err != nil {
		return fmt.Errorf("checkpoint: flush buffer pool: %w", err)
	}
	active := make([]uint64, 0)
	for id := range s.txns.Snapshot() {
		active = append(active, id)
	}
	lsn, err := s.wal.WriteCheckpoint(catalogPath(s.cfg.DataDir), s.inst, active)
	if err != nil {
		return err
	}
	s.log.Info("checkpoint complete", zap.Uint64("lsn", lsn))
	return nil
}

func (s *server) close() {
	s.mu.Lock()
	files := make([]*page.File, 0, len(s.files))
	for _, f := range s.files {
		files = append(files, f)
	}
	s.mu.Unlock()
	for _, f := range files {
		_ = f.Sync()
		_ = f.Close()
	}
	_ = s.wal.Close()
}

// runServe is the serve subcommand's body: lock the data directory,
// bootstrap server state, and accept connections until an interrupt asks
// for a clean shutdown.
func runServe(cfg config.Config) error {
	fl, err := config.LockDataDir(cfg.DataDir)
	if err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	srv, err := bootstrap(cfg, log)
	if err != nil {
		return err
	}
	defer srv.close()

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("serve: listen %s: %w", cfg.Addr(), err)
	}
	log.Info("listening", zap.String("addr", cfg.Addr()), zap.String("data_dir", cfg.DataDir))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		if err := srv.checkpoint(); err != nil {
			log.Error("checkpoint on shutdown", zap.Error(err))
		}
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Error("accept", zap.Error(err))
			continue
		}
		go srv.handleConn(conn)
	}
}

// handleConn runs the startup handshake and then the simple-query loop
// for one client connection: StartupMessage ->
// AuthenticationCleartextPassword -> PasswordMessage (checked by
// ServerInstance.Authenticate) ->
// AuthenticationOk/ParameterStatus*/ReadyForQuery, then repeated
// Query -> RowDescription/DataRow*/CommandComplete/ReadyForQuery (or
// ErrorResponse), until Terminate or a client disconnect, which is
// treated as an implicit ROLLBACK of any open transaction.
func (s *server) handleConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	start, err := pgwire.ReadStartupMessage(r)
	if err != nil {
		return
	}

	user, ok := start.Parameters["user"]
	if !ok {
		user = s.cfg.User
	}
	database, ok := start.Parameters["database"]
	if !ok {
		database = s.cfg.Database
	}

	if err := pgwire.WriteFrame(conn, pgwire.TypeAuthentication, pgwire.EncodeAuthenticationCleartextPassword()); err != nil {
		return
	}
	msgType, payload, err := pgwire.ReadFrame(r)
	if err != nil || msgType != pgwire.TypePassword {
		return
	}
	pw, err := pgwire.DecodePasswordMessage(payload)
	if err != nil {
		return
	}
	authUser, authErr := s.inst.Authenticate(user, pw.Password)
	if authErr != nil {
		s.sendError(conn, authErr)
		return
	}

	if err := pgwire.WriteFrame(conn, pgwire.TypeAuthentication, pgwire.EncodeAuthenticationOk()); err != nil {
		return
	}
	for _, kv := range [][2]string{{"server_version", version}, {"client_encoding", "UTF8"}} {
		payload := pgwire.EncodeParameterStatus(pgwire.ParameterStatus{Name: kv[0], Value: kv[1]})
		if err := pgwire.WriteFrame(conn, pgwire.TypeParameterStatus, payload); err != nil {
			return
		}
	}

	sess := exec.NewSession(s.engine, database, authUser)
	if err := s.sendReady(conn, sess); err != nil {
		return
	}

	for {
		msgType, payload, err := pgwire.ReadFrame(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("connection read error", zap.Error(err))
			}
			s.implicitRollback(sess)
			return
		}
		switch msgType {
		case pgwire.TypeQuery:
			q, err := pgwire.DecodeQuery(payload)
			if err != nil {
				return
			}
			if !s.runQuery(conn, sess, q.SQL) {
				return
			}
		case pgwire.TypeTerminate:
			s.implicitRollback(sess)
			return
		default:
			s.log.Debug("ignoring unsupported frontend message", zap.Uint8("type", msgType))
		}
	}
}

// runQuery parses and executes one simple-query string, replying with
// the appropriate message sequence. It returns false if the connection
// should be closed.
func (s *server) runQuery(conn net.Conn, sess *exec.Session, sql string) bool {
	stmt, err := sqlparse.Parse(sql)
	if err != nil {
		s.sendError(conn, err)
		return s.sendReady(conn, sess) == nil
	}

	res := sess.Execute(stmt)
	if res.IsError() {
		s.sendError(conn, res.Err)
		return s.sendReady(conn, sess) == nil
	}

	if err := s.sendResult(conn, stmt, res); err != nil {
		return false
	}
	return s.sendReady(conn, sess) == nil
}

func (s *server) sendResult(conn net.Conn, stmt sqlparse.Statement, res exec.Result) error {
	switch res.Kind {
	case exec.KindRowSet:
		fields := make([]pgwire.FieldDescription, len(res.Columns))
		for i, name := range res.Columns {
			fields[i] = pgwire.FieldDescription{Name: name, ColumnAttNum: int16(i + 1), FormatCode: 0}
		}
		if err := pgwire.WriteFrame(conn, pgwire.TypeRowDescription, pgwire.EncodeRowDescription(fields)); err != nil {
			return err
		}
		for _, row := range res.Rows {
			if err := pgwire.WriteFrame(conn, pgwire.TypeDataRow, pgwire.EncodeRow(row)); err != nil {
				return err
			}
		}
		tag := fmt.Sprintf("SELECT %d", len(res.Rows))
		return pgwire.WriteFrame(conn, pgwire.TypeCommandComplete, pgwire.EncodeCommandComplete(pgwire.CommandComplete{Tag: tag}))
	case exec.KindAffected:
		tag := fmt.Sprintf("%s 0 %d", affectedVerb(stmt), res.Affected)
		return pgwire.WriteFrame(conn, pgwire.TypeCommandComplete, pgwire.EncodeCommandComplete(pgwire.CommandComplete{Tag: tag}))
	default:
		tag := res.Message
		if tag == "" {
			tag = "OK"
		}
		return pgwire.WriteFrame(conn, pgwire.TypeCommandComplete, pgwire.EncodeCommandComplete(pgwire.CommandComplete{Tag: tag}))
	}
}

func affectedVerb(stmt sqlparse.Statement) string {
	switch stmt.(type) {
	case sqlparse.Insert:
		return "INSERT"
	case sqlparse.Update:
		return "UPDATE"
	case sqlparse.Delete:
		return "DELETE"
	default:
		return "OK"
	}
}

func (s *server) sendError(conn net.Conn, err error) {
	var resp pgwire.ErrorResponse
	var catErr *catalog.Error
	var parseErr *sqlparse.ParseError
	switch {
	case errors.As(err, &catErr):
		resp = pgwire.ErrorFromCatalog(catErr)
	case errors.As(err, &parseErr):
		resp = pgwire.ErrorResponse{Severity: pgwire.SeverityError, Code: pgwire.SyntaxError, Message: parseErr.Error()}
	default:
		resp = pgwire.ErrorResponse{Severity: pgwire.SeverityError, Code: pgwire.InternalError, Message: err.Error()}
	}
	_ = pgwire.WriteFrame(conn, pgwire.TypeErrorResponse, pgwire.EncodeErrorResponse(resp))
}

func (s *server) sendReady(conn net.Conn, sess *exec.Session) error {
	status := pgwire.TxIdle
	if sess.Tx != nil {
		status = pgwire.TxInBlock
	}
	return pgwire.WriteFrame(conn, pgwire.TypeReadyForQuery, pgwire.EncodeReadyForQuery(pgwire.ReadyForQuery{Status: status}))
}

// implicitRollback treats a disconnect mid-transaction as ROLLBACK.
func (s *server) implicitRollback(sess *exec.Session) {
	if sess.Tx == nil {
		return
	}
	if err := sess.Tx.Rollback(s.engine.TableResolverFor(sess.Database)); err != nil {
		s.log.Error("implicit rollback on disconnect", zap.Error(err))
	}
	sess.Tx = nil
}
