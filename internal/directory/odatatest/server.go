// Package odatatest is an in-process fake OData server standing in for a
// live Dataverse tenant in tests: every poll/claim/ETag test in this repo
// runs against a real HTTP round trip (httptest.Server) without needing
// live cloud credentials. It is backed by mattn/go-sqlite3 (WAL mode, a
// single generic `rows` table keyed by (tbl, id)) the same way the
// teacher's internal/persistence.Store opens and migrates its own sqlite
// database — reused here as the substrate for a fake store rather than a
// real one.
package odatatest

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/google/uuid"
)

// Server is a fake OData v4 store. It implements exactly the surface
// internal/directory.Client exercises: GET collection (with $filter,
// $select, $orderby, $top), GET single row, POST create, PATCH with
// If-Match, DELETE.
type Server struct {
	db  *sql.DB
	mu  sync.Mutex // serializes read-modify-write so ETag checks are atomic
	srv *httptest.Server
}

// New opens an in-memory sqlite-backed fake store and starts an httptest
// server in front of it. Call Close when done.
func New() (*Server, error) {
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("odatatest: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("odatatest: pragma: %w", err)
		}
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS rows (
		tbl  TEXT NOT NULL,
		id   TEXT NOT NULL,
		etag INTEGER NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (tbl, id)
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("odatatest: migrate: %w", err)
	}

	s := &Server{db: db}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s, nil
}

// URL is the base URL to pass as directory.Config.BaseURL.
func (s *Server) URL() string { return s.srv.URL }

// Close shuts down the HTTP server and the backing database.
func (s *Server) Close() {
	s.srv.Close()
	s.db.Close()
}

// path format mirrors the real client: "<table>" for collections,
// "<table>(<id>)" for a single row.
func splitPath(p string) (table, id string, isSingle bool) {
	p = strings.TrimPrefix(p, "/api/data/v9.2/")
	if idx := strings.Index(p, "("); idx >= 0 && strings.HasSuffix(p, ")") {
		return p[:idx], p[idx+1 : len(p)-1], true
	}
	return p, "", false
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	table, id, isSingle := splitPath(r.URL.Path)

	switch r.Method {
	case http.MethodGet:
		if isSingle {
			s.handleGetOne(w, table, id, r.URL.Query())
		} else {
			s.handleGetMany(w, table, r.URL.Query())
		}
	case http.MethodPost:
		s.handleCreate(w, r, table)
	case http.MethodPatch:
		s.handleUpdate(w, r, table, id)
	case http.MethodDelete:
		s.handleDelete(w, table, id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type storedRow struct {
	id     string
	etag   int
	fields map[string]any
}

func (s *Server) loadTable(table string) ([]storedRow, error) {
	rows, err := s.db.Query("SELECT id, etag, data FROM rows WHERE tbl = ?", table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storedRow
	for rows.Next() {
		var id, data string
		var etag int
		if err := rows.Scan(&id, &etag, &data); err != nil {
			return nil, err
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(data), &fields); err != nil {
			return nil, err
		}
		out = append(out, storedRow{id: id, etag: etag, fields: fields})
	}
	return out, rows.Err()
}

func (s *Server) handleGetMany(w http.ResponseWriter, table string, q map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadTable(table)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	filter := firstOf(q, "$filter")
	pred, err := parseFilter(filter)
	if err != nil {
		http.Error(w, "bad filter: "+err.Error(), http.StatusBadRequest)
		return
	}

	matched := make([]storedRow, 0, len(all))
	for _, row := range all {
		if pred.eval(row.fields) {
			matched = append(matched, row)
		}
	}

	if orderby := firstOf(q, "$orderby"); orderby != "" {
		sortRows(matched, orderby)
	}

	top := parseTop(0)
	if t := firstOf(q, "$top"); t != "" {
		if n, err := strconv.Atoi(t); err == nil {
			top = n
		}
	}
	if top < len(matched) {
		matched = matched[:top]
	}

	values := make([]map[string]any, 0, len(matched))
	for _, row := range matched {
		values = append(values, withETag(row))
	}
	writeJSON(w, http.StatusOK, map[string]any{"value": values})
}

func sortRows(rows []storedRow, orderby string) {
	parts := strings.Fields(orderby)
	field := parts[0]
	desc := len(parts) > 1 && strings.EqualFold(parts[1], "desc")
	sort.SliceStable(rows, func(i, j int) bool {
		vi := fmt.Sprint(rows[i].fields[field])
		vj := fmt.Sprint(rows[j].fields[field])
		if desc {
			return vi > vj
		}
		return vi < vj
	})
}

func withETag(row storedRow) map[string]any {
	out := make(map[string]any, len(row.fields)+1)
	for k, v := range row.fields {
		out[k] = v
	}
	out["@odata.etag"] = etagString(row.etag)
	return out
}

func etagString(n int) string { return fmt.Sprintf("W/\"%d\"", n) }

func (s *Server) handleGetOne(w http.ResponseWriter, table, id string, q map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok, err := s.resolveRow(table, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, withETag(row))
}

func (s *Server) getRow(table, id string) (storedRow, bool, error) {
	var etag int
	var data string
	err := s.db.QueryRow("SELECT etag, data FROM rows WHERE tbl = ? AND id = ?", table, id).Scan(&etag, &data)
	if err == sql.ErrNoRows {
		return storedRow{}, false, nil
	}
	if err != nil {
		return storedRow{}, false, err
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return storedRow{}, false, err
	}
	return storedRow{id: id, etag: etag, fields: fields}, true, nil
}

// parseAltKey recognizes Dataverse's alternate-key addressing syntax,
// table(cr_email='alice@example.com'), used by entities (like User) whose
// natural key is a business column rather than a generated id (§3.1).
func parseAltKey(seg string) (column, value string, ok bool) {
	i := strings.Index(seg, "='")
	if i < 0 || !strings.HasSuffix(seg, "'") {
		return "", "", false
	}
	return seg[:i], strings.ReplaceAll(seg[i+2:len(seg)-1], "''", "'"), true
}

// resolveRow addresses a row either by its generated id or, when the path
// segment is an alternate-key expression, by scanning for the matching
// business-column value.
func (s *Server) resolveRow(table, idOrAltKey string) (storedRow, bool, error) {
	if column, value, ok := parseAltKey(idOrAltKey); ok {
		all, err := s.loadTable(table)
		if err != nil {
			return storedRow{}, false, err
		}
		for _, row := range all {
			if fmt.Sprint(row.fields[column]) == value {
				return row, true, nil
			}
		}
		return storedRow{}, false, nil
	}
	return s.getRow(table, idOrAltKey)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, table string) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := firstIDField(fields)
	if id == "" {
		id = uuid.NewString()
	}
	if _, ok := fields["createdon"]; !ok {
		fields["createdon"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	fields["modifiedon"] = fields["createdon"]

	s.mu.Lock()
	defer s.mu.Unlock()

	encoded, err := json.Marshal(fields)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := s.db.Exec("INSERT INTO rows (tbl, id, etag, data) VALUES (?, ?, 1, ?)", table, id, encoded); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if r.Header.Get("Prefer") == "return=representation" {
		row, _, _ := s.getRow(table, id)
		writeJSON(w, http.StatusCreated, withETag(row))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// firstIDField looks for the row's own generated primary key, matching the
// cr_shraga_<entity>id convention every typed row helper sets before
// creating (e.g. cr_shraga_taskid, cr_shraga_conversationid). This must not
// match business columns that merely end in "id" (cr_external_conversation_id,
// cr_azure_ad_id), so it requires the "shraga_" infix too.
func firstIDField(fields map[string]any) string {
	for k, v := range fields {
		lower := strings.ToLower(k)
		if strings.Contains(lower, "shraga_") && strings.HasSuffix(lower, "id") {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, table, id string) {
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ifMatch := r.Header.Get("If-Match")

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok, err := s.resolveRow(table, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if ifMatch != "" && ifMatch != etagString(row.etag) {
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}

	for k, v := range patch {
		row.fields[k] = v
	}
	row.fields["modifiedon"] = time.Now().UTC().Format(time.RFC3339Nano)
	encoded, err := json.Marshal(row.fields)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	newEtag := row.etag + 1
	if _, err := s.db.Exec("UPDATE rows SET etag = ?, data = ? WHERE tbl = ? AND id = ?", newEtag, encoded, table, row.id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, table, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok, err := s.resolveRow(table, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if _, err := s.db.Exec("DELETE FROM rows WHERE tbl = ? AND id = ?", table, row.id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func firstOf(q map[string][]string, key string) string {
	if v, ok := q[key]; ok && len(v) > 0 {
		return v[0]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
