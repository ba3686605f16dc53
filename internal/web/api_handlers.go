package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/joestump/sqlitekit/internal/db"
)

// --- JSON Helpers ---

// writeJSON encodes v before writing the header, so an encode failure turns
// into a 500 instead of a truncated response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		log.WithField("err", err).Error("writeJSON: encode error")
		buf.Reset()
		buf.WriteString(`{"error":"failed to encode response"}` + "\n")
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// requireJSON checks the Content-Type header and returns false (with a 415 response) if it is not application/json.
func requireJSON(w http.ResponseWriter, r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	return true
}

// decodeJSON reads a JSON body into v. On failure it writes the response and
// returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if !requireJSON(w, r) {
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// writeDBError maps validation errors to 400 and everything else to 500.
func writeDBError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, db.ErrPlaceholderMismatch) || errors.Is(err, db.ErrInvalidIdentifier) || errors.Is(err, db.ErrDuplicateColumn) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.WithFields(log.Fields{"op": op, "err": err}).Error("database error")
	writeError(w, http.StatusInternalServerError, err.Error())
}

func decodeTemplate(w http.ResponseWriter, r *http.Request) (db.Template, bool) {
	var t db.Template
	if !decodeJSON(w, r, &t) {
		return t, false
	}
	if strings.TrimSpace(t.Expression) == "" {
		writeError(w, http.StatusBadRequest, "sqlExpression is required")
		return t, false
	}
	return t, true
}

// --- API Handlers ---

// handleAPIHealth returns a simple health check response.
func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIQuery(w http.ResponseWriter, r *http.Request) {
	t, ok := decodeTemplate(w, r)
	if !ok {
		return
	}
	rows, err := s.db.Query(t)
	if err != nil {
		writeDBError(w, "query", err)
		return
	}
	writeJSON(w, http.StatusOK, APIRowsResponse{Rows: rows})
}

func (s *Server) handleAPIScalar(w http.ResponseWriter, r *http.Request) {
	t, ok := decodeTemplate(w, r)
	if !ok {
		return
	}
	v, err := s.db.ExecuteScalar(t)
	if err != nil {
		writeDBError(w, "scalar", err)
		return
	}
	writeJSON(w, http.StatusOK, APIScalarResponse{Value: v})
}

func (s *Server) handleAPIExec(w http.ResponseWriter, r *http.Request) {
	t, ok := decodeTemplate(w, r)
	if !ok {
		return
	}
	n, err := s.db.ExecuteNonQuery(t)
	if err != nil {
		writeDBError(w, "exec", err)
		return
	}
	writeJSON(w, http.StatusOK, APIRowsAffectedResponse{RowsAffected: n})
}

// handleAPIBatch runs all statements in one transaction.
func (s *Server) handleAPIBatch(w http.ResponseWriter, r *http.Request) {
	var req APIBatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Statements) == 0 {
		writeError(w, http.StatusBadRequest, "statements is required")
		return
	}
	n, err := s.db.ExecuteBatch(req.Statements)
	if err != nil {
		writeDBError(w, "batch", err)
		return
	}
	writeJSON(w, http.StatusOK, APIRowsAffectedResponse{RowsAffected: n})
}

func (s *Server) handleAPIUpsert(w http.ResponseWriter, r *http.Request) {
	var req APIUpsertRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Columns) == 0 {
		writeError(w, http.StatusBadRequest, "columnNames is required")
		return
	}
	n, err := s.db.Upsert(req.UpsertSpec, req.Rows)
	if err != nil {
		writeDBError(w, "upsert", err)
		return
	}
	writeJSON(w, http.StatusOK, APIRowsAffectedResponse{RowsAffected: n})
}

// handleAPIEnsureTable creates or recreates a table for the given version.
func (s *Server) handleAPIEnsureTable(w http.ResponseWriter, r *http.Request) {
	var spec db.TableSpec
	if !decodeJSON(w, r, &spec) {
		return
	}
	if strings.TrimSpace(spec.DDL) == "" {
		writeError(w, http.StatusBadRequest, "createSql is required")
		return
	}
	n, err := s.db.EnsureTable(spec)
	if err != nil {
		writeDBError(w, "ensure table", err)
		return
	}
	writeJSON(w, http.StatusOK, APIRowsAffectedResponse{RowsAffected: n})
}

func (s *Server) handleAPITableVersion(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	v, err := s.db.GetTableVersion(name)
	if err != nil {
		writeDBError(w, "table version", err)
		return
	}
	writeJSON(w, http.StatusOK, APITableVersionResponse{Table: name, Version: v})
}
