package web

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func doJSON(t *testing.T, e *testEnv, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.srv.mux.ServeHTTP(w, req)
	return w
}

func ensureStudents(t *testing.T, e *testEnv) {
	t.Helper()
	w := doJSON(t, e, "PUT", "/api/v1/tables",
		`{"tableName":"student","version":1,"createSql":"CREATE TABLE student (name TEXT PRIMARY KEY, age INTEGER)"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("ensure table: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

// --- Health Endpoint ---

func TestAPIHealthReturns200(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	e.srv.mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("expected status 'ok', got %q", resp["status"])
	}
}

func TestAPIHealthContentType(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	e.srv.mux.ServeHTTP(w, req)

	ct := w.Header().Get("Content-Type")
	if !strings.Contains(ct, "application/json") {
		t.Fatalf("expected application/json, got %q", ct)
	}
}

// --- Tables ---

func TestAPIEnsureTableAndVersion(t *testing.T) {
	e := newTestEnv(t)
	ensureStudents(t, e)

	req := httptest.NewRequest("GET", "/api/v1/tables/student/version", nil)
	w := httptest.NewRecorder()
	e.srv.mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp APITableVersionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Table != "student" || resp.Version != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}

	w = doJSON(t, e, "PUT", "/api/v1/tables",
		`{"tableName":"student","version":1,"createSql":"CREATE TABLE student (name TEXT PRIMARY KEY, age INTEGER)"}`)
	var affected APIRowsAffectedResponse
	if err := json.NewDecoder(w.Body).Decode(&affected); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if affected.RowsAffected != 0 {
		t.Fatalf("expected 0 for current version, got %d", affected.RowsAffected)
	}
}

func TestAPITableVersionUnknownIsZero(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest("GET", "/api/v1/tables/ghost/version", nil)
	w := httptest.NewRecorder()
	e.srv.mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != `{"table":"ghost","version":0}` {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestAPIEnsureTableValidation(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid name", `{"tableName":"a b","version":1,"createSql":"CREATE TABLE x (a)"}`},
		{"missing ddl", `{"tableName":"ok","version":1}`},
		{"malformed json", `{"tableName":`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, e, "PUT", "/api/v1/tables", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestAPIEnsureTableBadDDLIs500(t *testing.T) {
	e := newTestEnv(t)
	w := doJSON(t, e, "PUT", "/api/v1/tables", `{"tableName":"ok","version":1,"createSql":"CREATE TABLE ok ("}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

// --- Statements ---

func TestAPIRequiresJSONContentType(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest("POST", "/api/v1/query", strings.NewReader(`{"sqlExpression":"SELECT 1"}`))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	e.srv.mux.ServeHTTP(w, req)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", w.Code)
	}
}

func TestAPIExecAndQuery(t *testing.T) {
	e := newTestEnv(t)
	ensureStudents(t, e)

	w := doJSON(t, e, "POST", "/api/v1/exec", `{"sqlExpression":"INSERT INTO student (name, age) VALUES (?, ?)","params":["Jack",21]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("exec: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if body := strings.TrimSpace(w.Body.String()); body != `{"rows_affected":1}` {
		t.Fatalf("exec: unexpected body %s", body)
	}

	w = doJSON(t, e, "POST", "/api/v1/query", `{"sqlExpression":"SELECT name, age FROM student WHERE age = ?","params":[21]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("query: expected 200, got %d", w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != `{"rows":[{"age":21,"name":"Jack"}]}` {
		t.Fatalf("query: unexpected body %s", body)
	}
}

func TestAPIQueryEmpty(t *testing.T) {
	e := newTestEnv(t)
	ensureStudents(t, e)

	w := doJSON(t, e, "POST", "/api/v1/query", `{"sqlExpression":"SELECT * FROM student"}`)
	if body := strings.TrimSpace(w.Body.String()); body != `{"rows":[]}` {
		t.Fatalf("expected empty rows array, got %s", body)
	}
}

func TestAPIScalar(t *testing.T) {
	e := newTestEnv(t)
	ensureStudents(t, e)

	w := doJSON(t, e, "POST", "/api/v1/scalar", `{"sqlExpression":"SELECT age FROM student WHERE name = ?","params":["nobody"]}`)
	if body := strings.TrimSpace(w.Body.String()); body != `{"value":null}` {
		t.Fatalf("expected null value, got %s", body)
	}

	w = doJSON(t, e, "POST", "/api/v1/scalar", `{"sqlExpression":"SELECT ? || ?","params":["a","b"]}`)
	if body := strings.TrimSpace(w.Body.String()); body != `{"value":"ab"}` {
		t.Fatalf("expected ab, got %s", body)
	}
}

func TestAPIPlaceholderMismatchIs400(t *testing.T) {
	e := newTestEnv(t)

	for _, path := range []string{"/api/v1/query", "/api/v1/scalar", "/api/v1/exec"} {
		w := doJSON(t, e, "POST", path, `{"sqlExpression":"SELECT ?, ?","params":[1]}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, w.Code)
		}
	}

	w := doJSON(t, e, "POST", "/api/v1/query", `{"params":[1]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing expression: expected 400, got %d", w.Code)
	}
}

func TestAPIEngineErrorIs500(t *testing.T) {
	e := newTestEnv(t)
	w := doJSON(t, e, "POST", "/api/v1/query", `{"sqlExpression":"SELECT * FROM missing"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["error"] == "" {
		t.Fatal("expected error message")
	}
}

func TestAPIBatch(t *testing.T) {
	e := newTestEnv(t)
	ensureStudents(t, e)

	w := doJSON(t, e, "POST", "/api/v1/batch", `{"statements":[
		{"sqlExpression":"INSERT INTO student (name, age) VALUES (?, ?)","params":["A",1]},
		{"sqlExpression":"INSERT INTO student (name, age) VALUES (?, ?)","params":["B",2]}
	]}`)
	if body := strings.TrimSpace(w.Body.String()); body != `{"rows_affected":2}` {
		t.Fatalf("unexpected body %s", body)
	}

	w = doJSON(t, e, "POST", "/api/v1/batch", `{"statements":[
		{"sqlExpression":"INSERT INTO student (name, age) VALUES (?, ?)","params":["C",3]},
		{"sqlExpression":"INSERT INTO student (name, age) VALUES (?, ?)","params":["A",4]}
	]}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for constraint violation, got %d", w.Code)
	}

	w = doJSON(t, e, "POST", "/api/v1/scalar", `{"sqlExpression":"SELECT COUNT(*) FROM student"}`)
	if body := strings.TrimSpace(w.Body.String()); body != `{"value":2}` {
		t.Fatalf("failed batch should not write rows, got %s", body)
	}

	w = doJSON(t, e, "POST", "/api/v1/batch", `{"statements":[]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty batch, got %d", w.Code)
	}
}

func TestAPIUpsert(t *testing.T) {
	e := newTestEnv(t)
	ensureStudents(t, e)

	w := doJSON(t, e, "POST", "/api/v1/upsert", `{"tableName":"student","columnNames":["name","age"],"rows":[{"name":"Jack","age":21}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = doJSON(t, e, "POST", "/api/v1/upsert", `{"tableName":"student","columnNames":["name","age"],"rows":[{"name":"Jack","age":30}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = doJSON(t, e, "POST", "/api/v1/query", `{"sqlExpression":"SELECT name, age FROM student"}`)
	if body := strings.TrimSpace(w.Body.String()); body != `{"rows":[{"age":30,"name":"Jack"}]}` {
		t.Fatalf("unexpected rows %s", body)
	}
}

func TestAPIUpsertValidation(t *testing.T) {
	e := newTestEnv(t)
	ensureStudents(t, e)

	tests := []struct {
		name string
		body string
	}{
		{"no columns", `{"tableName":"student","columnNames":[],"rows":[]}`},
		{"bad column", `{"tableName":"student","columnNames":["name;"],"rows":[{"name":"x"}]}`},
		{"bad table", `{"tableName":"","columnNames":["name"],"rows":[]}`},
		{"composite value", `{"tableName":"student","columnNames":["name"],"rows":[{"name":[1]}]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, e, "POST", "/api/v1/upsert", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestAPIQueryNonFiniteReal(t *testing.T) {
	e := newTestEnv(t)

	w := doJSON(t, e, "POST", "/api/v1/query", `{"sqlExpression":"SELECT 1e999 AS big"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if body := strings.TrimSpace(w.Body.String()); body != `{"rows":[{"big":"Infinity"}]}` {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestAPIQueryDuplicateColumnsIs400(t *testing.T) {
	e := newTestEnv(t)

	w := doJSON(t, e, "POST", "/api/v1/query", `{"sqlExpression":"SELECT 1 AS a, 2 AS a"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestWriteJSONEncodeFailureIs500(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, map[string]float64{"x": math.NaN()})

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["error"] == "" {
		t.Fatal("expected error message in body")
	}
}
