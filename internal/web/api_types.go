package web

import "github.com/joestump/sqlitekit/internal/db"

// --- API Request Types ---

// APIBatchRequest is the body of POST /api/v1/batch.
type APIBatchRequest struct {
	Statements []db.Template `json:"statements"`
}

// APIUpsertRequest is the body of POST /api/v1/upsert.
type APIUpsertRequest struct {
	db.UpsertSpec
	Rows []db.Row `json:"rows"`
}

// --- API Response Types ---

// APIRowsResponse wraps query results.
type APIRowsResponse struct {
	Rows []db.Row `json:"rows"`
}

// APIScalarResponse wraps a single value.
type APIScalarResponse struct {
	Value db.Value `json:"value"`
}

// APIRowsAffectedResponse is returned by every mutating endpoint.
type APIRowsAffectedResponse struct {
	RowsAffected int64 `json:"rows_affected"`
}

// APITableVersionResponse is returned by GET /api/v1/tables/{name}/version.
type APITableVersionResponse struct {
	Table   string `json:"table"`
	Version int    `json:"version"`
}
