package http

import (
	"github.com/fyrsmithlabs/scorekeep/internal/state"
	"github.com/fyrsmithlabs/scorekeep/internal/vcs"
	"github.com/fyrsmithlabs/scorekeep/internal/workspace"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Projects int    `json:"projects"`
}

// CreateRequest is the request body for POST /api/v1/projects.
type CreateRequest struct {
	Name    string `json:"name"`
	Example bool   `json:"example"`
}

// OpenRequest is the request body for POST /api/v1/projects/open.
type OpenRequest struct {
	Path string `json:"path"`
}

// ImportRequest is the request body for POST /api/v1/projects/import.
type ImportRequest struct {
	File string `json:"file"`
}

// CheckoutRequest is the request body for POST /api/v1/projects/checkout.
type CheckoutRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CommitRequest is the request body for POST /api/v1/projects/:id/commit.
type CommitRequest struct {
	Message string `json:"message"`
}

// ProjectsResponse lists open projects in tree order.
type ProjectsResponse struct {
	Projects []workspace.Summary `json:"projects"`
}

// HistoryResponse lists revisions newest first.
type HistoryResponse struct {
	ProjectID string         `json:"project_id"`
	Revisions []vcs.Revision `json:"revisions"`
}

// CommitResponse is the response body of a commit.
type CommitResponse struct {
	ProjectID string `json:"project_id"`
	Hash      string `json:"hash"`
}

// RecentResponse lists recently used projects newest first.
type RecentResponse struct {
	Projects []state.RecentProject `json:"projects"`
}
