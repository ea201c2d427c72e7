// Package mcptools exposes the spec.md §6 tool surface over MCP
// (github.com/mark3labs/mcp-go), calling the same internal/modules/analysis
// orchestrator internal/server's HTTP routes call, so the two surfaces can
// never diverge in semantics. Grounded on the teacher's handler style in
// internal/server/system_handlers.go (typed request -> typed envelope),
// generalized to the tool-call protocol mcp-go defines.
package mcptools

import (
	"encoding/json"
	"time"

	"github.com/henrysouchien/portfolio-risk-engine/internal/apperr"
)

// Metadata is every result's provenance block (spec.md §6).
type Metadata struct {
	AnalysisDate  time.Time `json:"analysis_date"`
	PortfolioName string    `json:"portfolio_name,omitempty"`
	UserID        string    `json:"user_id"`
	Scope         string    `json:"scope,omitempty"`
}

// Flag mirrors a risk.Flag in the wire format tools return.
type Flag struct {
	Code      string  `json:"code"`
	Severity  string  `json:"severity"`
	Message   string  `json:"message"`
	Limit     float64 `json:"limit"`
	Measured  float64 `json:"measured"`
}

// Snapshot is the small agent-consumption projection every
// format="agent" response carries: a verdict string, scalar metrics, and
// a short flag list (spec.md §6).
type Snapshot struct {
	Verdict string             `json:"verdict"`
	Metrics map[string]float64 `json:"metrics"`
	Flags   []string           `json:"flags"`
}

// Result is the stable envelope every tool returns: {success, summary,
// detail, metadata, flags} plus an optional snapshot when format="agent".
type Result struct {
	Success  bool        `json:"success"`
	Summary  any         `json:"summary"`
	Detail   any         `json:"detail,omitempty"`
	Metadata Metadata    `json:"metadata"`
	Flags    []Flag      `json:"flags"`
	Snapshot *Snapshot   `json:"snapshot,omitempty"`
	FilePath string      `json:"file_path,omitempty"`
}

// errorEnvelope is what a failed tool call returns: success=false, the
// apperr.Kind as a stable code, and a human message. Never panics on an
// untyped error — falls back to apperr.KindInternal.
type errorEnvelope struct {
	Success bool           `json:"success"`
	Code    apperr.Kind    `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func errorResult(err error) string {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Internal("unclassified", err)
	}
	env := errorEnvelope{Success: false, Code: appErr.Kind, Message: appErr.Message, Details: appErr.Details}
	b, marshalErr := json.Marshal(env)
	if marshalErr != nil {
		return `{"success":false,"code":"INTERNAL","message":"failed to marshal error"}`
	}
	return string(b)
}

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return errorResult(apperr.Internal("envelope-marshal", err))
	}
	return string(b)
}
