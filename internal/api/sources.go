package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/chatdb/chatdb/internal/auth"
	"github.com/chatdb/chatdb/internal/examples"
	"github.com/chatdb/chatdb/internal/explore"
	"github.com/chatdb/chatdb/internal/profile"
)

type askRequest struct {
	Utterance string `json:"utterance"`
	Execute   bool   `json:"execute"`
}

type examplesResponse struct {
	Source   string             `json:"source"`
	Keyword  string             `json:"keyword,omitempty"`
	Examples []examples.Example `json:"examples"`
}

func handleListSources(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireExplorer(deps, w, r) {
		return
	}
	sources, err := deps.Explorer.ListSources(r.Context())
	if err != nil {
		writeExploreError(r.Context(), w, err)
		return
	}
	if sources == nil {
		sources = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"backend": deps.Explorer.BackendName(), "sources": sources})
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireExplorer(deps, w, r) {
		return
	}
	source, ok := sourceFromPath(w, r)
	if !ok {
		return
	}
	snap, err := deps.Explorer.Schema(r.Context(), source)
	if err != nil {
		writeExploreError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func handleExamples(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireExplorer(deps, w, r) {
		return
	}
	source, ok := sourceFromPath(w, r)
	if !ok {
		return
	}
	execute := false
	if raw := strings.TrimSpace(r.URL.Query().Get("execute")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_PARAMETER", "execute must be a boolean", false, map[string]any{"execute": raw})
			return
		}
		execute = parsed
	}
	if execute && !requireQueryRunner(w, r) {
		return
	}
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))

	list, err := deps.Explorer.Examples(r.Context(), source, keyword, execute)
	if err != nil {
		writeExploreError(r.Context(), w, err)
		return
	}
	if list == nil {
		list = []examples.Example{}
	}
	writeJSON(w, http.StatusOK, examplesResponse{Source: source, Keyword: keyword, Examples: list})
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireExplorer(deps, w, r) {
		return
	}
	source, ok := sourceFromPath(w, r)
	if !ok {
		return
	}

	var request askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Utterance) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "UTTERANCE_REQUIRED", "utterance is required", false, nil)
		return
	}
	if request.Execute && !requireQueryRunner(w, r) {
		return
	}

	answer, err := deps.Explorer.Ask(r.Context(), source, request.Utterance, request.Execute)
	if err != nil {
		writeExploreError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func requireExplorer(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	if deps.Explorer == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPLORER_NOT_CONFIGURED", "explorer dependencies are not configured", false, nil)
		return false
	}
	return authorize(w, r, auth.RoleExplorer)
}

func requireQueryRunner(w http.ResponseWriter, r *http.Request) bool {
	return authorize(w, r, auth.RoleQueryRunner)
}

func authorize(w http.ResponseWriter, r *http.Request, role string) bool {
	if err := auth.Authorize(r.Context(), role); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, map[string]any{"required_role": role})
		return false
	}
	return true
}

func sourceFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	source := strings.TrimSpace(r.PathValue("source"))
	if source == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SOURCE_REQUIRED", "source is required", false, nil)
		return "", false
	}
	return source, true
}

func writeExploreError(ctx context.Context, w http.ResponseWriter, err error) {
	var execErr *explore.ExecutionError
	switch {
	case errors.Is(err, profile.ErrSourceNotFound):
		writeError(ctx, w, http.StatusNotFound, "SOURCE_NOT_FOUND", err.Error(), false, nil)
	case errors.Is(err, profile.ErrSourceUnavailable):
		writeError(ctx, w, http.StatusServiceUnavailable, "SOURCE_UNAVAILABLE", err.Error(), true, nil)
	case errors.As(err, &execErr):
		writeError(ctx, w, http.StatusBadGateway, "EXECUTION_FAILED", "query execution failed", false, map[string]any{
			"query":   execErr.Query.Text,
			"details": execErr.Err.Error(),
		})
	case errors.Is(err, context.DeadlineExceeded):
		writeError(ctx, w, http.StatusGatewayTimeout, "TIMEOUT", err.Error(), true, nil)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), false, nil)
	}
}
