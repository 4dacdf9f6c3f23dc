package api

import (
	"net/http"
	"strconv"

	"github.com/s1-storage/s1/internal/journal"
)

func handleCacheStats(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Cache == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CACHE_NOT_CONFIGURED", "object cache is not configured", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, deps.Cache.Stats())
}

func handleCacheClear(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Cache == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CACHE_NOT_CONFIGURED", "object cache is not configured", false, nil)
		return
	}
	deps.Cache.Clear()
	writeJSON(w, http.StatusOK, map[string]any{"status": "cleared", "cache": deps.Cache.Stats()})
}

func handleSelectJournal(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Journal == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "JOURNAL_NOT_CONFIGURED", "select journal is not configured", false, nil)
		return
	}
	limit := journal.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", false, map[string]any{"limit": raw})
			return
		}
		limit = parsed
	}

	entries, err := deps.Journal.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "JOURNAL_ERROR", "failed to list select journal", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"limit":   journal.ClampLimit(limit),
	})
}

func handleJournalPrune(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Retention == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "RETENTION_NOT_CONFIGURED", "journal retention is not configured", false, nil)
		return
	}

	summary, err := deps.Retention.RunRetentionOnce(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "RETENTION_FAILED", "journal retention run failed", true, map[string]any{
			"details": err.Error(),
			"summary": summary,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "completed",
		"summary": summary,
	})
}
