package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/websearch/internal/crawler"
)

const (
	defaultPagesLimit = 100
	maxPagesLimit     = 1000
)

type pageDTO struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Rank        int       `json:"rank"`
	Links       int       `json:"links"`
	ContentHash string    `json:"content_hash,omitempty"`
	ArchiveURI  string    `json:"archive_uri,omitempty"`
	CrawledAt   time.Time `json:"crawled_at"`
}

// getSession handles GET /api/sessions/{session_id}. It returns the session
// with its stored page count, 404 for unknown ids, or 500 on store failure.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "session_id"))
	status, err := s.sessions.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, crawler.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.fail(w, r, "session status", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// listSessionPages handles GET /api/sessions/{session_id}/pages?limit=&offset=.
func (s *Server) listSessionPages(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "session_id"))
	limit, offset, err := parseLimitOffset(r, defaultPagesLimit, maxPagesLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pages, err := s.sessions.Pages(r.Context(), id)
	if err != nil {
		if errors.Is(err, crawler.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.fail(w, r, "session pages", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total": len(pages),
		"pages": toPageDTOs(paginate(pages, limit, offset)),
	})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func paginate(pages []crawler.PageRecord, limit, offset int) []crawler.PageRecord {
	if offset >= len(pages) {
		return nil
	}
	end := min(offset+limit, len(pages))
	return pages[offset:end]
}

func toPageDTOs(in []crawler.PageRecord) []pageDTO {
	out := make([]pageDTO, 0, len(in))
	for _, p := range in {
		out = append(out, pageDTO{
			URL:         p.URL,
			Title:       p.Title,
			Rank:        p.Rank,
			Links:       len(p.Links),
			ContentHash: p.ContentHash,
			ArchiveURI:  p.ArchiveURI,
			CrawledAt:   p.CrawledAt,
		})
	}
	return out
}
