package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/search"
	"github.com/JakeFAU/websearch/internal/session"
)

const submitTimeout = 5 * time.Second

type crawlRequest struct {
	URL       string `json:"url"`
	PageLimit int    `json:"pageLimit"`
	SessionID string `json:"session_id"`
}

type crawlResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// startCrawl handles POST /api/crawl. The session is registered before it is
// queued, so a rejected submit still leaves the session visible.
func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "No URL provided")
		return
	}
	sess, err := s.sessions.Start(r.Context(), session.StartRequest{
		SeedURL:   req.URL,
		PageLimit: req.PageLimit,
		SessionID: req.SessionID,
	})
	if err != nil {
		s.fail(w, r, "start session", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), submitTimeout)
	defer cancel()
	if err := s.submitter.Submit(ctx, sess); err != nil {
		s.fail(w, r, "submit session", err)
		return
	}
	writeJSON(w, http.StatusOK, crawlResponse{
		Message: fmt.Sprintf("Crawl started for %s with a limit of %d pages and session ID %s.",
			sess.SeedURL, sess.PageLimit, sess.ID),
		SessionID: sess.ID,
	})
}

// getCrawlData handles GET /api/get-crawl-data?session_id=.
func (s *Server) getCrawlData(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "Session ID is missing")
		return
	}
	graph, err := s.sessions.Graph(r.Context(), id)
	if err != nil {
		s.fail(w, r, "crawl data", err)
		return
	}
	writeJSON(w, http.StatusOK, graph)
}

// search handles GET /api/search?query=.
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if strings.TrimSpace(query) == "" {
		writeError(w, http.StatusBadRequest, "No search query provided")
		return
	}
	results, err := s.searcher.Search(r.Context(), query)
	if err != nil {
		s.fail(w, r, "search", err)
		return
	}
	if results == nil {
		results = []search.Result{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) getStoredResults(w http.ResponseWriter, r *http.Request) {
	results, err := s.searcher.Stored(r.Context())
	if err != nil {
		s.fail(w, r, "stored results", err)
		return
	}
	if results == nil {
		results = []search.StoredResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) clearDatabase(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Clear(r.Context()); err != nil {
		s.fail(w, r, "clear database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Database cleared successfully"})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed",
			zap.String("request_id", requestID(r.Context())),
			zap.Error(err),
		)
	}
	writeError(w, status, err.Error())
}
