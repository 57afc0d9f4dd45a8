package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/sw33tLie/fanmirror/internal/utils"
	"github.com/sw33tLie/fanmirror/pkg/search"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.Log.Debugf("Failed to write response: %v", err)
	}
}

// handleImportLogs serves the client log of an import so it can be polled
// while the import runs.
func (s *Server) handleImportLogs(w http.ResponseWriter, r *http.Request) {
	lines, err := s.DB.ListLogs(r.Context(), r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, lines)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.DB.GetStats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

type ArtistResult struct {
	ID        string  `json:"id"`
	Service   string  `json:"service"`
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	PostCount int     `json:"post_count"`
}

func (s *Server) handleArtists(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		http.Error(w, "missing q parameter", http.StatusBadRequest)
		return
	}
	limit := 20
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}

	results, err := s.Directory.Search(query, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]ArtistResult, 0, len(results))
	for _, res := range results {
		out = append(out, s.artistResult(r, res))
	}
	writeJSON(w, out)
}

func (s *Server) artistResult(r *http.Request, res search.Result) ArtistResult {
	a := ArtistResult{ID: res.ID, Service: res.Service, Name: res.Name, Score: res.Score}
	if n, err := s.Directory.PostCount(r.Context(), res.Service, res.ID); err == nil {
		a.PostCount = n
	}
	return a
}

type FlagRequest struct {
	Service  string `json:"service"`
	ArtistID string `json:"artist_id"`
	PostID   string `json:"post_id"`
}

func (s *Server) handleFlagPost(w http.ResponseWriter, r *http.Request) {
	var req FlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Service == "" || req.ArtistID == "" || req.PostID == "" {
		http.Error(w, "service, artist_id and post_id are required", http.StatusBadRequest)
		return
	}

	if err := s.DB.FlagPost(r.Context(), req.Service, req.ArtistID, req.PostID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
