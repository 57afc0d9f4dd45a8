package server

import (
	"net/http"

	"github.com/sw33tLie/fanmirror/internal/utils"
	"github.com/sw33tLie/fanmirror/pkg/artists"
	"github.com/sw33tLie/fanmirror/pkg/storage"
)

type Server struct {
	DB        *storage.DB
	Directory *artists.Directory
	Username  string
	Password  string
}

func New(db *storage.DB, dir *artists.Directory, user, pass string) *Server {
	return &Server{
		DB:        db,
		Directory: dir,
		Username:  user,
		Password:  pass,
	}
}

// Handler returns the API routes. Every route sits behind basic auth when a
// username or password is configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/imports/{id}/logs", s.basicAuth(s.handleImportLogs))
	mux.HandleFunc("GET /api/stats", s.basicAuth(s.handleStats))
	mux.HandleFunc("GET /api/artists", s.basicAuth(s.handleArtists))
	mux.HandleFunc("POST /api/posts/flag", s.basicAuth(s.handleFlagPost))

	return mux
}

func (s *Server) Start(addr string) error {
	utils.Log.Infof("Starting server on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Username == "" && s.Password == "" {
			next(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || pass != s.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
