package web

import (
	"io/fs"
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterRoutes registers the web GUI routes on r. Pages are served at /,
// /login and the form endpoints; static assets come from the embedded
// filesystem at /static/.
func RegisterRoutes(r *mux.Router, h *Handler) {
	staticFS, _ := fs.Sub(StaticFS, "static")
	r.PathPrefix("/static/").
		Handler(http.StripPrefix("/static/", http.FileServerFS(staticFS))).
		Methods(http.MethodGet)

	r.HandleFunc("/", h.Dashboard).Methods(http.MethodGet)
	r.HandleFunc("/login", h.LoginForm).Methods(http.MethodGet)
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)
	r.HandleFunc("/analyze", h.Analyze).Methods(http.MethodPost)
}
