package server

import (
	"net/http"

	"github.com/jrsteele09/go-rollcall/internal/config"
	"github.com/jrsteele09/go-rollcall/internal/errors"
	"github.com/jrsteele09/go-rollcall/syncer"
	"github.com/jrsteele09/go-rollcall/token"
	"github.com/rs/zerolog/log"
)

type indexPageData struct {
	AppName   string
	Connected bool
	Account   string
	Courses   []config.Course
}

// IndexHandler is the page load. It completes a pending authorization when
// the provider redirects back with a code, then redirects to the same URL
// without the callback parameters so a reload cannot repeat the exchange.
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		isCallback := query.Has("code") || query.Has("error")

		connected, err := s.tokens.Initialize(r.Context(), query)
		if err != nil {
			log.Err(err).Msg("Authorization failed")
			s.notices.Notify(syncer.Notice{Level: syncer.LevelError, Message: authFailureMessage(err)})
		}

		if isCallback {
			http.Redirect(w, r, token.StripAuthParams(r.URL), http.StatusSeeOther)
			return
		}

		data := indexPageData{
			AppName:   s.config.GetAppName(),
			Connected: connected,
			Account:   s.tokens.Account(),
			Courses:   s.classroom.Courses(),
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := s.indexTmpl.Execute(w, data); err != nil {
			log.Err(err).Msg("Failed to render index")
		}
	}
}

// ConnectHandler starts the authorization flow by sending the browser to the
// provider.
func (s *Server) ConnectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authURL, err := s.tokens.StartAuthorization()
		if err != nil {
			log.Err(err).Msg("Failed to start authorization")
			http.Error(w, "Failed to start authorization", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

func authFailureMessage(err error) string {
	switch {
	case errors.Is(err, errors.ErrMissingVerifier):
		return "Connection expired before it completed, please reconnect"
	case errors.Is(err, errors.ErrAuthorizationDenied):
		return "Storage access was not granted"
	default:
		return "Could not connect to storage, please reconnect"
	}
}
