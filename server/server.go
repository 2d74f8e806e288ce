package server

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-rollcall/classroom"
	"github.com/jrsteele09/go-rollcall/internal/config"
	"github.com/jrsteele09/go-rollcall/syncer"
	"github.com/jrsteele09/go-rollcall/token"
)

type Server struct {
	env       string // Environment (e.g., "DEV", "PROD")
	mux       *http.ServeMux
	routes    []string
	config    config.EnvConfig
	tokens    *token.Manager
	classroom *classroom.Controller
	notices   *syncer.Board
	indexTmpl *template.Template
}

func New(config config.EnvConfig, tokens *token.Manager, controller *classroom.Controller, notices *syncer.Board) (*Server, error) {
	if tokens == nil || controller == nil || notices == nil {
		return nil, fmt.Errorf("[Server New] token manager, controller and notice board are required")
	}

	indexTmpl, err := ParseTemplate("index.html")
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to parse index template: %w", err)
	}

	s := &Server{
		env:       config.GetEnv(),
		mux:       http.NewServeMux(),
		config:    config,
		tokens:    tokens,
		classroom: controller,
		notices:   notices,
		indexTmpl: indexTmpl,
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}
