// Package rest serves the playback history over HTTP/JSON.
package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	zlog "github.com/rs/zerolog/log"

	"github.com/spotifetch/spotifetch/internal/app/history"
)

type Server struct {
	router  chi.Router
	server  *http.Server
	history *history.Service
}

func NewServer(addr string, svc *history.Service) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		history: svc,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/currently-playing", s.handleCurrentlyPlaying)
	s.router.Route("/user/{userID}", func(r chi.Router) {
		r.Post("/history", s.handleRecordPlay)
		r.Get("/history", s.handleListHistory)
		r.Get("/top/tracks", s.handleTopTracks)
		r.Get("/top/artists", s.handleTopArtists)
		r.Get("/top/albums", s.handleTopAlbums)
	})

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	zlog.Info().Msgf("http server listening: addr=%s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
