package rest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	zlog "github.com/rs/zerolog/log"

	"github.com/spotifetch/spotifetch/internal/app/history"
	"github.com/spotifetch/spotifetch/internal/domain/play"
	"github.com/spotifetch/spotifetch/internal/infra/spotify"
)

type playResponse struct {
	TrackID       string    `json:"track_id"`
	TrackName     string    `json:"track_name"`
	ArtistName    string    `json:"artist_name"`
	AlbumName     string    `json:"album_name"`
	AlbumImageURL string    `json:"album_image_url,omitempty"`
	PlayedAt      time.Time `json:"played_at"`
}

type nowPlayingResponse struct {
	Playing       bool     `json:"playing"`
	TrackID       string   `json:"track_id,omitempty"`
	TrackName     string   `json:"track_name,omitempty"`
	Artists       []string `json:"artists,omitempty"`
	AlbumName     string   `json:"album_name,omitempty"`
	AlbumImageURL string   `json:"album_image_url,omitempty"`
}

type trackRankResponse struct {
	TrackID       string `json:"track_id"`
	TrackName     string `json:"track_name"`
	ArtistName    string `json:"artist_name"`
	AlbumName     string `json:"album_name"`
	AlbumImageURL string `json:"album_image_url,omitempty"`
	PlayCount     int    `json:"play_count"`
}

type artistRankResponse struct {
	ArtistName     string `json:"artist_name"`
	ArtistImageURL string `json:"artist_image_url,omitempty"`
	PlayCount      int    `json:"play_count"`
}

type albumRankResponse struct {
	AlbumName     string `json:"album_name"`
	ArtistName    string `json:"artist_name"`
	AlbumImageURL string `json:"album_image_url,omitempty"`
	PlayCount     int    `json:"play_count"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCurrentlyPlaying(w http.ResponseWriter, r *http.Request) {
	snap, err := s.history.CurrentlyPlaying(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}

	resp := nowPlayingResponse{}
	if snap != nil && snap.HasTrack() {
		resp = nowPlayingResponse{
			Playing:       true,
			TrackID:       snap.TrackID,
			TrackName:     snap.TrackName,
			Artists:       snap.Artists,
			AlbumName:     snap.AlbumName,
			AlbumImageURL: snap.AlbumImageURL,
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecordPlay(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	ev, err := s.history.RecordIfPlaying(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toPlayResponse(ev))
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	skip, limit, since, err := listParams(r)
	if err != nil {
		respondBadRequest(w, err)
		return
	}

	events, err := s.history.List(r.Context(), userID, skip, limit, since)
	if err != nil {
		respondError(w, err)
		return
	}

	resp := make([]playResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, toPlayResponse(ev))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTopTracks(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	_, limit, since, err := listParams(r)
	if err != nil {
		respondBadRequest(w, err)
		return
	}

	ranks, err := s.history.TopTracks(r.Context(), userID, limit, since)
	if err != nil {
		respondError(w, err)
		return
	}

	resp := make([]trackRankResponse, 0, len(ranks))
	for _, rank := range ranks {
		resp = append(resp, trackRankResponse{
			TrackID:       rank.TrackID,
			TrackName:     rank.TrackName,
			ArtistName:    rank.ArtistName,
			AlbumName:     rank.AlbumName,
			AlbumImageURL: rank.AlbumImageURL,
			PlayCount:     rank.PlayCount,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTopArtists(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	_, limit, since, err := listParams(r)
	if err != nil {
		respondBadRequest(w, err)
		return
	}

	ranks, err := s.history.TopArtists(r.Context(), userID, limit, since)
	if err != nil {
		respondError(w, err)
		return
	}

	resp := make([]artistRankResponse, 0, len(ranks))
	for _, rank := range ranks {
		resp = append(resp, artistRankResponse{
			ArtistName:     rank.ArtistName,
			ArtistImageURL: rank.ArtistImageURL,
			PlayCount:      rank.PlayCount,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTopAlbums(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	_, limit, since, err := listParams(r)
	if err != nil {
		respondBadRequest(w, err)
		return
	}

	ranks, err := s.history.TopAlbums(r.Context(), userID, limit, since)
	if err != nil {
		respondError(w, err)
		return
	}

	resp := make([]albumRankResponse, 0, len(ranks))
	for _, rank := range ranks {
		resp = append(resp, albumRankResponse{
			AlbumName:     rank.AlbumName,
			ArtistName:    rank.ArtistName,
			AlbumImageURL: rank.AlbumImageURL,
			PlayCount:     rank.PlayCount,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

// listParams parses the shared skip/limit/since query parameters.
// A zero limit defers to the service default.
func listParams(r *http.Request) (skip, limit int, since *time.Time, err error) {
	q := r.URL.Query()

	if raw := q.Get("skip"); raw != "" {
		skip, err = strconv.Atoi(raw)
		if err != nil || skip < 0 {
			return 0, 0, nil, errors.New("skip must be a non-negative integer")
		}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, nil, errors.New("limit must be an integer")
		}
	}
	if raw := q.Get("since"); raw != "" {
		t, perr := time.Parse(time.RFC3339, raw)
		if perr != nil {
			return 0, 0, nil, errors.New("since must be an RFC 3339 timestamp")
		}
		since = &t
	}
	return skip, limit, since, nil
}

func toPlayResponse(ev play.Event) playResponse {
	return playResponse{
		TrackID:       ev.TrackID,
		TrackName:     ev.TrackName,
		ArtistName:    ev.ArtistName,
		AlbumName:     ev.AlbumName,
		AlbumImageURL: ev.AlbumImageURL,
		PlayedAt:      ev.PlayedAt,
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zlog.Error().Msgf("failed to encode response: error=%v", err)
	}
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, spotify.ErrNotAuthenticated):
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated with spotify"})
	case spotify.IsAuthError(err):
		// Rejected credential refresh: the user must re-authenticate.
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "spotify credential rejected, re-authentication required"})
	case errors.Is(err, history.ErrNotPlaying):
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "nothing is playing"})
	case errors.Is(err, history.ErrInvalidLimit):
		respondBadRequest(w, err)
	default:
		zlog.Error().Msgf("request failed: error=%v", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func respondBadRequest(w http.ResponseWriter, err error) {
	respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}
