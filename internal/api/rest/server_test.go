package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/spotifetch/spotifetch/internal/app/history"
	"github.com/spotifetch/spotifetch/internal/domain/play"
	"github.com/spotifetch/spotifetch/internal/infra/spotify"
)

type fakeSource struct {
	snap *play.Snapshot
	err  error
}

func (f *fakeSource) CurrentlyPlaying(ctx context.Context) (*play.Snapshot, error) {
	return f.snap, f.err
}

type fakeStore struct {
	appended []play.Event
	events   []play.Event
	tracks   []play.TrackRank
	artists  []play.ArtistRank
	albums   []play.AlbumRank

	listIdentity string
	listSkip     int
	listLimit    int
	listSince    *time.Time
}

func (f *fakeStore) Append(ctx context.Context, ev play.Event) (play.Event, error) {
	f.appended = append(f.appended, ev)
	return ev, nil
}

func (f *fakeStore) List(ctx context.Context, identity string, skip, limit int, since *time.Time) ([]play.Event, error) {
	f.listIdentity = identity
	f.listSkip = skip
	f.listLimit = limit
	f.listSince = since
	return f.events, nil
}

func (f *fakeStore) TopTracks(ctx context.Context, identity string, limit int, since *time.Time) ([]play.TrackRank, error) {
	return f.tracks, nil
}

func (f *fakeStore) TopArtists(ctx context.Context, identity string, limit int, since *time.Time) ([]play.ArtistRank, error) {
	return f.artists, nil
}

func (f *fakeStore) TopAlbums(ctx context.Context, identity string, limit int, since *time.Time) ([]play.AlbumRank, error) {
	return f.albums, nil
}

func newTestServer(source *fakeSource, store *fakeStore) *httptest.Server {
	svc := history.New(source, store, nil)
	return httptest.NewServer(NewServer(":0", svc).Handler())
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestServer_Healthz(t *testing.T) {
	ts := newTestServer(&fakeSource{}, &fakeStore{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string]string](t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestServer_CurrentlyPlaying(t *testing.T) {
	source := &fakeSource{snap: &play.Snapshot{
		Playing:   true,
		TrackID:   "t1",
		TrackName: "One More Time",
		Artists:   []string{"Daft Punk"},
		AlbumName: "Discovery",
	}}
	ts := newTestServer(source, &fakeStore{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/currently-playing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string]any](t, resp)
	assert.Equal(t, true, body["playing"])
	assert.Equal(t, "One More Time", body["track_name"])
}

func TestServer_CurrentlyPlaying_Stopped(t *testing.T) {
	ts := newTestServer(&fakeSource{snap: &play.Snapshot{}}, &fakeStore{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/currently-playing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string]any](t, resp)
	assert.Equal(t, false, body["playing"])
}

func TestServer_CurrentlyPlaying_NotAuthenticated(t *testing.T) {
	ts := newTestServer(&fakeSource{err: spotify.ErrNotAuthenticated}, &fakeStore{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/currently-playing")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_RecordPlay_RevokedCredential(t *testing.T) {
	// A rejected token refresh surfaces as 401 on the manual record path,
	// same as a missing credential, not as a server error.
	refreshErr := errors.Wrap(&oauth2.RetrieveError{
		ErrorCode: "invalid_grant",
	}, "failed to get current playback")
	ts := newTestServer(&fakeSource{err: refreshErr}, &fakeStore{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/user/u1/history", "application/json", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_RecordPlay(t *testing.T) {
	source := &fakeSource{snap: &play.Snapshot{
		Playing:    true,
		TrackID:    "t1",
		TrackName:  "One More Time",
		Artists:    []string{"Daft Punk"},
		AlbumName:  "Discovery",
		ObservedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}}
	store := &fakeStore{}
	ts := newTestServer(source, store)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/user/u1/history", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "t1", body["track_id"])
	assert.Equal(t, "Daft Punk", body["artist_name"])

	require.Len(t, store.appended, 1)
	assert.Equal(t, "u1", store.appended[0].Identity)
}

func TestServer_RecordPlay_NothingPlaying(t *testing.T) {
	ts := newTestServer(&fakeSource{snap: &play.Snapshot{}}, &fakeStore{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/user/u1/history", "application/json", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ListHistory(t *testing.T) {
	store := &fakeStore{events: []play.Event{
		{Identity: "u1", TrackID: "t2", TrackName: "Aerodynamic", ArtistName: "Daft Punk", AlbumName: "Discovery", PlayedAt: time.Date(2024, 5, 1, 12, 3, 0, 0, time.UTC)},
		{Identity: "u1", TrackID: "t1", TrackName: "One More Time", ArtistName: "Daft Punk", AlbumName: "Discovery", PlayedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}}
	ts := newTestServer(&fakeSource{}, store)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/user/u1/history?skip=5&limit=10&since=2024-05-01T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[[]map[string]any](t, resp)
	require.Len(t, body, 2)
	assert.Equal(t, "t2", body[0]["track_id"])

	assert.Equal(t, "u1", store.listIdentity)
	assert.Equal(t, 5, store.listSkip)
	assert.Equal(t, 10, store.listLimit)
	require.NotNil(t, store.listSince)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), store.listSince.UTC())
}

func TestServer_ListHistory_BadParams(t *testing.T) {
	ts := newTestServer(&fakeSource{}, &fakeStore{})
	defer ts.Close()

	tests := []struct {
		name  string
		query string
	}{
		{name: "non-numeric skip", query: "?skip=abc"},
		{name: "negative skip", query: "?skip=-1"},
		{name: "non-numeric limit", query: "?limit=ten"},
		{name: "limit too large", query: "?limit=1000"},
		{name: "bad since", query: "?since=yesterday"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/user/u1/history" + tt.query)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestServer_TopTracks(t *testing.T) {
	store := &fakeStore{tracks: []play.TrackRank{
		{TrackID: "t1", TrackName: "One More Time", ArtistName: "Daft Punk", AlbumName: "Discovery", PlayCount: 4},
		{TrackID: "t2", TrackName: "Aerodynamic", ArtistName: "Daft Punk", AlbumName: "Discovery", PlayCount: 2},
	}}
	ts := newTestServer(&fakeSource{}, store)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/user/u1/top/tracks")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[[]map[string]any](t, resp)
	require.Len(t, body, 2)
	assert.Equal(t, "t1", body[0]["track_id"])
	assert.Equal(t, float64(4), body[0]["play_count"])
}

func TestServer_TopArtistsAndAlbums(t *testing.T) {
	store := &fakeStore{
		artists: []play.ArtistRank{{ArtistName: "Daft Punk", PlayCount: 6}},
		albums:  []play.AlbumRank{{AlbumName: "Discovery", ArtistName: "Daft Punk", PlayCount: 6}},
	}
	ts := newTestServer(&fakeSource{}, store)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/user/u1/top/artists")
	require.NoError(t, err)
	artists := decodeBody[[]map[string]any](t, resp)
	require.Len(t, artists, 1)
	assert.Equal(t, "Daft Punk", artists[0]["artist_name"])

	resp, err = http.Get(ts.URL + "/user/u1/top/albums")
	require.NoError(t, err)
	albums := decodeBody[[]map[string]any](t, resp)
	require.Len(t, albums, 1)
	assert.Equal(t, "Discovery", albums[0]["album_name"])
}

func TestServer_EmptyListsEncodeAsArrays(t *testing.T) {
	ts := newTestServer(&fakeSource{}, &fakeStore{})
	defer ts.Close()

	for _, path := range []string{"/user/u1/history", "/user/u1/top/tracks", "/user/u1/top/artists", "/user/u1/top/albums"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)

		body := decodeBody[[]map[string]any](t, resp)
		assert.NotNil(t, body, path)
		assert.Empty(t, body, path)
	}
}
