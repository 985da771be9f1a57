package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/tedshelf-go/internal/apperr"
	"github.com/user/tedshelf-go/internal/catalog"
	"github.com/user/tedshelf-go/internal/ingest"
	"github.com/user/tedshelf-go/internal/lang"
	"github.com/user/tedshelf-go/internal/model"
	"github.com/user/tedshelf-go/internal/store"
	"github.com/user/tedshelf-go/internal/store/storetest"
)

const testSecret = "test-secret"

type fakeSubmitter struct {
	mu      sync.Mutex
	users   []ingest.User
	urls    []string
	summary *ingest.VideoSummary
	err     error
}

func (f *fakeSubmitter) Submit(_ context.Context, user ingest.User, pageURL string) (*ingest.VideoSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, user)
	f.urls = append(f.urls, pageURL)
	return f.summary, f.err
}

type testServer struct {
	handler   http.Handler
	auth      *Authenticator
	store     *store.GormStore
	submitter *fakeSubmitter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	resolver := lang.NewResolver([]string{"en", "ko", "ja"}, "en")
	st := storetest.New(t)
	auth := NewAuthenticator(testSecret, resolver)
	sub := &fakeSubmitter{}
	svc := catalog.NewService(st, resolver, 20, RecordInconsistencies)
	srv := NewServer(st, sub, svc, auth)
	return &testServer{handler: srv.Handler(), auth: auth, store: st, submitter: sub}
}

func (ts *testServer) token(t *testing.T, userID, language string) string {
	t.Helper()
	tok, err := ts.auth.IssueToken(userID, language, time.Hour)
	require.NoError(t, err)
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (ts *testServer) addTalk(t *testing.T, talkID string, langs ...string) uint {
	t.Helper()
	nt := &store.NewTalk{Talk: &model.Talk{TalkID: talkID, StreamURL: "https://hls.example.test/" + talkID, Duration: 60}}
	for _, l := range langs {
		nt.Bundles = append(nt.Bundles, &model.LanguageBundle{LanguageCode: l, Title: talkID + " " + l, Author: "Speaker"})
	}
	require.NoError(t, ts.store.CreateTalk(context.Background(), nt))
	return nt.Talk.VideoID
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Database)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	RecordIngestion(ingest.OutcomeCreated, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tedshelf_ingestions_total")
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t)

	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	otherKey, err := NewAuthenticator("other-secret", lang.NewResolver(nil, "en")).IssueToken("alice", "", time.Hour)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-token"},
		{"expired", expired},
		{"wrong key", otherKey},
		{"no subject", noSubject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := ts.do(t, http.MethodGet, "/api/my-videos", tt.token, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, apperr.KindUnauthorized.Code(), env.Error.Code)
			assert.NotEmpty(t, env.RequestID)
		})
	}
}

func TestAddVideo(t *testing.T) {
	ts := newTestServer(t)
	ts.submitter.summary = &ingest.VideoSummary{VideoID: 7, TalkID: "sample_talk", Title: "샘플", Created: true}

	rec, env := ts.do(t, http.MethodPost, "/api/my-videos", ts.token(t, "alice", "ko"),
		map[string]string{"tedUrl": "https://www.ted.com/talks/sample_talk"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.Success)

	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 7, data["videoId"])
	assert.Equal(t, "샘플", data["title"])

	require.Len(t, ts.submitter.users, 1)
	assert.Equal(t, ingest.User{ID: "alice", Language: "ko"}, ts.submitter.users[0])
	assert.Equal(t, "https://www.ted.com/talks/sample_talk", ts.submitter.urls[0])

	// Without a lang claim the Accept-Language header decides
	ts.submitter.summary = &ingest.VideoSummary{VideoID: 7}
	rec, _ = ts.do(t, http.MethodPost, "/api/my-videos", ts.token(t, "bob", ""),
		map[string]string{"tedUrl": "https://www.ted.com/talks/sample_talk"},
		"Accept-Language", "ja-JP,ja;q=0.9,en;q=0.5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ja", ts.submitter.users[1].Language)
}

func TestAddVideo_Validation(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, "alice", "en")

	tests := []struct {
		name string
		body any
	}{
		{"empty body", nil},
		{"malformed", `{"tedUrl":`},
		{"missing url", map[string]string{}},
		{"not a url", map[string]string{"tedUrl": "sample talk"}},
		{"unknown field", map[string]string{"tedUrl": "https://www.ted.com/talks/x", "extra": "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := ts.do(t, http.MethodPost, "/api/my-videos", token, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, apperr.KindInvalidInput.Code(), env.Error.Code)
		})
	}
	assert.Empty(t, ts.submitter.users)
}

func TestAddVideo_ErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, "alice", "en")

	tests := []struct {
		kind   apperr.Kind
		status int
	}{
		{apperr.KindUnsupportedLanguage, http.StatusUnprocessableEntity},
		{apperr.KindNoStreamAvailable, http.StatusUnprocessableEntity},
		{apperr.KindUpstreamUnavailable, http.StatusBadGateway},
		{apperr.KindIncomplete, http.StatusServiceUnavailable},
		{apperr.KindStoreFailure, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			ts.submitter.err = apperr.Wrap(tt.kind, io.ErrUnexpectedEOF, "")
			rec, env := ts.do(t, http.MethodPost, "/api/my-videos", token,
				map[string]string{"tedUrl": "https://www.ted.com/talks/sample_talk"})
			assert.Equal(t, tt.status, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.kind.Code(), env.Error.Code)
			assert.NotContains(t, env.Error.Message, io.ErrUnexpectedEOF.Error(), "causes must not leak")
		})
	}
}

func TestListFavoriteRemove(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	token := ts.token(t, "alice", "ko")

	first := ts.addTalk(t, "first", "en", "ko")
	second := ts.addTalk(t, "second", "en")
	for _, id := range []uint{first, second} {
		_, err := ts.store.AddEntry(ctx, "alice", id)
		require.NoError(t, err)
	}

	rec, env := ts.do(t, http.MethodPut, "/api/my-videos/favorite", token,
		map[string]any{"videoId": first, "isFavorite": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, env.Success)

	rec, env = ts.do(t, http.MethodGet, "/api/my-videos?page=0", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := env.Data.(map[string]any)
	assert.EqualValues(t, 2, data["totalCount"])
	assert.EqualValues(t, 1, data["totalPage"])
	assert.EqualValues(t, 1, data["currentPage"])
	list := data["list"].([]any)
	require.Len(t, list, 2)
	newest := list[0].(map[string]any)
	assert.EqualValues(t, second, newest["videoId"])
	assert.Equal(t, false, newest["languageAvailable"])
	oldest := list[1].(map[string]any)
	assert.Equal(t, "first ko", oldest["title"])
	assert.Equal(t, true, oldest["isFavorite"])

	rec, env = ts.do(t, http.MethodPut, "/api/my-videos/favorite", token,
		map[string]any{"videoId": 999, "isFavorite": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperr.KindNotFound.Code(), env.Error.Code)

	rec, _ = ts.do(t, http.MethodPut, "/api/my-videos/favorite", token, map[string]any{"videoId": first})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "isFavorite is required")

	rec, _ = ts.do(t, http.MethodDelete, "/api/my-videos", token, map[string]any{"videoId": first})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = ts.do(t, http.MethodDelete, "/api/my-videos", token, map[string]any{"videoId": first})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/my-videos?page=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Other users see their own list only
	rec, env = ts.do(t, http.MethodGet, "/api/my-videos", ts.token(t, "bob", "en"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.Data.(map[string]any)["list"])
}

func TestListReportsMissingTalks(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	token := ts.token(t, "alice", "en")

	good := ts.addTalk(t, "good", "en")
	_, err := ts.store.AddEntry(ctx, "alice", good)
	require.NoError(t, err)
	const missing uint = 9999
	_, err = ts.store.AddEntry(ctx, "alice", missing)
	require.NoError(t, err)

	rec, env := ts.do(t, http.MethodGet, "/api/my-videos", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, env.Success)
	require.Len(t, env.Warnings, 1)
	assert.Equal(t, apperr.KindStoreInconsistency.Code(), env.Warnings[0].Code)
	assert.NotEmpty(t, env.Warnings[0].Message)

	data := env.Data.(map[string]any)
	require.Len(t, data["list"].([]any), 1)
	assert.Equal(t, []any{float64(missing)}, data["missingVideoIds"])

	// A consistent page has no warnings
	_, env = ts.do(t, http.MethodGet, "/api/my-videos", ts.token(t, "bob", "en"), nil)
	assert.Empty(t, env.Warnings)
	assert.NotContains(t, env.Data.(map[string]any), "missingVideoIds")
}

func TestRequestIDPropagation(t *testing.T) {
	ts := newTestServer(t)

	_, env := ts.do(t, http.MethodGet, "/api/my-videos", "", nil, "X-Request-ID", "req-123")
	assert.Equal(t, "req-123", env.RequestID)

	rec, env := ts.do(t, http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, env.RequestID)
}
