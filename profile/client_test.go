package profile_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-social-session/internal/utils"
	"github.com/jrsteele09/go-social-session/metrics"
	"github.com/jrsteele09/go-social-session/profile"
)

const testToken = "bearer-token-1"

const userJSON = `{"data":{"user":{
	"id":"u1","name":"Ada Lovelace","username":"ada","email":"ada@example.com",
	"emailVerified":true,"bio":"math","profileImage":"https://cdn.example.com/ada.png",
	"authProvider":"facebook","createdAt":"2025-01-02T03:04:05Z"}}}`

type recordedRequest struct {
	Method      string
	Path        string
	Auth        string
	ContentType string
	Body        []byte
}

type requestLog struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (l *requestLog) all() []recordedRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recordedRequest(nil), l.requests...)
}

// apiFake answers every request with status and body and records it.
func apiFake(t *testing.T, status int, body string) (*httptest.Server, *requestLog) {
	log := &requestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		log.mu.Lock()
		defer log.mu.Unlock()
		log.requests = append(log.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			Auth:        r.Header.Get("Authorization"),
			ContentType: r.Header.Get("Content-Type"),
			Body:        raw,
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, log
}

func newClient(t *testing.T, srv *httptest.Server, options ...profile.ClientOption) *profile.Client {
	c, err := profile.New(srv.URL+"/api/users", append([]profile.ClientOption{profile.WithHTTPClient(srv.Client())}, options...)...)
	require.NoError(t, err)
	c.SetToken(testToken)
	return c
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	_, err := profile.New("ftp://example.com")
	require.Error(t, err)
	_, err = profile.New("://nope")
	require.Error(t, err)
}

func TestMe(t *testing.T) {
	srv, reqs := apiFake(t, http.StatusOK, userJSON)
	c := newClient(t, srv)

	user, err := c.Me(context.Background())
	require.NoError(t, err)
	require.Equal(t, "u1", user.ID)
	require.Equal(t, "ada", user.Username)
	require.Equal(t, "math", utils.Value(user.Bio))
	require.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), *user.CreatedAt)
	require.Nil(t, user.UpdatedAt)

	require.Len(t, reqs.all(), 1)
	require.Equal(t, http.MethodGet, reqs.all()[0].Method)
	require.Equal(t, "/api/users/me", reqs.all()[0].Path)
	require.Equal(t, "Bearer "+testToken, reqs.all()[0].Auth)
}

func TestGetUser(t *testing.T) {
	srv, reqs := apiFake(t, http.StatusOK, userJSON)
	c := newClient(t, srv)

	_, err := c.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "/api/users/u1", reqs.all()[0].Path)

	_, err = c.GetUser(context.Background(), " ")
	require.Error(t, err)
	require.Len(t, reqs.all(), 1)
}

func TestDeleteProfileImage(t *testing.T) {
	srv, reqs := apiFake(t, http.StatusOK, userJSON)
	c := newClient(t, srv)

	_, err := c.DeleteProfileImage(context.Background())
	require.NoError(t, err)
	require.Equal(t, http.MethodDelete, reqs.all()[0].Method)
	require.Equal(t, "/api/users/profile/image", reqs.all()[0].Path)
}

func TestDeleteAccount(t *testing.T) {
	srv, reqs := apiFake(t, http.StatusOK, `{"message":"Account deleted"}`)
	c := newClient(t, srv)

	require.NoError(t, c.DeleteAccount(context.Background(), profile.DeleteAccountRequest{Password: "hunter2"}))
	require.Equal(t, http.MethodDelete, reqs.all()[0].Method)
	require.Equal(t, "/api/users/deleteAccount", reqs.all()[0].Path)
	require.Equal(t, "application/json", reqs.all()[0].ContentType)
	require.JSONEq(t, `{"password":"hunter2"}`, string(reqs.all()[0].Body))

	require.NoError(t, c.DeleteAccount(context.Background(), profile.DeleteAccountRequest{}))
	require.JSONEq(t, `{}`, string(reqs.all()[1].Body))
}

func TestUpdateProfile_Multipart(t *testing.T) {
	var (
		fields   map[string]string
		filename string
		fileType string
		fileData []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/api/users/profile", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
		file, header, err := r.FormFile("profileImage")
		require.NoError(t, err)
		defer file.Close()
		filename = header.Filename
		fileType = header.Header.Get("Content-Type")
		fileData, err = io.ReadAll(file)
		require.NoError(t, err)
		_, _ = w.Write([]byte(userJSON))
	}))
	defer srv.Close()
	c := newClient(t, srv)

	png := []byte("\x89PNG\r\n\x1a\n0000")
	user, err := c.UpdateProfile(context.Background(), profile.UpdateRequest{
		Name:  utils.Ptr("Ada Lovelace"),
		Bio:   utils.Ptr(""),
		Image: &profile.Image{Filename: "/tmp/ada.png", Body: strings.NewReader(string(png))},
	})
	require.NoError(t, err)
	require.Equal(t, "u1", user.ID)

	require.Equal(t, map[string]string{"name": "Ada Lovelace", "bio": ""}, fields)
	require.Equal(t, "ada.png", filename)
	require.Equal(t, "image/png", fileType)
	require.Equal(t, png, fileData)
}

func TestUpdateProfile_RejectsEmptyUpdate(t *testing.T) {
	srv, reqs := apiFake(t, http.StatusOK, userJSON)
	c := newClient(t, srv)

	_, err := c.UpdateProfile(context.Background(), profile.UpdateRequest{})
	require.ErrorIs(t, err, profile.ErrEmptyUpdate)
	require.Empty(t, reqs.all())
}

func TestOperations_RequireToken(t *testing.T) {
	srv, reqs := apiFake(t, http.StatusOK, userJSON)
	c := newClient(t, srv)
	c.ClearToken()

	_, err := c.Me(context.Background())
	require.ErrorIs(t, err, profile.ErrNoToken)
	_, err = c.UpdateProfile(context.Background(), profile.UpdateRequest{Name: utils.Ptr("x")})
	require.ErrorIs(t, err, profile.ErrNoToken)
	require.ErrorIs(t, c.DeleteAccount(context.Background(), profile.DeleteAccountRequest{}), profile.ErrNoToken)
	require.Empty(t, reqs.all())
}

func TestAPIError_Messages(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"envelope message", http.StatusBadRequest, `{"message":"Username already taken"}`, "Username already taken"},
		{"no envelope", http.StatusBadGateway, `<html>bad gateway</html>`, "request failed with status 502"},
		{"empty message", http.StatusNotFound, `{"message":""}`, "request failed with status 404"},
		{"empty body", http.StatusUnauthorized, ``, "request failed with status 401"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := apiFake(t, tt.status, tt.body)
			c := newClient(t, srv)

			_, err := c.Me(context.Background())
			var apiErr *profile.APIError
			require.ErrorAs(t, err, &apiErr)
			require.Equal(t, tt.status, apiErr.StatusCode)
			require.Equal(t, tt.message, apiErr.Message)
			require.Equal(t, tt.message, err.Error())
		})
	}
}

func TestMe_MissingUserInEnvelope(t *testing.T) {
	srv, _ := apiFake(t, http.StatusOK, `{"data":{}}`)
	c := newClient(t, srv)

	_, err := c.Me(context.Background())
	require.ErrorContains(t, err, "no data.user")
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()
	c := newClient(t, srv, profile.WithTimeout(20*time.Millisecond))

	_, err := c.Me(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMetricsRecorded(t *testing.T) {
	srv, _ := apiFake(t, http.StatusForbidden, `{"message":"nope"}`)
	reg := prometheus.NewRegistry()
	c := newClient(t, srv, profile.WithMetrics(metrics.NewCollector(reg)))

	_, err := c.Me(context.Background())
	require.Error(t, err)

	count, err := testutil.GatherAndCount(reg, "fbsession_profile_requests_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestUser_Identity(t *testing.T) {
	var env struct {
		Data struct {
			User profile.User `json:"user"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(userJSON), &env))

	id := env.Data.User.Identity()
	require.Equal(t, "u1", id.ID)
	require.Equal(t, "Ada Lovelace", id.DisplayName)
	require.True(t, id.EmailVerified)
	require.Equal(t, "https://cdn.example.com/ada.png", utils.Value(id.ProfileImageURL))
	require.Nil(t, id.UpdatedAt)
	require.Nil(t, (*profile.User)(nil).Identity())
}
