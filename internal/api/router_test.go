package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/phrazzld/clientflow/internal/api"
	"github.com/phrazzld/clientflow/internal/attachment"
	"github.com/phrazzld/clientflow/internal/config"
	"github.com/phrazzld/clientflow/internal/domain"
	"github.com/phrazzld/clientflow/internal/events"
	"github.com/phrazzld/clientflow/internal/live"
	"github.com/phrazzld/clientflow/internal/platform/localfs"
	"github.com/phrazzld/clientflow/internal/platform/sqlite"
	"github.com/phrazzld/clientflow/internal/service/auth"
	"github.com/phrazzld/clientflow/internal/service/workflow"
	"github.com/phrazzld/clientflow/internal/session"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "admin-password"
)

type testServer struct {
	*httptest.Server
	sessions *session.Manager
}

func newTestServer(t *testing.T, limits attachment.Limits) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	users := sqlite.NewUserStore(db, logger)
	broker := live.NewBroker(sqlite.NewTaskStore(db, logger), logger)
	blobs, err := localfs.NewBlobStore(afero.NewMemMapFs(), "uploads", "/files")
	require.NoError(t, err)

	tokens, err := auth.NewJWTService(config.AuthConfig{
		JWTSecret:            "test-secret-that-is-at-least-32-chars",
		TokenLifetimeMinutes: 60,
	})
	require.NoError(t, err)
	identity := auth.NewIdentity(users, auth.NewBcryptHasher(4), tokens, logger)
	_, _, err = identity.EnsureAdmin(ctx, adminEmail, adminPassword, "Morgan")
	require.NoError(t, err)

	emitter := events.NewInMemoryEventEmitter(logger)
	sessions := session.NewManager(broker, emitter, session.Config{
		FeedCapacity: 10,
		Reminder:     config.ReminderConfig{Interval: time.Hour, Threshold: 4 * time.Hour},
	}, logger)
	emitter.RegisterHandler(sessions)

	svc, err := workflow.NewService(broker, users, blobs, emitter, logger)
	require.NoError(t, err)

	tasks := api.NewTaskHandler(svc, limits, attachment.NewThumbnailPreviewer(), logger)
	sessions.OnSessionChange(tasks.HandleSessionChange)

	router := api.NewRouter(api.RouterDeps{
		Auth:          api.NewAuthHandler(identity, sessions, logger),
		Tasks:         tasks,
		Notifications: api.NewNotificationHandler(nil, logger),
		Stream:        api.NewStreamHandler(50*time.Millisecond, logger),
		Authenticator: identity,
		Sessions:      sessions,
		Files:         blobs.Handler(),
		HealthCheck:   db.PingContext,
		AuthRateLimit: 100,
		AuthRateBurst: 100,
		Logger:        logger,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	t.Cleanup(sessions.CloseAll)
	return &testServer{Server: srv, sessions: sessions}
}

func (s *testServer) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *testServer) json(t *testing.T, method, path, token string, payload any) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	return s.do(t, method, path, token, body, "application/json")
}

func (s *testServer) signUp(t *testing.T, email, name string) string {
	t.Helper()
	resp := s.json(t, http.MethodPost, "/api/auth/signup", "", api.SignUpRequest{
		Email: email, Password: "password123", DisplayName: name, Company: "Acme",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[api.AuthResponse](t, resp).Token
}

func (s *testServer) signIn(t *testing.T, email, password string) string {
	t.Helper()
	resp := s.json(t, http.MethodPost, "/api/auth/signin", "", api.SignInRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[api.AuthResponse](t, resp).Token
}

type upload struct {
	field, name string
	data        []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...upload) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (s *testServer) createTask(t *testing.T, token, title string, files ...upload) *http.Response {
	t.Helper()
	body, ct := multipartBody(t, map[string]string{"title": title, "description": "Please fix"}, files...)
	return s.do(t, http.MethodPost, "/api/tasks", token, body, ct)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func messages(t *testing.T, s *testServer, token string) []string {
	t.Helper()
	resp := s.do(t, http.MethodGet, "/api/notifications", token, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := []string{}
	for _, n := range decode[api.NotificationListResponse](t, resp).Notifications {
		assert.Equal(t, "0m ago", n.Age)
		out = append(out, n.Message)
	}
	return out
}

func TestReviewCycle(t *testing.T) {
	srv := newTestServer(t, attachment.ExtendedLimits)

	client := srv.signUp(t, "dana@example.com", "Dana")
	admin := srv.signIn(t, adminEmail, adminPassword)
	assert.Equal(t, []string{"Welcome Dana! Your account has been created."}, messages(t, srv, client))

	resp := srv.createTask(t, client, "Fix header", upload{"images", "logo.png", pngBytes(t)})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	task := decode[domain.Task](t, resp)
	assert.Equal(t, domain.TaskStatusPending, task.Status)
	require.Len(t, task.Images, 1)
	assert.Equal(t, "logo.png", task.Images[0].Name)

	blob := srv.do(t, http.MethodGet, task.Images[0].URL, "", nil, "")
	assert.Equal(t, http.StatusOK, blob.StatusCode)

	list := srv.do(t, http.MethodGet, "/api/tasks?status=pending", admin, nil, "")
	require.Equal(t, http.StatusOK, list.StatusCode)
	assert.Len(t, decode[api.TaskListResponse](t, list).Tasks, 1)

	path := "/api/tasks/" + task.ID.String()
	assert.Equal(t, http.StatusForbidden, srv.do(t, http.MethodPost, path+"/submit-review", client, nil, "").StatusCode)
	assert.Equal(t, http.StatusConflict, srv.do(t, http.MethodPost, path+"/approve", client, nil, "").StatusCode)

	resp = srv.do(t, http.MethodPost, path+"/submit-review", admin, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.TaskStatusPendingReview, decode[domain.Task](t, resp).Status)

	resp = srv.do(t, http.MethodPost, path+"/approve", client, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	done := decode[domain.Task](t, resp)
	assert.Equal(t, domain.TaskStatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)

	summary := srv.do(t, http.MethodGet, "/api/summary", admin, nil, "")
	require.Equal(t, http.StatusOK, summary.StatusCode)
	assert.Equal(t, workflow.Summary{CompletedRecent: 1, TotalClients: 1}, decode[workflow.Summary](t, summary))
	assert.Equal(t, http.StatusForbidden, srv.do(t, http.MethodGet, "/api/summary", client, nil, "").StatusCode)

	assert.Equal(t, []string{
		`Task "Fix header" approved and completed!`,
		`Task "Fix header" submitted for Dana's review`,
		`New update request submitted: "Fix header"`,
		"Welcome Dana! Your account has been created.",
	}, messages(t, srv, client))
	assert.Equal(t, []string{
		`Task "Fix header" approved and completed!`,
		`Task "Fix header" submitted for Dana's review`,
		`New update request submitted: "Fix header"`,
		"Welcome back, Morgan!",
	}, messages(t, srv, admin))

	assert.Equal(t, http.StatusNoContent, srv.do(t, http.MethodDelete, "/api/notifications", client, nil, "").StatusCode)
	assert.Empty(t, messages(t, srv, client))
}

func TestCreateRejectsEmptyTitle(t *testing.T) {
	srv := newTestServer(t, attachment.ExtendedLimits)
	client := srv.signUp(t, "dana@example.com", "Dana")
	admin := srv.signIn(t, adminEmail, adminPassword)

	resp := srv.createTask(t, client, "  ")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[map[string]string](t, resp)["error"], "title is required")

	list := srv.do(t, http.MethodGet, "/api/tasks", admin, nil, "")
	assert.Empty(t, decode[api.TaskListResponse](t, list).Tasks)
	assert.Equal(t, []string{"Welcome back, Morgan!"}, messages(t, srv, admin))
}

func TestClientsOnlySeeTheirOwnTasks(t *testing.T) {
	srv := newTestServer(t, attachment.ExtendedLimits)
	dana := srv.signUp(t, "dana@example.com", "Dana")
	eli := srv.signUp(t, "eli@example.com", "Eli")

	resp := srv.createTask(t, dana, "Fix header")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	task := decode[domain.Task](t, resp)
	path := "/api/tasks/" + task.ID.String()

	assert.Equal(t, http.StatusForbidden, srv.do(t, http.MethodGet, path, eli, nil, "").StatusCode)
	assert.Equal(t, http.StatusForbidden, srv.do(t, http.MethodDelete, path, eli, nil, "").StatusCode)
	assert.Empty(t, decode[api.TaskListResponse](t, srv.do(t, http.MethodGet, "/api/tasks", eli, nil, "")).Tasks)
	assert.NotContains(t, messages(t, srv, eli), `New update request submitted: "Fix header"`)

	assert.Equal(t, http.StatusNoContent, srv.do(t, http.MethodDelete, path, dana, nil, "").StatusCode)
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, path, dana, nil, "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, "/api/tasks/not-a-uuid", dana, nil, "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, "/api/tasks?status=archived", dana, nil, "").StatusCode)
}

func TestAuthEndpoints(t *testing.T) {
	srv := newTestServer(t, attachment.ExtendedLimits)

	srv.signUp(t, "dana@example.com", "Dana")
	resp := srv.json(t, http.MethodPost, "/api/auth/signup", "", api.SignUpRequest{
		Email: "DANA@example.com", Password: "password123", DisplayName: "Dana again",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, auth.ErrEmailInUse.Error(), decode[map[string]string](t, resp)["error"])

	resp = srv.json(t, http.MethodPost, "/api/auth/signin", "", api.SignInRequest{Email: "dana@example.com", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, auth.ErrInvalidCredentials.Error(), decode[map[string]string](t, resp)["error"])

	resp = srv.json(t, http.MethodPost, "/api/auth/signup", "", map[string]string{"email": "bad", "password": "password123", "display_name": "X"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid email: invalid email format", decode[map[string]string](t, resp)["error"])

	assert.Equal(t, http.StatusBadRequest, srv.json(t, http.MethodPost, "/api/auth/signin", "", map[string]string{"email": "a@b.co", "role": "admin"}).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodGet, "/api/tasks", "", nil, "").StatusCode)

	token := srv.signIn(t, "dana@example.com", "password123")
	assert.Equal(t, 2, srv.sessions.Len())
	assert.Equal(t, http.StatusNoContent, srv.do(t, http.MethodPost, "/api/auth/signout", token, nil, "").StatusCode)
	assert.Equal(t, 1, srv.sessions.Len())

	resp = srv.do(t, http.MethodGet, "/api/tasks", token, nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Session has ended", decode[map[string]string](t, resp)["error"])
}

func TestStagedUploads(t *testing.T) {
	srv := newTestServer(t, attachment.SimpleLimits)
	client := srv.signUp(t, "dana@example.com", "Dana")
	img := pngBytes(t)

	six := make([]upload, 6)
	for i := range six {
		six[i] = upload{"files", fmt.Sprintf("shot-%d.png", i), img}
	}
	body, ct := multipartBody(t, nil, six...)
	resp := srv.do(t, http.MethodPost, "/api/uploads", client, body, ct)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[map[string]string](t, resp)["error"], "maximum 5 files")

	body, ct = multipartBody(t, nil, upload{"files", "a.png", img}, upload{"files", "b.png", img})
	resp = srv.do(t, http.MethodPost, "/api/uploads", client, body, ct)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	staged := decode[api.StagedUploadsResponse](t, resp)
	require.Len(t, staged.Images, 2)
	assert.True(t, strings.HasPrefix(staged.Images[0].Preview, "data:image/jpeg;base64,"))
	assert.Equal(t, 5, staged.Limits.MaxFiles)

	resp = srv.do(t, http.MethodDelete, "/api/uploads/image/0", client, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	staged = decode[api.StagedUploadsResponse](t, resp)
	require.Len(t, staged.Images, 1)
	assert.Equal(t, "b.png", staged.Images[0].Name)
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodDelete, "/api/uploads/image/3", client, nil, "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodDelete, "/api/uploads/audio/0", client, nil, "").StatusCode)

	big := make([]byte, 6_000_000)
	copy(big, img)
	resp = srv.createTask(t, client, "Too big", upload{"images", "huge.png", big})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = srv.createTask(t, client, "Fix header", upload{"images", "c.png", img})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	task := decode[domain.Task](t, resp)
	require.Len(t, task.Images, 2)
	assert.Equal(t, "b.png", task.Images[0].Name)
	assert.Equal(t, "c.png", task.Images[1].Name)

	resp = srv.do(t, http.MethodGet, "/api/uploads", client, nil, "")
	assert.Empty(t, decode[api.StagedUploadsResponse](t, resp).Images)
}

func TestRejectedCreateCanBeRetried(t *testing.T) {
	srv := newTestServer(t, attachment.SimpleLimits)
	client := srv.signUp(t, "dana@example.com", "Dana")
	img := pngBytes(t)

	body, ct := multipartBody(t, nil, upload{"files", "staged.png", img})
	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/api/uploads", client, body, ct).StatusCode)

	inline := []upload{{"images", "a.png", img}, {"images", "b.png", img}, {"images", "c.png", img}}
	resp := srv.createTask(t, client, "", inline...)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, "/api/uploads", client, nil, "")
	staged := decode[api.StagedUploadsResponse](t, resp)
	require.Len(t, staged.Images, 1)
	assert.Equal(t, "staged.png", staged.Images[0].Name)

	resp = srv.createTask(t, client, "Fix header", inline...)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	task := decode[domain.Task](t, resp)
	names := []string{}
	for _, ref := range task.Images {
		names = append(names, ref.Name)
	}
	assert.Equal(t, []string{"staged.png", "a.png", "b.png", "c.png"}, names)

	resp = srv.do(t, http.MethodGet, "/api/uploads", client, nil, "")
	assert.Empty(t, decode[api.StagedUploadsResponse](t, resp).Images)
}

func TestSignInDuringShutdown(t *testing.T) {
	srv := newTestServer(t, attachment.ExtendedLimits)
	srv.sessions.CloseAll()

	resp := srv.json(t, http.MethodPost, "/api/auth/signin", "", api.SignInRequest{Email: adminEmail, Password: adminPassword})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "Server is shutting down, try again shortly", decode[map[string]string](t, resp)["error"])
	assert.Equal(t, 0, srv.sessions.Len())
}

func TestStream(t *testing.T) {
	srv := newTestServer(t, attachment.ExtendedLimits)
	client := srv.signUp(t, "dana@example.com", "Dana")
	admin := srv.signIn(t, adminEmail, adminPassword)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/tasks/stream?access_token="+admin, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan [2]string, 16)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 1<<20), 1<<20)
		var name string
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				select {
				case events <- [2]string{name, strings.TrimPrefix(line, "data: ")}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	// events of other names are kept for later calls
	var pending [][2]string
	next := func(want string) string {
		t.Helper()
		for i, ev := range pending {
			if ev[0] == want {
				pending = append(pending[:i], pending[i+1:]...)
				return ev[1]
			}
		}
		for {
			select {
			case ev, ok := <-events:
				require.True(t, ok, "stream ended before %s", want)
				if ev[0] == want {
					return ev[1]
				}
				pending = append(pending, ev)
			case <-ctx.Done():
				t.Fatalf("timed out waiting for %s", want)
			}
		}
	}

	var snapshot api.TaskListResponse
	require.NoError(t, json.Unmarshal([]byte(next("tasks")), &snapshot))
	assert.Empty(t, snapshot.Tasks)

	require.Equal(t, http.StatusCreated, srv.createTask(t, client, "Fix header").StatusCode)

	var note api.NotificationResponse
	require.NoError(t, json.Unmarshal([]byte(next("notification")), &note))
	assert.Equal(t, domain.NotificationSubmitted, note.Kind)

	for {
		require.NoError(t, json.Unmarshal([]byte(next("tasks")), &snapshot))
		if len(snapshot.Tasks) == 1 {
			break
		}
	}
	assert.Equal(t, "Fix header", snapshot.Tasks[0].Title)

	require.Equal(t, http.StatusNoContent, srv.do(t, http.MethodPost, "/api/auth/signout", admin, nil, "").StatusCode)
	next("session_closed")
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, attachment.ExtendedLimits)

	resp := srv.do(t, http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))

	resp = srv.do(t, http.MethodGet, "/metrics", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "clientflow_http_requests_total")
}
