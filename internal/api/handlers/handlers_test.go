package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/vaihub/internal/logger"
	"github.com/yoockh/vaihub/internal/models"
	"github.com/yoockh/vaihub/internal/realtime"
	"github.com/yoockh/vaihub/internal/services"
	"github.com/yoockh/vaihub/internal/utils"
)

func init() { gin.SetMode(gin.TestMode) }

func withUser(id string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id != "" {
			c.Set("user_id", id)
		}
		c.Next()
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

// --- profile ---

type fakeProfileService struct {
	services.ProfileService
	profile *models.Profile
	err     error
	upload  *services.Upload
	body    []byte
}

func (f *fakeProfileService) GetMe(_ context.Context, userID string) (*models.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := *f.profile
	p.ID = userID
	return &p, nil
}

func (f *fakeProfileService) UploadAvatar(_ context.Context, userID string, up *services.Upload) (*models.Profile, error) {
	f.upload = up
	f.body, _ = io.ReadAll(up.Body)
	p := *f.profile
	p.AvatarURL = userID + "/1.png"
	return &p, nil
}

func (f *fakeProfileService) AvatarURL(key string) string {
	if key == "" {
		return ""
	}
	return "https://cdn.example/" + key
}

func TestProfileMe(t *testing.T) {
	svc := &fakeProfileService{profile: &models.Profile{Username: "ana", Role: models.RolePremium, AvatarURL: "k.png"}}
	h := NewProfileHandler(svc)

	r := gin.New()
	r.GET("/me", withUser("u1"), h.Me)
	r.GET("/anon", withUser(""), h.Me)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	decode(t, w, &body)
	assert.Equal(t, "u1", body["id"])
	assert.Equal(t, "premium", body["role"])
	assert.Equal(t, "https://cdn.example/k.png", body["avatar_src"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/anon", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProfileMeNotFound(t *testing.T) {
	svc := &fakeProfileService{err: utils.E(utils.CodeNotFound, "ProfileService.GetMe", "profile not found", utils.ErrNotFound)}
	r := gin.New()
	r.GET("/me", withUser("u1"), NewProfileHandler(svc).Me)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	var body APIError
	decode(t, w, &body)
	assert.Equal(t, utils.CodeNotFound, body.Code)
	assert.Equal(t, "profile not found", body.Message)
}

// minimal PNG header, enough for content sniffing
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 600)...)

func multipartBody(t *testing.T, field, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadAvatarSniffsAndKeepsWholeBody(t *testing.T) {
	svc := &fakeProfileService{profile: &models.Profile{}}
	r := gin.New()
	r.POST("/avatar", withUser("u1"), NewProfileHandler(svc).UploadAvatar)

	body, ct := multipartBody(t, "file", "me.txt", pngBytes, nil)
	req := httptest.NewRequest(http.MethodPost, "/avatar", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, svc.upload)
	assert.Equal(t, "image/png", svc.upload.ContentType)
	assert.Equal(t, pngBytes, svc.body)
}

func TestUploadAvatarRejectsNonImage(t *testing.T) {
	svc := &fakeProfileService{profile: &models.Profile{}}
	r := gin.New()
	r.POST("/avatar", withUser("u1"), NewProfileHandler(svc).UploadAvatar)

	body, ct := multipartBody(t, "file", "x.png", []byte("just some text"), nil)
	req := httptest.NewRequest(http.MethodPost, "/avatar", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "file must be an image")
	assert.Nil(t, svc.upload)
}

// --- marketplace ---

type fakeMarketplace struct {
	services.MarketplaceService
	in    services.ServiceInput
	image *services.Upload
}

func (f *fakeMarketplace) Create(_ context.Context, userID string, in services.ServiceInput, image *services.Upload) (*models.ServiceListing, error) {
	f.in, f.image = in, image
	if image == nil {
		return nil, utils.E(utils.CodeInvalidArgument, "MarketplaceService.Create", "image is required", nil)
	}
	return &models.ServiceListing{Service: models.Service{ID: "s1", UserID: userID, Title: in.Title}}, nil
}

func TestMarketplaceCreateBindsForm(t *testing.T) {
	svc := &fakeMarketplace{}
	r := gin.New()
	r.POST("/services", withUser("u1"), NewMarketplaceHandler(svc).Create)

	body, ct := multipartBody(t, "image", "a.png", pngBytes, map[string]string{
		"title":       "Logo design",
		"description": "Fast",
		"price":       "25.5",
	})
	req := httptest.NewRequest(http.MethodPost, "/services", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "Logo design", svc.in.Title)
	assert.Equal(t, 25.5, svc.in.Price)
	require.NotNil(t, svc.image)
	assert.Equal(t, "image/png", svc.image.ContentType)
}

func TestMarketplaceCreateWithoutImage(t *testing.T) {
	svc := &fakeMarketplace{}
	r := gin.New()
	r.POST("/services", withUser("u1"), NewMarketplaceHandler(svc).Create)

	body, ct := multipartBody(t, "", "", nil, map[string]string{"title": "x", "description": "y", "price": "1"})
	req := httptest.NewRequest(http.MethodPost, "/services", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "image is required")
}

// --- chat ---

type fakeChat struct {
	services.ChatService
	deleted int64
}

func (f *fakeChat) Delete(_ context.Context, _ string, id int64) error {
	f.deleted = id
	return nil
}

func TestChatDeleteParsesID(t *testing.T) {
	svc := &fakeChat{}
	r := gin.New()
	r.DELETE("/chat/messages/:id", withUser("u1"), NewChatHandler(svc).Delete)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/chat/messages/abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/chat/messages/42", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, int64(42), svc.deleted)
}

// --- assistant ---

type fakeAssistant struct {
	services.AssistantService
	reply models.ChatTurn
	err   error
	chunk []string
	sErr  error
}

func (f *fakeAssistant) Reply(_ context.Context, turns []models.ChatTurn) (models.ChatTurn, error) {
	return f.reply, f.err
}

func (f *fakeAssistant) Stream(_ context.Context, _ []models.ChatTurn) (<-chan string, <-chan error, error) {
	chunks := make(chan string, len(f.chunk))
	errs := make(chan error, 1)
	for _, c := range f.chunk {
		chunks <- c
	}
	close(chunks)
	errs <- f.sErr
	close(errs)
	return chunks, errs, nil
}

func TestAssistantCompleteParity(t *testing.T) {
	tests := []struct {
		name     string
		svc      *fakeAssistant
		body     string
		wantCode int
		wantKey  string
	}{
		{"ok", &fakeAssistant{reply: models.ChatTurn{Role: "assistant", Content: "hello"}}, `{"messages":[{"role":"user","content":"hi"}]}`, http.StatusOK, "content"},
		{"bad json", &fakeAssistant{}, `{`, http.StatusBadRequest, "error"},
		{"upstream", &fakeAssistant{err: utils.E(utils.CodeUnavailable, "x", "assistant is unavailable", errors.New("boom"))}, `{"messages":[{"role":"user","content":"hi"}]}`, http.StatusBadRequest, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.POST("/ai", NewAssistantHandler(tt.svc, logger.Discard()).Complete)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/ai", bytes.NewBufferString(tt.body)))
			assert.Equal(t, tt.wantCode, w.Code)
			var body map[string]any
			decode(t, w, &body)
			assert.Contains(t, body, tt.wantKey)
			assert.NotContains(t, w.Body.String(), "boom")
		})
	}
}

// streamRecorder adds the CloseNotifier gin's Stream needs.
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
}

func (r *streamRecorder) CloseNotify() <-chan bool { return r.closed }

func TestAssistantStreamSSE(t *testing.T) {
	svc := &fakeAssistant{chunk: []string{"Hel", "lo"}}
	r := gin.New()
	r.POST("/stream", withUser("u1"), NewAssistantHandler(svc, logger.Discard()).Stream)

	w := newStreamRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/stream", bytes.NewBufferString(`{"messages":[{"role":"user","content":"hi"}]}`)))

	out := w.Body.String()
	assert.Contains(t, out, "event:chunk")
	assert.Contains(t, out, `"content":"Hel"`)
	assert.Contains(t, out, `"content":"lo"`)
	assert.Contains(t, out, "event:done")
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
}

func TestAssistantStreamError(t *testing.T) {
	svc := &fakeAssistant{chunk: []string{"Hel"}, sErr: errors.New("quota")}
	r := gin.New()
	r.POST("/stream", withUser("u1"), NewAssistantHandler(svc, logger.Discard()).Stream)

	w := newStreamRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/stream", bytes.NewBufferString(`{"messages":[{"role":"user","content":"hi"}]}`)))

	out := w.Body.String()
	assert.Contains(t, out, "event:error")
	assert.NotContains(t, out, "quota")
	assert.NotContains(t, out, "event:done")
}

func TestOriginChecker(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/realtime/messages", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	allowAll := originChecker([]string{"*"})
	assert.True(t, allowAll(req("https://evil.example")))

	strict := originChecker([]string{"https://app.vaihub.example"})
	assert.True(t, strict(req("https://app.vaihub.example")))
	assert.True(t, strict(req("")))
	assert.False(t, strict(req("https://evil.example")))
}

// --- realtime ---

// fakeFeed fans events out to the streams open at publish time, like Redis
// pub/sub.
type fakeFeed struct {
	mu   sync.Mutex
	subs map[string][]chan realtime.ChangeEvent
	err  error
}

type fakeStream struct {
	feed  *fakeFeed
	table string
	ch    chan realtime.ChangeEvent
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{subs: map[string][]chan realtime.ChangeEvent{}}
}

func (f *fakeFeed) Subscribe(_ context.Context, table string) (realtime.Stream, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan realtime.ChangeEvent, 16)
	f.mu.Lock()
	f.subs[table] = append(f.subs[table], ch)
	f.mu.Unlock()
	return &fakeStream{feed: f, table: table, ch: ch}, nil
}

func (f *fakeFeed) Publish(_ context.Context, table, eventType string, newRow, oldRow any) error {
	ev, err := realtime.NewChangeEvent(table, eventType, newRow, oldRow, time.Now())
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs[table] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (f *fakeFeed) count(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[table])
}

func (s *fakeStream) Events() <-chan realtime.ChangeEvent { return s.ch }

func (s *fakeStream) Close() error {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	subs := s.feed.subs[s.table]
	for i, ch := range subs {
		if ch == s.ch {
			s.feed.subs[s.table] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
	return nil
}

var _ realtime.Publisher = (*fakeFeed)(nil)

func TestRealtimeMessagesForwardsChanges(t *testing.T) {
	feed := newFakeFeed()
	h := NewRealtimeHandler(feed, logger.Discard(), []string{"*"})

	r := gin.New()
	r.GET("/realtime/messages", withUser("u1"), h.Messages)
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime/messages"
	dial := func() *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		return conn
	}
	next := func(conn *websocket.Conn) realtime.ChangeEvent {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var ev realtime.ChangeEvent
		require.NoError(t, conn.ReadJSON(&ev))
		return ev
	}
	ctx := context.Background()

	conn := dial()
	require.Equal(t, 1, feed.count("messages"))

	require.NoError(t, feed.Publish(ctx, "messages", realtime.EventInsert, map[string]any{"id": 1, "content": "hi"}, nil))
	ev := next(conn)
	assert.Equal(t, realtime.EventInsert, ev.Type)
	assert.Equal(t, "messages", ev.Table)
	assert.JSONEq(t, `{"id":1,"content":"hi"}`, string(ev.New))
	assert.Empty(t, ev.Old)

	require.NoError(t, feed.Publish(ctx, "messages", realtime.EventDelete, nil, map[string]int64{"id": 1}))
	ev = next(conn)
	assert.Equal(t, realtime.EventDelete, ev.Type)
	assert.JSONEq(t, `{"id":1}`, string(ev.Old))

	// other tables never reach this socket
	require.NoError(t, feed.Publish(ctx, "services", realtime.EventInsert, map[string]any{"id": 7}, nil))

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return feed.count("messages") == 0 }, 2*time.Second, 10*time.Millisecond)

	// published while disconnected
	require.NoError(t, feed.Publish(ctx, "messages", realtime.EventInsert, map[string]any{"id": 2, "content": "missed"}, nil))

	conn = dial()
	defer conn.Close()
	require.NoError(t, feed.Publish(ctx, "messages", realtime.EventDelete, nil, map[string]int64{"id": 2}))
	ev = next(conn)
	assert.Equal(t, realtime.EventDelete, ev.Type, "events missed while disconnected are not replayed")
	assert.JSONEq(t, `{"id":2}`, string(ev.Old))
}

func TestRealtimeMessagesRejects(t *testing.T) {
	feed := newFakeFeed()
	h := NewRealtimeHandler(feed, logger.Discard(), []string{"*"})

	r := gin.New()
	r.GET("/anon", withUser(""), h.Messages)
	r.GET("/down", withUser("u1"), h.Messages)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/anon", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, feed.count("messages"))

	feed.err = errors.New("redis: connection refused")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/down", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "realtime feed unavailable")
}

func TestWriteErrorAttachesCause(t *testing.T) {
	var recorded []error
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Next()
		for _, e := range c.Errors {
			recorded = append(recorded, e.Err)
		}
	})
	r.GET("/app", func(c *gin.Context) {
		writeError(c, utils.E(utils.CodeConflict, "MarketplaceService.Create", "listing already exists", errors.New("duplicate key")))
	})
	r.GET("/missing", func(c *gin.Context) { writeError(c, utils.ErrNotFound) })
	r.GET("/plain", func(c *gin.Context) { writeError(c, errors.New("boom")) })

	tests := []struct {
		path    string
		status  int
		code    utils.Code
		message string
	}{
		{"/app", http.StatusConflict, utils.CodeConflict, "listing already exists"},
		{"/missing", http.StatusNotFound, utils.CodeNotFound, "not found"},
		{"/plain", http.StatusInternalServerError, utils.CodeInternal, "Internal Server Error"},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		assert.Equal(t, tt.status, w.Code, tt.path)
		var body APIError
		decode(t, w, &body)
		assert.Equal(t, tt.code, body.Code, tt.path)
		assert.Equal(t, tt.message, body.Message, tt.path)
		assert.NotContains(t, w.Body.String(), "duplicate key")
	}

	require.Len(t, recorded, 3)
	var ae *utils.AppError
	require.ErrorAs(t, recorded[0], &ae)
	assert.Equal(t, "MarketplaceService.Create", ae.Op)
	assert.ErrorIs(t, recorded[1], utils.ErrNotFound)
}
