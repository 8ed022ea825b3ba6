package offline

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"festplan/internal/clock"
	"festplan/internal/notify"
)

type origin struct {
	srv         *httptest.Server
	foreign     *httptest.Server
	hits        atomic.Int32
	foreignHits atomic.Int32
}

func newOrigin(t *testing.T) *origin {
	t.Helper()
	o := &origin{}
	o.foreign = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		o.foreignHits.Add(1)
		_, _ = io.WriteString(w, "third party")
	}))
	t.Cleanup(o.foreign.Close)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		o.hits.Add(1)
		switch r.URL.Path {
		case "/", "/index.html":
			_, _ = io.WriteString(w, "<html>shell</html>")
		case "/manifest.json":
			_, _ = io.WriteString(w, `{"name":"festplan"}`)
		case "/app.js":
			_, _ = io.WriteString(w, "console.log('app')")
		case "/broken":
			http.Error(w, "nope", http.StatusInternalServerError)
		case "/elsewhere":
			http.Redirect(w, r, o.foreign.URL+"/x", http.StatusFound)
		default:
			http.NotFound(w, r)
		}
	})
	o.srv = httptest.NewServer(mux)
	t.Cleanup(o.srv.Close)
	return o
}

func newWorker(t *testing.T, o *origin, version string, caches *CacheStorage, n notify.Notifier, clk clock.Clock) *Worker {
	t.Helper()
	u, err := url.Parse(o.srv.URL)
	require.NoError(t, err)
	if caches == nil {
		caches = NewCacheStorage(t.TempDir())
	}
	if n == nil {
		n = notify.NewCenter(notify.PermissionGranted)
	}
	return New(Config{
		Version:  version,
		Shell:    []string{"/", "/index.html", "/manifest.json"},
		Fallback: "/index.html",
		Origin:   u,
		Style:    notify.Style{AppName: "Festplan", Icon: "/icon-192.png"},
		Client:   o.srv.Client(),
	}, caches, n, clk)
}

func get(t *testing.T, w *Worker, path string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := w.Fetch(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestActivateKeepsOnlyCurrentVersion(t *testing.T) {
	o := newOrigin(t)
	caches := NewCacheStorage(t.TempDir())
	_, err := caches.Open("v1")
	require.NoError(t, err)
	_, err = caches.Open("v2")
	require.NoError(t, err)

	w := newWorker(t, o, "v2", caches, nil, nil)
	require.NoError(t, w.Install(context.Background()))
	assert.Equal(t, StateInstalled, w.State())
	require.NoError(t, w.Activate(context.Background()))
	assert.Equal(t, StateActivated, w.State())

	names, err := caches.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, names)
}

func TestInstallFailsOnMissingAsset(t *testing.T) {
	o := newOrigin(t)
	caches := NewCacheStorage(t.TempDir())
	w := newWorker(t, o, "v1", caches, nil, nil)
	w.cfg.Shell = append(w.cfg.Shell, "/missing.css")

	err := w.Install(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateRedundant, w.State())
	assert.False(t, caches.Has("v1"))
	assert.ErrorIs(t, w.Activate(context.Background()), ErrNotInstalled)
}

func TestFetchCachesSameOriginOK(t *testing.T) {
	o := newOrigin(t)
	w := newWorker(t, o, "v1", nil, nil, nil)
	require.NoError(t, w.Register(context.Background()))

	before := o.hits.Load()
	_, body := get(t, w, "/app.js")
	assert.Equal(t, "console.log('app')", body)
	assert.Equal(t, before+1, o.hits.Load())

	_, body = get(t, w, "/app.js")
	assert.Equal(t, "console.log('app')", body)
	assert.Equal(t, before+1, o.hits.Load(), "second request is a cache hit")

	resp, _ := get(t, w, "/broken")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	get(t, w, "/broken")
	assert.Equal(t, before+3, o.hits.Load(), "errors are not cached")
}

func TestFetchDoesNotCacheCrossOriginResponses(t *testing.T) {
	o := newOrigin(t)
	w := newWorker(t, o, "v1", nil, nil, nil)
	require.NoError(t, w.Register(context.Background()))

	before := o.hits.Load()
	for range 2 {
		resp, body := get(t, w, "/elsewhere")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "third party", body)
	}
	assert.Equal(t, before+2, o.hits.Load(), "redirected responses go to the network every time")
	assert.Equal(t, int32(2), o.foreignHits.Load())
}

func TestFetchServesShellWhenOffline(t *testing.T) {
	o := newOrigin(t)
	w := newWorker(t, o, "v1", nil, nil, nil)
	require.NoError(t, w.Register(context.Background()))
	o.srv.Close()

	resp, body := get(t, w, "/some/route")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>shell</html>", body)
}

func TestFetchWithoutShellFails(t *testing.T) {
	o := newOrigin(t)
	w := newWorker(t, o, "v1", nil, nil, nil)
	w.cfg.Shell = []string{"/manifest.json"}
	require.NoError(t, w.Register(context.Background()))
	o.srv.Close()

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	_, err := w.Fetch(context.Background(), req)
	assert.ErrorIs(t, err, ErrNoShell)

	rec := httptest.NewRecorder()
	w.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServeHTTPFromCache(t *testing.T) {
	o := newOrigin(t)
	w := newWorker(t, o, "v7", nil, nil, nil)
	require.NoError(t, w.Register(context.Background()))

	rec := httptest.NewRecorder()
	w.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/manifest.json", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"name":"festplan"}`, rec.Body.String())
	assert.Equal(t, "v7", rec.Header().Get("X-Festplan-Worker"))
}

func TestSkipWaitingMessage(t *testing.T) {
	o := newOrigin(t)
	w := newWorker(t, o, "v1", nil, nil, nil)
	require.NoError(t, w.Install(context.Background()))
	w.Clients().Open("/")

	require.NoError(t, w.PostMessage(Message{Type: MsgSkipWaiting}))
	assert.Equal(t, StateActivated, w.State())
	assert.Equal(t, "v1", w.Clients().List()[0].Controller)
}

func TestScheduleNotification(t *testing.T) {
	o := newOrigin(t)
	now := time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)
	center := notify.NewCenter(notify.PermissionGranted)
	_, _ = center.RequestPermission(context.Background())
	w := newWorker(t, o, "v1", nil, center, clk)

	require.NoError(t, w.HandleMessage(context.Background(), Message{
		Type: MsgScheduleNotification, EventID: "aa-4", EventName: "Finch", EventTime: "2025-02-28T12:30:00",
	}))
	require.NoError(t, w.HandleMessage(context.Background(), Message{
		Type: MsgScheduleNotification, EventID: "aa-1", EventName: "Opening", EventTime: "2025-02-28T11:00:00",
	}))
	assert.Equal(t, 1, w.Scheduled())

	clk.Advance(29 * time.Minute)
	assert.Empty(t, center.Active())
	clk.Advance(time.Minute)

	active := center.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "aa-4", active[0].Tag)
	assert.Equal(t, "Finch is starting soon!", active[0].Body)
	assert.Len(t, active[0].Actions, 2)
	assert.Equal(t, 0, w.Scheduled())
}

func TestScheduleNotificationSameEventReplaces(t *testing.T) {
	o := newOrigin(t)
	clk := clock.NewFake(time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC))
	center := notify.NewCenter(notify.PermissionGranted)
	_, _ = center.RequestPermission(context.Background())
	w := newWorker(t, o, "v1", nil, center, clk)

	for _, at := range []string{"2025-02-28T12:30:00Z", "2025-02-28T12:45:00Z"} {
		require.NoError(t, w.HandleMessage(context.Background(), Message{
			Type: MsgScheduleNotification, EventID: "aa-4", EventName: "Finch", EventTime: at,
		}))
	}
	assert.Equal(t, 1, w.Scheduled())
	assert.Equal(t, 1, clk.Pending())

	clk.Advance(30 * time.Minute)
	assert.Empty(t, center.Active(), "first time was replaced")
	clk.Advance(15 * time.Minute)
	assert.Len(t, center.Active(), 1)
	assert.Equal(t, 0, w.Scheduled())
}

func TestFiredTimerKeepsRescheduledEntry(t *testing.T) {
	o := newOrigin(t)
	clk := clock.NewFake(time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC))
	center := notify.NewCenter(notify.PermissionGranted)
	_, _ = center.RequestPermission(context.Background())
	w := newWorker(t, o, "v1", nil, center, clk)
	ctx := context.Background()

	msg := Message{Type: MsgScheduleNotification, EventID: "aa-4", EventName: "Finch", EventTime: "2025-02-28T12:30:00Z"}
	require.NoError(t, w.HandleMessage(ctx, msg))

	// The loop is busy: the due notification waits in the inbox.
	w.running.Store(true)
	clk.Advance(30 * time.Minute)
	require.Len(t, w.tasks, 1)

	msg.EventTime = "2025-02-28T13:00:00Z"
	require.NoError(t, w.HandleMessage(ctx, msg))
	(<-w.tasks)(ctx)
	w.running.Store(false)

	assert.Equal(t, 1, w.Scheduled())
	assert.Equal(t, 1, clk.Pending())
	w.stopTimers()
	assert.Equal(t, 0, clk.Pending())
}

func TestScheduleNotificationUsesConfiguredZone(t *testing.T) {
	o := newOrigin(t)
	clk := clock.NewFake(time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC))
	center := notify.NewCenter(notify.PermissionGranted)
	_, _ = center.RequestPermission(context.Background())
	w := newWorker(t, o, "v1", nil, center, clk)
	w.cfg.Location = time.FixedZone("NZDT", 13*3600)

	// 09:00 NZDT is 20:00 UTC the previous day.
	require.NoError(t, w.HandleMessage(context.Background(), Message{
		Type: MsgScheduleNotification, EventID: "aa-1", EventName: "Opening", EventTime: "2025-03-01T09:00:00",
	}))
	clk.Advance(8*time.Hour - time.Minute)
	assert.Empty(t, center.Active())
	clk.Advance(time.Minute)
	assert.Len(t, center.Active(), 1)
}

func TestRunLoopHandlesPostedMessages(t *testing.T) {
	o := newOrigin(t)
	w := newWorker(t, o, "v1", nil, nil, nil)
	require.NoError(t, w.Install(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	require.Eventually(t, func() bool { return w.running.Load() }, time.Second, time.Millisecond)

	require.NoError(t, w.PostMessage(Message{Type: MsgSkipWaiting}))
	require.Eventually(t, func() bool { return w.State() == StateActivated }, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestPushAndNotificationClick(t *testing.T) {
	o := newOrigin(t)
	center := notify.NewCenter(notify.PermissionGranted)
	_, _ = center.RequestPermission(context.Background())
	w := newWorker(t, o, "v1", nil, center, nil)
	require.NoError(t, w.Register(context.Background()))

	require.NoError(t, w.Push(nil))
	active := center.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "Event reminder", active[0].Body)
	assert.Equal(t, pushTag, active[0].Tag)

	cl, err := w.HandleNotificationClick(context.Background(), pushTag, "")
	require.NoError(t, err)
	assert.Equal(t, "/", cl.URL)
	assert.Equal(t, "v1", cl.Controller)
	assert.Empty(t, center.Active())

	other := w.Clients().Open("/friends")
	w.Clients().Focus(other.ID)
	cl, err = w.HandleNotificationClick(context.Background(), "aa-1", "view")
	require.NoError(t, err)
	assert.Equal(t, "/", cl.URL, "first open window gets focus")
	assert.True(t, cl.Focused)
	assert.Len(t, w.Clients().List(), 2)
}

func TestParseEventTime(t *testing.T) {
	loc := time.FixedZone("NZDT", 13*3600)
	got, err := ParseEventTime("2025-03-01T09:00:00", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 9, 0, 0, 0, loc), got)

	_, err = ParseEventTime("tomorrow", loc)
	assert.Error(t, err)
}
