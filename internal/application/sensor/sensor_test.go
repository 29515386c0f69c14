package sensor

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icsys/backend/internal/domain/environment"
)

type memEventRepo struct {
	mu     sync.Mutex
	events []*environment.Event
}

func (r *memEventRepo) Save(e *environment.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *memEventRepo) FindUnprocessed(limit int) ([]*environment.Event, error) {
	return nil, nil
}

func (r *memEventRepo) all() []*environment.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*environment.Event, len(r.events))
	copy(out, r.events)
	return out
}

type memSubRepo struct {
	mu   sync.Mutex
	subs map[string]*environment.Subscription
}

func newMemSubRepo() *memSubRepo {
	return &memSubRepo{subs: make(map[string]*environment.Subscription)}
}

func (r *memSubRepo) Save(s *environment.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[s.ID] = s
	return nil
}

func (r *memSubRepo) UpdateStatus(id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.subs[id]; ok {
		s.Status = status
	}
	return nil
}

func (r *memSubRepo) TouchLastCheck(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.subs[id]; ok {
		s.LastCheck = time.Now().UnixMilli()
	}
	return nil
}

func (r *memSubRepo) FindActive(subType string) ([]*environment.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*environment.Subscription
	for _, s := range r.subs {
		if s.Status != "active" {
			continue
		}
		if subType != "" && s.Type != subType {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *memSubRepo) statusOf(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.subs[id]; ok {
		return s.Status
	}
	return ""
}

type memBroadcaster struct {
	mu     sync.Mutex
	events []struct {
		Type string
		Data any
	}
}

func (b *memBroadcaster) Broadcast(eventType string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, struct {
		Type string
		Data any
	}{eventType, data})
}

func (b *memBroadcaster) count(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func TestExtractValue(t *testing.T) {
	data := map[string]any{
		"status": map[string]any{
			"cpu":  42.5,
			"name": "ok",
		},
		"flat": "value",
	}

	tests := []struct {
		name string
		path string
		want any
	}{
		{"一级路径", "flat", "value"},
		{"嵌套路径", "status.cpu", 42.5},
		{"嵌套字符串", "status.name", "ok"},
		{"不存在的键", "status.missing", nil},
		{"对非对象继续取值", "flat.deeper", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractValue(data, tt.path))
		})
	}
}

func TestAPIPoller_ChangeDetection(t *testing.T) {
	var mu sync.Mutex
	value := `{"metrics":{"count":1}}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(value))
	}))
	defer server.Close()

	subs := newMemSubRepo()
	events := &memEventRepo{}
	broadcaster := &memBroadcaster{}
	poller := NewAPIPoller(subs, events, broadcaster)
	defer poller.Stop()

	id, err := poller.Add(PollerConfig{
		Name:        "count-watch",
		URL:         server.URL,
		Interval:    20,
		ExtractPath: "metrics.count",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// 首次取值即视为变化
	require.Eventually(t, func() bool {
		return broadcaster.count("environment_event") >= 1
	}, 2*time.Second, 5*time.Millisecond)

	// 值不变时不再产出事件
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, broadcaster.count("environment_event"))

	// 值变化后产出新事件
	mu.Lock()
	value = `{"metrics":{"count":2}}`
	mu.Unlock()

	require.Eventually(t, func() bool {
		return broadcaster.count("environment_event") >= 2
	}, 2*time.Second, 5*time.Millisecond)

	saved := events.all()
	require.NotEmpty(t, saved)
	assert.Equal(t, "api_poller", saved[0].Source)
	assert.Equal(t, "value_changed", saved[0].Type)
}

func TestAPIPoller_RemoveDeactivates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	subs := newMemSubRepo()
	poller := NewAPIPoller(subs, &memEventRepo{}, &memBroadcaster{})
	defer poller.Stop()

	id, err := poller.Add(PollerConfig{URL: server.URL, Interval: time.Hour.Milliseconds()})
	require.NoError(t, err)

	require.NoError(t, poller.Remove(id))
	assert.Equal(t, "inactive", subs.statusOf(id))
}

func TestSubscriptionManager_WebpagePoll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>hello page</body></html>"))
	}))
	defer server.Close()

	subs := newMemSubRepo()
	events := &memEventRepo{}
	broadcaster := &memBroadcaster{}
	mgr := NewSubscriptionManager(subs, events, broadcaster)
	defer mgr.Stop()

	id, err := mgr.Add(SubscriptionConfig{
		Type:     "webpage",
		URL:      server.URL,
		Interval: time.Hour.Milliseconds(),
		Name:     "demo",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	assert.Equal(t, 1, broadcaster.count("subscription_added"))

	require.Eventually(t, func() bool {
		return broadcaster.count("environment_event") >= 1
	}, 2*time.Second, 5*time.Millisecond)

	saved := events.all()
	require.NotEmpty(t, saved)
	assert.Equal(t, "subscription", saved[0].Source)
	assert.Equal(t, "webpage", saved[0].Type)
}

func TestFileWatcher_EmitsDebouncedEvents(t *testing.T) {
	dir := t.TempDir()

	events := &memEventRepo{}
	broadcaster := &memBroadcaster{}
	fw, err := NewFileWatcher(events, broadcaster)
	require.NoError(t, err)

	require.NoError(t, fw.Start([]string{dir}))
	defer fw.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.txt"), []byte("hi"), 0o644))

	require.Eventually(t, func() bool {
		return broadcaster.count("environment_event") >= 1
	}, 3*time.Second, 10*time.Millisecond)

	saved := events.all()
	require.NotEmpty(t, saved)
	assert.Equal(t, "file_watcher", saved[0].Source)
}

func TestFileWatcher_AddPathIdempotent(t *testing.T) {
	dir := t.TempDir()

	fw, err := NewFileWatcher(&memEventRepo{}, &memBroadcaster{})
	require.NoError(t, err)
	defer func() {
		close(fw.stopCh)
		_ = fw.watcher.Close()
	}()

	require.NoError(t, fw.AddPath(dir))
	require.NoError(t, fw.AddPath(dir))
	assert.Len(t, fw.watched, 1)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "短文本", snippet("短文本", 10))
	assert.Equal(t, "你好", snippet("你好世界", 2))
}
