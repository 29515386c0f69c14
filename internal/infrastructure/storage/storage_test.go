package storage

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icsys/backend/internal/domain/conversation"
	"github.com/icsys/backend/internal/domain/environment"
	"github.com/icsys/backend/internal/domain/session"
	"github.com/icsys/backend/internal/domain/task"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSessionRepository_CreateAndFind(t *testing.T) {
	db := openTestDB(t)
	repo := NewSessionRepository(db)

	require.NoError(t, repo.Create(&session.Session{ID: "s1", UserID: "u1", Title: "New Session"}))

	s, err := repo.FindByID("s1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "New Session", s.Title)
	// 默认状态 active
	assert.Equal(t, "active", s.Status)

	missing, err := repo.FindByID("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	sessions, err := repo.FindByUser("u1", 10)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestProfileRepository_PreferencesRoundtrip(t *testing.T) {
	db := openTestDB(t)
	repo := NewProfileRepository(db)

	require.NoError(t, repo.Create(&session.UserProfile{
		ID:          "u1",
		Name:        "User",
		Preferences: map[string]string{"lang": "zh"},
	}))

	p, err := repo.FindByID("u1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "zh", p.Preferences["lang"])
}

func TestTaskRepository_StatusFilter(t *testing.T) {
	db := openTestDB(t)
	repo := NewTaskRepository(db)

	require.NoError(t, repo.Create(&task.Task{ID: "t1", SessionID: "s1", Type: "task", Status: task.StatusRunning, Input: "a"}))
	require.NoError(t, repo.Create(&task.Task{ID: "t2", SessionID: "s1", Type: "task", Status: task.StatusCompleted, Input: "b"}))
	require.NoError(t, repo.Create(&task.Task{ID: "t3", SessionID: "s2", Type: "task", Status: task.StatusRunning, Input: "c"}))

	running, err := repo.FindBySessionAndStatus("s1", []task.Status{task.StatusRunning, task.StatusPending}, 10)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "t1", running[0].ID)

	require.NoError(t, repo.UpdateStatus("t1", task.StatusTimeout, 0))
	updated, err := repo.FindByID("t1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusTimeout, updated.Status)
}

func TestTaskRepository_DefaultsOnCreate(t *testing.T) {
	db := openTestDB(t)
	repo := NewTaskRepository(db)

	created := &task.Task{SessionID: "s1", Type: "task", Input: "x"}
	require.NoError(t, repo.Create(created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, task.StatusPending, created.Status)
	assert.NotZero(t, created.CreatedAt)
}

func TestIntentRepository_TopicsRoundtrip(t *testing.T) {
	db := openTestDB(t)
	repo := NewIntentRepository(db)

	require.NoError(t, repo.Save(&conversation.IntentRow{
		ID:            "i1",
		SessionID:     "s1",
		UserMessageID: "m1",
		IntentType:    "question",
		Topic:         "golang",
		Urgency:       "medium",
		RelatedTopics: []string{"concurrency", "channels"},
		Confidence:    0.85,
	}))

	row, err := repo.FindByID("i1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, []string{"concurrency", "channels"}, row.RelatedTopics)
	assert.InDelta(t, 0.85, row.Confidence, 1e-9)

	missing, err := repo.FindByID("i9")
	require.NoError(t, err)
	assert.Nil(t, missing)

	rows, err := repo.FindBySession("s1", 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestEventRepository_UnprocessedOnly(t *testing.T) {
	db := openTestDB(t)
	repo := NewEventRepository(db)

	require.NoError(t, repo.Save(&environment.Event{Source: "file_watcher", Type: "file_added", Data: "{}"}))
	require.NoError(t, repo.Save(&environment.Event{Source: "api_poller", Type: "value_changed", Data: "{}", Processed: true}))

	events, err := repo.FindUnprocessed(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "file_added", events[0].Type)
}

func TestSubscriptionRepository_ActiveFilter(t *testing.T) {
	db := openTestDB(t)
	repo := NewSubscriptionRepository(db)

	require.NoError(t, repo.Save(&environment.Subscription{ID: "sub1", Type: "rss", Config: "{}"}))
	require.NoError(t, repo.Save(&environment.Subscription{ID: "sub2", Type: "api", Config: "{}"}))

	all, err := repo.FindActive("")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	apiOnly, err := repo.FindActive("api")
	require.NoError(t, err)
	require.Len(t, apiOnly, 1)
	assert.Equal(t, "sub2", apiOnly[0].ID)

	require.NoError(t, repo.UpdateStatus("sub1", "inactive"))
	active, err := repo.FindActive("")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "sub2", active[0].ID)

	require.NoError(t, repo.TouchLastCheck("sub2"))
	touched, err := repo.FindActive("api")
	require.NoError(t, err)
	assert.NotZero(t, touched[0].LastCheck)
}
