package kvstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icsys/backend/internal/domain/conversation"
	"github.com/icsys/backend/internal/domain/memory"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "kv"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMessageLog_OrderAndLimit(t *testing.T) {
	store := openTestStore(t)

	for i := 0; i < 5; i++ {
		err := store.SaveMessage("s1", &conversation.Message{
			ID:        string(rune('a' + i)),
			Role:      conversation.RoleUser,
			Content:   "msg",
			Timestamp: int64(1000 + i),
		})
		require.NoError(t, err)
	}
	// 其他会话的消息不应混入
	require.NoError(t, store.SaveMessage("s2", &conversation.Message{
		ID: "x", Role: conversation.RoleUser, Content: "other", Timestamp: 1002,
	}))

	messages, err := store.SessionMessages("s1", 3)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	// 返回最近 3 条，时间升序
	assert.Equal(t, "c", messages[0].ID)
	assert.Equal(t, "e", messages[2].ID)
}

func TestMessageLog_FindMessage(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.SaveMessage("s1", &conversation.Message{
		ID: "m1", Role: conversation.RoleUser, Content: "hello", Timestamp: 100,
	}))

	msg, err := store.FindMessage("s1", "m1")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "hello", msg.Content)

	missing, err := store.FindMessage("s1", "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMessageLog_UpdateKeepsLogPosition(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.SaveMessage("s1", &conversation.Message{
		ID: "m1", Role: conversation.RoleUser, Content: "v1", Timestamp: 100,
	}))
	require.NoError(t, store.SaveMessage("s1", &conversation.Message{
		ID: "m2", Role: conversation.RoleAssistant, Content: "v1", Timestamp: 200,
	}))

	msg, err := store.FindMessage("s1", "m1")
	require.NoError(t, err)
	msg.ApplyEdit("v2", "fix typo", 999)
	require.NoError(t, store.UpdateMessage("s1", msg))

	messages, err := store.SessionMessages("s1", 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	// 编辑不改变消息在日志中的位置
	assert.Equal(t, "m1", messages[0].ID)
	assert.Equal(t, "v2", messages[0].CurrentContent())
	assert.Equal(t, "v1", messages[0].EditHistory[0].OriginalContent)

	err = store.UpdateMessage("s1", &conversation.Message{ID: "ghost"})
	assert.Error(t, err)
}

func TestGraphStore_Roundtrip(t *testing.T) {
	store := openTestStore(t)

	missing, err := store.GetGraph("s1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	graph := &conversation.CanvasGraph{
		SessionID: "s1",
		Nodes: []conversation.GraphNode{
			{ID: "n1", Type: conversation.NodeChat, Title: "User", Content: "hi"},
			{ID: "n2", Type: conversation.NodeIntent, ParentNodeID: "n1"},
		},
		Edges: []conversation.GraphEdge{{ID: "e1", Source: "n1", Target: "n2"}},
	}
	require.NoError(t, store.SaveGraph("s1", graph))

	loaded, err := store.GetGraph("s1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Len(t, loaded.Nodes, 2)
	assert.Equal(t, "n1", loaded.Edges[0].Source)
}

func TestIntentArchive_Roundtrip(t *testing.T) {
	store := openTestStore(t)

	meta := &conversation.IntentMeta{
		Struct:     conversation.IntentStruct{Goal: "learn go", Confidence: 0.8},
		Confidence: 0.8,
		SavedAt:    123,
	}
	require.NoError(t, store.SaveIntentMeta("i1", meta))

	loaded, err := store.GetIntentMeta("i1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "learn go", loaded.Struct.Goal)

	missing, err := store.GetIntentMeta("i2")
	require.NoError(t, err)
	assert.Nil(t, missing)

	snapshot := map[string]any{"contextSize": float64(4)}
	require.NoError(t, store.SaveIntentContext("i1", snapshot))

	var out map[string]any
	ok, err := store.GetIntentContext("i1", &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(4), out["contextSize"])

	ok, err = store.GetIntentContext("i2", &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_TypeFilter(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.SaveMemory("u1", &memory.Memory{Type: memory.TypeConversation, Content: "a", Timestamp: 1}))
	require.NoError(t, store.SaveMemory("u1", &memory.Memory{Type: memory.TypeTask, Content: "b", Timestamp: 2}))
	require.NoError(t, store.SaveMemory("u2", &memory.Memory{Type: memory.TypeTask, Content: "c", Timestamp: 3}))

	all, err := store.UserMemories("u1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	tasks, err := store.UserMemories("u1", memory.TypeTask)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "b", tasks[0].Content)
}

func TestEmbeddingStore_Iterates(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.SaveEmbedding("e1", []float32{0.1, 0.2}, &memory.Memory{Type: memory.TypeKnowledge, Content: "vec"}))

	var ids []string
	err := store.AllEmbeddings(func(id string, rec *EmbeddingRecord) error {
		ids = append(ids, id)
		assert.Len(t, rec.Embedding, 2)
		assert.Equal(t, "vec", rec.Metadata.Content)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, ids)
}
