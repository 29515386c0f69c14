package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icsys/backend/internal/domain/conversation"
	"github.com/icsys/backend/internal/domain/llm"
	"github.com/icsys/backend/internal/domain/memory"
	"github.com/icsys/backend/internal/domain/task"
)

// fakeLLM 返回预置的分类结果
type fakeLLM struct {
	raw map[string]any
	err error
}

func (f *fakeLLM) Chat(ctx context.Context, messages []conversation.ChatMessage, opts llm.ChatOptions) (string, error) {
	return "", nil
}

func (f *fakeLLM) StreamChat(ctx context.Context, messages []conversation.ChatMessage, onChunk llm.ChunkHandler) (string, error) {
	return "", nil
}

func (f *fakeLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLLM) AnalyzeIntent(ctx context.Context, userInput string, analysisContext map[string]any) (map[string]any, error) {
	return f.raw, f.err
}

type fakeMemoryStore struct {
	memories []memory.Memory
}

func (f *fakeMemoryStore) SaveMemory(userID string, m *memory.Memory) error {
	f.memories = append(f.memories, *m)
	return nil
}

func (f *fakeMemoryStore) UserMemories(userID, memType string) ([]memory.Memory, error) {
	return f.memories, nil
}

type fakeTaskRepo struct {
	recent []*task.Task
}

func (f *fakeTaskRepo) Create(t *task.Task) error                                { return nil }
func (f *fakeTaskRepo) UpdateStatus(id string, s task.Status, progress int) error { return nil }
func (f *fakeTaskRepo) FindByID(id string) (*task.Task, error)                   { return nil, nil }
func (f *fakeTaskRepo) FindBySessionAndStatus(sessionID string, statuses []task.Status, limit int) ([]*task.Task, error) {
	return nil, nil
}
func (f *fakeTaskRepo) FindRecentByUser(userID string, limit int) ([]*task.Task, error) {
	return f.recent, nil
}

func newTestEngine(llmService llm.Service) *Engine {
	return NewEngine(llmService, &fakeMemoryStore{}, &fakeTaskRepo{})
}

func TestEngine_Analyze_NormalizesRawOutput(t *testing.T) {
	engine := newTestEngine(&fakeLLM{
		raw: map[string]any{
			"intent":         "task",
			"topic":          "写周报",
			"urgency":        "high",
			"requiresAction": true,
			"relatedTopics":  "工作总结", // 标量应被包装为数组
			"confidence":     "0.85",   // 字符串数字应被解析
			"intentStruct": map[string]any{
				"goal":        "  帮我写一份周报  ",
				"constraints": []any{"本周内完成"},
			},
		},
	})

	intent, err := engine.Analyze(context.Background(), "user-1", "帮我写一份周报", SessionContext{SessionID: "s1"})
	require.NoError(t, err)

	assert.NotEmpty(t, intent.ID)
	assert.Equal(t, "user-1", intent.UserID)
	assert.Equal(t, "s1", intent.SessionID)
	assert.Equal(t, conversation.IntentTask, intent.Type)
	assert.Equal(t, conversation.UrgencyHigh, intent.Urgency)
	assert.True(t, intent.RequiresAction)
	assert.Equal(t, []string{"工作总结"}, intent.RelatedTopics)
	assert.InDelta(t, 0.85, intent.Confidence, 1e-9)
	assert.Equal(t, "帮我写一份周报", intent.Struct.Goal, "goal should be trimmed")
	assert.Equal(t, []string{"本周内完成"}, intent.Struct.Constraints)
	// 分类器未给出 evidence 时补充用户输入片段
	require.Len(t, intent.Struct.Evidence, 1)
	assert.Equal(t, "user_input", intent.Struct.Evidence[0].Source)
}

func TestEngine_Analyze_FallbackOnClassifierFailure(t *testing.T) {
	engine := newTestEngine(&fakeLLM{err: errors.New("upstream timeout")})

	input := "这段代码为什么会 panic"
	intent, err := engine.Analyze(context.Background(), "user-1", input, SessionContext{})
	require.NoError(t, err, "classifier failure should not surface as error")

	assert.Equal(t, conversation.IntentQuestion, intent.Type)
	assert.Equal(t, conversation.UrgencyMedium, intent.Urgency)
	assert.False(t, intent.RequiresAction)
	assert.Equal(t, "neutral", intent.Sentiment)
	assert.InDelta(t, 0.5, intent.Confidence, 1e-9)
	assert.Equal(t, input, intent.Topic)
	assert.Equal(t, input, intent.Struct.Goal)
	require.Len(t, intent.Struct.Evidence, 1)
	assert.Equal(t, input, intent.Struct.Evidence[0].Span)
	assert.NotNil(t, intent.RelatedTopics)
	assert.NotNil(t, intent.Struct.Constraints)
}

func TestEngine_Analyze_RequiresActionDefault(t *testing.T) {
	tests := []struct {
		name       string
		intentType string
		want       bool
	}{
		{"question 默认不需要执行", "question", false},
		{"task 默认需要执行", "task", true},
		{"feedback 默认需要执行", "feedback", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(&fakeLLM{raw: map[string]any{"intent": tt.intentType}})
			intent, err := engine.Analyze(context.Background(), "u", "input", SessionContext{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, intent.RequiresAction)
		})
	}
}

func TestEngine_Analyze_ContextHints(t *testing.T) {
	tests := []struct {
		name            string
		raw             map[string]any
		wantHistory     bool
		wantEnvironment bool
		wantMemoryTypes []string
	}{
		{
			name:            "普通问题",
			raw:             map[string]any{"intent": "question", "urgency": "medium"},
			wantHistory:     true,
			wantEnvironment: false,
			wantMemoryTypes: []string{"knowledge", "conversation"},
		},
		{
			name:            "高紧急任务",
			raw:             map[string]any{"intent": "task", "urgency": "high"},
			wantHistory:     true,
			wantEnvironment: true,
			wantMemoryTypes: []string{"task", "project", "code"},
		},
		{
			name:            "打断不带历史",
			raw:             map[string]any{"intent": "interrupt", "urgency": "low"},
			wantHistory:     false,
			wantEnvironment: false,
			wantMemoryTypes: []string{"task", "conversation"},
		},
		{
			name:            "未知意图回退到会话记忆",
			raw:             map[string]any{"intent": "chitchat"},
			wantHistory:     true,
			wantEnvironment: false,
			wantMemoryTypes: []string{"conversation"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(&fakeLLM{raw: tt.raw})
			intent, err := engine.Analyze(context.Background(), "u", "input", SessionContext{})
			require.NoError(t, err)

			hints := intent.ContextHints
			assert.True(t, hints.IncludeUserProfile)
			assert.True(t, hints.IncludeRelatedMemories)
			assert.Equal(t, tt.wantHistory, hints.IncludeRecentHistory)
			assert.Equal(t, tt.wantEnvironment, hints.IncludeEnvironmentState)
			assert.Equal(t, tt.wantMemoryTypes, hints.MemoryTypes)
		})
	}
}

func TestEngine_Analyze_TimeRangeByUrgency(t *testing.T) {
	tests := []struct {
		urgency string
		want    conversation.TimeRange
	}{
		{"high", conversation.TimeRange{Hours: 1}},
		{"medium", conversation.TimeRange{Hours: 24}},
		{"low", conversation.TimeRange{Days: 7}},
		{"unknown", conversation.TimeRange{Hours: 24}},
	}

	for _, tt := range tests {
		t.Run(tt.urgency, func(t *testing.T) {
			engine := newTestEngine(&fakeLLM{raw: map[string]any{"urgency": tt.urgency}})
			intent, err := engine.Analyze(context.Background(), "u", "input", SessionContext{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, intent.ContextHints.TimeRange)
		})
	}
}

func TestEngine_Analyze_ParentNodeBecomesAnchor(t *testing.T) {
	engine := newTestEngine(&fakeLLM{raw: map[string]any{}})

	intent, err := engine.Analyze(context.Background(), "u", "input", SessionContext{
		SessionID:    "s1",
		ParentNodeID: "node-42",
	})
	require.NoError(t, err)

	assert.Equal(t, "node-42", intent.ParentNodeID)
	assert.Equal(t, "node-42", intent.AnchorNodeID)
}
