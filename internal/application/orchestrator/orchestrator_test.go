package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icsys/backend/internal/application/contextbuild"
	"github.com/icsys/backend/internal/application/intent"
	"github.com/icsys/backend/internal/domain/conversation"
	"github.com/icsys/backend/internal/domain/environment"
	"github.com/icsys/backend/internal/domain/llm"
	"github.com/icsys/backend/internal/domain/memory"
	"github.com/icsys/backend/internal/domain/session"
	"github.com/icsys/backend/internal/domain/task"
	"github.com/icsys/backend/internal/infrastructure/config"
)

// notifierEvent 记录一次推送
type notifierEvent struct {
	ClientID string
	Type     string
	Data     map[string]any
}

// recordingNotifier 记录所有推送事件
type recordingNotifier struct {
	mu     sync.Mutex
	events []notifierEvent
}

func (n *recordingNotifier) SendToClient(clientID, eventType string, data any) {
	n.record(clientID, eventType, data)
}

func (n *recordingNotifier) Broadcast(eventType string, data any) {
	n.record("", eventType, data)
}

func (n *recordingNotifier) record(clientID, eventType string, data any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	m, _ := data.(map[string]any)
	n.events = append(n.events, notifierEvent{ClientID: clientID, Type: eventType, Data: m})
}

func (n *recordingNotifier) typesSeen() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	types := make([]string, 0, len(n.events))
	for _, e := range n.events {
		types = append(types, e.Type)
	}
	return types
}

func (n *recordingNotifier) find(eventType string) *notifierEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range n.events {
		if n.events[i].Type == eventType {
			return &n.events[i]
		}
	}
	return nil
}

func (n *recordingNotifier) countType(eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, e := range n.events {
		if e.Type == eventType {
			count++
		}
	}
	return count
}

// waitFor 等待某类事件出现，异步路由的测试同步点
func (n *recordingNotifier) waitFor(t *testing.T, eventType string) *notifierEvent {
	t.Helper()
	require.Eventually(t, func() bool {
		return n.find(eventType) != nil
	}, 2*time.Second, 5*time.Millisecond, "expected %s event", eventType)
	return n.find(eventType)
}

// scriptedLLM 可编程的生成能力桩
type scriptedLLM struct {
	mu            sync.Mutex
	intentResult  map[string]any
	streamChunks  []string
	analyzeCalled int
	streamBlocker chan struct{}
}

func (f *scriptedLLM) Chat(ctx context.Context, messages []conversation.ChatMessage, opts llm.ChatOptions) (string, error) {
	return "", nil
}

func (f *scriptedLLM) StreamChat(ctx context.Context, messages []conversation.ChatMessage, onChunk llm.ChunkHandler) (string, error) {
	if f.streamBlocker != nil {
		<-f.streamBlocker
	}
	var full strings.Builder
	for _, c := range f.streamChunks {
		full.WriteString(c)
		onChunk(c, full.String())
	}
	return full.String(), nil
}

func (f *scriptedLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (f *scriptedLLM) AnalyzeIntent(ctx context.Context, userInput string, analysisContext map[string]any) (map[string]any, error) {
	f.mu.Lock()
	f.analyzeCalled++
	f.mu.Unlock()
	return f.intentResult, nil
}

func (f *scriptedLLM) analyzeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.analyzeCalled
}

// memMessageLog 内存消息日志
type memMessageLog struct {
	mu       sync.Mutex
	messages map[string][]conversation.Message
}

func newMemMessageLog() *memMessageLog {
	return &memMessageLog{messages: make(map[string][]conversation.Message)}
}

func (l *memMessageLog) SaveMessage(sessionID string, msg *conversation.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages[sessionID] = append(l.messages[sessionID], *msg)
	return nil
}

func (l *memMessageLog) SessionMessages(sessionID string, limit int) ([]conversation.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msgs := l.messages[sessionID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]conversation.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (l *memMessageLog) FindMessage(sessionID, messageID string) (*conversation.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.messages[sessionID] {
		if l.messages[sessionID][i].ID == messageID {
			m := l.messages[sessionID][i]
			return &m, nil
		}
	}
	return nil, nil
}

func (l *memMessageLog) UpdateMessage(sessionID string, msg *conversation.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.messages[sessionID] {
		if l.messages[sessionID][i].ID == msg.ID {
			l.messages[sessionID][i] = *msg
		}
	}
	return nil
}

type memArchive struct {
	mu    sync.Mutex
	metas map[string]*conversation.IntentMeta
	specs map[string]*conversation.ContextSpec
	ctxs  map[string]any
}

func newMemArchive() *memArchive {
	return &memArchive{
		metas: make(map[string]*conversation.IntentMeta),
		specs: make(map[string]*conversation.ContextSpec),
		ctxs:  make(map[string]any),
	}
}

func (a *memArchive) SaveIntentMeta(id string, meta *conversation.IntentMeta) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metas[id] = meta
	return nil
}

func (a *memArchive) GetIntentMeta(id string) (*conversation.IntentMeta, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.metas[id], nil
}

func (a *memArchive) SaveContextSpec(id string, spec *conversation.ContextSpec) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.specs[id] = spec
	return nil
}

func (a *memArchive) GetContextSpec(id string) (*conversation.ContextSpec, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.specs[id], nil
}

func (a *memArchive) SaveIntentContext(id string, context any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ctxs[id] = context
	return nil
}

func (a *memArchive) GetIntentContext(id string, out any) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.ctxs[id]
	return ok, nil
}

type memIntentRepo struct {
	mu   sync.Mutex
	rows map[string]*conversation.IntentRow
}

func newMemIntentRepo() *memIntentRepo {
	return &memIntentRepo{rows: make(map[string]*conversation.IntentRow)}
}

func (r *memIntentRepo) Save(row *conversation.IntentRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[row.ID] = row
	return nil
}

func (r *memIntentRepo) FindByID(id string) (*conversation.IntentRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id], nil
}

func (r *memIntentRepo) FindBySession(sessionID string, limit int) ([]*conversation.IntentRow, error) {
	return nil, nil
}

type memTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*task.Task
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{tasks: make(map[string]*task.Task)}
}

func (r *memTaskRepo) Create(t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tasks[t.ID] = &cp
	return nil
}

func (r *memTaskRepo) UpdateStatus(id string, status task.Status, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		t.Status = status
		t.Progress = progress
	}
	return nil
}

func (r *memTaskRepo) FindByID(id string) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[id], nil
}

func (r *memTaskRepo) FindBySessionAndStatus(sessionID string, statuses []task.Status, limit int) ([]*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*task.Task
	for _, t := range r.tasks {
		if t.SessionID != sessionID {
			continue
		}
		for _, st := range statuses {
			if t.Status == st {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func (r *memTaskRepo) FindRecentByUser(userID string, limit int) ([]*task.Task, error) {
	return nil, nil
}

func (r *memTaskRepo) statusOf(id string) task.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		return t.Status
	}
	return ""
}

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*session.Session)}
}

func (r *memSessionRepo) FindByID(id string) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id], nil
}

func (r *memSessionRepo) Create(s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return nil
}

func (r *memSessionRepo) FindByUser(userID string, limit int) ([]*session.Session, error) {
	return nil, nil
}

type memProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*session.UserProfile
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{profiles: make(map[string]*session.UserProfile)}
}

func (r *memProfileRepo) FindByID(id string) (*session.UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.profiles[id], nil
}

func (r *memProfileRepo) Create(p *session.UserProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.ID] = p
	return nil
}

type memMemoryStore struct {
	mu    sync.Mutex
	saved []memory.Memory
}

func (s *memMemoryStore) SaveMemory(userID string, m *memory.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, *m)
	return nil
}

func (s *memMemoryStore) UserMemories(userID, memType string) ([]memory.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]memory.Memory, len(s.saved))
	copy(out, s.saved)
	return out, nil
}

func (s *memMemoryStore) savedMemories() []memory.Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]memory.Memory, len(s.saved))
	copy(out, s.saved)
	return out
}

type nilEventRepo struct{}

func (nilEventRepo) Save(e *environment.Event) error { return nil }
func (nilEventRepo) FindUnprocessed(limit int) ([]*environment.Event, error) {
	return nil, nil
}

type nilGraphStore struct{}

func (nilGraphStore) SaveGraph(sessionID string, g *conversation.CanvasGraph) error { return nil }
func (nilGraphStore) GetGraph(sessionID string) (*conversation.CanvasGraph, error) {
	return nil, nil
}

type orchestratorFixture struct {
	orch     *Orchestrator
	notifier *recordingNotifier
	llm      *scriptedLLM
	tasks    *memTaskRepo
	intents  *memIntentRepo
	msgLog   *memMessageLog
	memories *memMemoryStore
	archive  *memArchive
	cfg      *config.Config
}

func newOrchestratorFixture(t *testing.T, llmStub *scriptedLLM) *orchestratorFixture {
	t.Helper()

	cfg := config.NewConfig()
	cfg.ContextSpec.CompilationMode = "off"

	notifier := &recordingNotifier{}
	msgLog := newMemMessageLog()
	taskRepo := newMemTaskRepo()
	intentRepo := newMemIntentRepo()
	sessionRepo := newMemSessionRepo()
	profileRepo := newMemProfileRepo()
	memStore := &memMemoryStore{}
	archive := newMemArchive()

	engine := intent.NewEngine(llmStub, memStore, taskRepo)
	builder := contextbuild.NewBuilder(profileRepo, sessionRepo, memStore, msgLog,
		nilGraphStore{}, nilEventRepo{}, taskRepo, llmStub, nil, cfg)

	orch := NewOrchestrator(engine, builder, llmStub, notifier, msgLog, archive,
		intentRepo, taskRepo, sessionRepo, profileRepo, memStore, cfg)

	return &orchestratorFixture{
		orch:     orch,
		notifier: notifier,
		llm:      llmStub,
		tasks:    taskRepo,
		intents:  intentRepo,
		msgLog:   msgLog,
		memories: memStore,
		archive:  archive,
		cfg:      cfg,
	}
}

func TestOrchestrator_SimpleQuery_EventOrder(t *testing.T) {
	fx := newOrchestratorFixture(t, &scriptedLLM{
		intentResult: map[string]any{"intent": "question", "requiresAction": false},
		streamChunks: []string{"你好", "，有什么可以帮你"},
	})

	err := fx.orch.HandleUserInput(context.Background(), "client-1", ChatRequest{
		MessageID: "msg-1",
		SessionID: "s1",
		UserID:    "u1",
		Content:   "你好",
	})
	require.NoError(t, err)

	fx.notifier.waitFor(t, "response_end")

	types := fx.notifier.typesSeen()
	indexOf := func(name string) int {
		for i, ty := range types {
			if ty == name {
				return i
			}
		}
		return -1
	}

	assert.Less(t, indexOf("message_status"), indexOf("intent_analyzed"))
	assert.Less(t, indexOf("intent_analyzed"), indexOf("response_start"))
	assert.Less(t, indexOf("response_start"), indexOf("response_chunk"))
	assert.Less(t, indexOf("response_chunk"), indexOf("response_end"))

	// chunk 同时携带增量与累计全文
	chunk := fx.notifier.find("response_chunk")
	assert.Equal(t, "你好", chunk.Data["chunk"])
	assert.Equal(t, "你好", chunk.Data["accumulated"])
}

func TestOrchestrator_SimpleQuery_PersistsBothMessages(t *testing.T) {
	fx := newOrchestratorFixture(t, &scriptedLLM{
		intentResult: map[string]any{"intent": "question", "requiresAction": false},
		streamChunks: []string{"回答"},
	})

	err := fx.orch.HandleUserInput(context.Background(), "client-1", ChatRequest{
		MessageID: "msg-1",
		SessionID: "s1",
		UserID:    "u1",
		Content:   "提问",
	})
	require.NoError(t, err)
	fx.notifier.waitFor(t, "response_end")

	require.Eventually(t, func() bool {
		msgs, _ := fx.msgLog.SessionMessages("s1", 10)
		return len(msgs) == 2
	}, 2*time.Second, 5*time.Millisecond)

	msgs, _ := fx.msgLog.SessionMessages("s1", 10)
	assert.Equal(t, conversation.RoleUser, msgs[0].Role)
	assert.Equal(t, "msg-1", msgs[0].ID)
	assert.Equal(t, conversation.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "回答", msgs[1].Content)
	// AI 回复的父节点是意图节点
	row, _ := fx.intents.FindByID(msgs[1].ParentNodeID)
	assert.NotNil(t, row)
}

func TestOrchestrator_TaskFlow_CreatesAndCompletesTask(t *testing.T) {
	fx := newOrchestratorFixture(t, &scriptedLLM{
		intentResult: map[string]any{"intent": "task", "requiresAction": true},
		streamChunks: []string{"执行结果"},
	})

	err := fx.orch.HandleUserInput(context.Background(), "client-1", ChatRequest{
		MessageID: "msg-1",
		SessionID: "s1",
		UserID:    "u1",
		Content:   "帮我写个计划",
	})
	require.NoError(t, err)

	fx.notifier.waitFor(t, "task_created")
	fx.notifier.waitFor(t, "task_completed")

	created := fx.notifier.find("task_created")
	taskID, _ := created.Data["taskId"].(string)
	require.NotEmpty(t, taskID)

	require.Eventually(t, func() bool {
		return fx.tasks.statusOf(taskID) == task.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, fx.orch.ActiveTaskCount(), "completed task leaves the active table")
	assert.NotNil(t, fx.notifier.find("context_built"))
}

func TestOrchestrator_TaskLimit(t *testing.T) {
	blocker := make(chan struct{})
	fx := newOrchestratorFixture(t, &scriptedLLM{
		intentResult:  map[string]any{"intent": "task", "requiresAction": true},
		streamChunks:  []string{"结果"},
		streamBlocker: blocker,
	})
	fx.orch.cfg.MaxTasksPerSession = 2
	defer close(blocker)

	for i := 0; i < 3; i++ {
		err := fx.orch.HandleUserInput(context.Background(), "client-1", ChatRequest{
			SessionID: "s1",
			UserID:    "u1",
			Content:   "再来一个任务",
		})
		require.NoError(t, err)
		// 等待本条消息的任务真正进入活跃表或触发限额
		require.Eventually(t, func() bool {
			return fx.orch.ActiveTaskCount() >= min(i+1, 2) ||
				fx.notifier.find("task_limit_reached") != nil
		}, 2*time.Second, 5*time.Millisecond)
	}

	limit := fx.notifier.waitFor(t, "task_limit_reached")
	assert.EqualValues(t, 2, limit.Data["limit"])
	assert.Equal(t, 2, fx.orch.ActiveTaskCount(), "third task must not be created")
}

func TestOrchestrator_TimeoutSweep(t *testing.T) {
	fx := newOrchestratorFixture(t, &scriptedLLM{
		intentResult: map[string]any{"intent": "task", "requiresAction": true},
	})
	fx.orch.cfg.TaskTimeout = time.Minute

	taskID := "t-stuck"
	require.NoError(t, fx.tasks.Create(&task.Task{ID: taskID, SessionID: "s1", Status: task.StatusRunning}))
	fx.orch.mu.Lock()
	fx.orch.activeTasks[taskID] = &activeTask{
		sessionID: "s1",
		clientID:  "client-1",
		startTime: time.Now().Add(-2 * time.Minute),
	}
	fx.orch.mu.Unlock()

	fx.orch.sweepTimeouts(time.Now())

	assert.Equal(t, task.StatusTimeout, fx.tasks.statusOf(taskID))
	assert.Equal(t, 0, fx.orch.ActiveTaskCount())

	errEvent := fx.notifier.find("error")
	require.NotNil(t, errEvent)
	assert.Equal(t, "client-1", errEvent.ClientID)
	assert.Contains(t, errEvent.Data["error"], "timeout")
}

func TestOrchestrator_TimeoutSweep_KeepsFreshTasks(t *testing.T) {
	fx := newOrchestratorFixture(t, &scriptedLLM{})
	fx.orch.cfg.TaskTimeout = time.Minute

	fx.orch.mu.Lock()
	fx.orch.activeTasks["t-fresh"] = &activeTask{
		sessionID: "s1",
		clientID:  "client-1",
		startTime: time.Now(),
	}
	fx.orch.mu.Unlock()

	fx.orch.sweepTimeouts(time.Now())

	assert.Equal(t, 1, fx.orch.ActiveTaskCount())
	assert.Nil(t, fx.notifier.find("error"))
}

func TestOrchestrator_Reexecute_SkipsClassifier(t *testing.T) {
	llmStub := &scriptedLLM{streamChunks: []string{"重做的回答"}}
	fx := newOrchestratorFixture(t, llmStub)

	require.NoError(t, fx.intents.Save(&conversation.IntentRow{
		ID:         "intent-1",
		SessionID:  "s1",
		IntentType: "question",
		Topic:      "旧主题",
	}))

	prebuilt := &contextbuild.BuiltContext{
		Messages: []conversation.ChatMessage{
			{Role: conversation.RoleSystem, Content: "预构建上下文"},
			{Role: conversation.RoleUser, Content: "原始输入"},
		},
		Metadata: contextbuild.Metadata{SessionID: "s1", UserID: "u1"},
	}

	err := fx.orch.HandleReexecute(context.Background(), "client-1", ReexecuteRequest{
		SessionID:    "s1",
		UserID:       "u1",
		IntentNodeID: "intent-1",
		UserContent:  "原始输入",
		Context:      prebuilt,
	})
	require.NoError(t, err)

	end := fx.notifier.waitFor(t, "response_end")
	assert.Equal(t, "intent-1", end.Data["relatedMessageId"])
	assert.Equal(t, 0, llmStub.analyzeCalls(), "reexecute must not call the classifier")

	start := fx.notifier.find("response_start")
	assert.Equal(t, "intent-1", start.Data["parentNodeId"], "new branch hangs off the intent node")
}

func TestOrchestrator_Reexecute_UnknownIntent(t *testing.T) {
	fx := newOrchestratorFixture(t, &scriptedLLM{})

	err := fx.orch.HandleReexecute(context.Background(), "client-1", ReexecuteRequest{
		SessionID:    "s1",
		UserID:       "u1",
		IntentNodeID: "missing",
	})
	require.Error(t, err)

	errEvent := fx.notifier.find("error")
	require.NotNil(t, errEvent)
	assert.Equal(t, "missing", errEvent.Data["messageId"])
}

func TestOrchestrator_MemoryExtraction(t *testing.T) {
	long := strings.Repeat("长回答内容。", 50)
	fx := newOrchestratorFixture(t, &scriptedLLM{
		intentResult: map[string]any{"intent": "task", "requiresAction": true},
		streamChunks: []string{long},
	})

	err := fx.orch.HandleUserInput(context.Background(), "client-1", ChatRequest{
		SessionID: "s1",
		UserID:    "u1",
		Content:   "做点什么",
	})
	require.NoError(t, err)
	fx.notifier.waitFor(t, "task_completed")

	require.Eventually(t, func() bool {
		return len(fx.memories.savedMemories()) > 0
	}, 2*time.Second, 5*time.Millisecond)

	saved := fx.memories.savedMemories()
	assert.Equal(t, memory.TypeTask, saved[0].Type, "task responses become task memories")
	assert.LessOrEqual(t, len(saved[0].Content), 500)
}

func TestOrchestrator_MemoryExtraction_ShortResponseSkipped(t *testing.T) {
	fx := newOrchestratorFixture(t, &scriptedLLM{
		intentResult: map[string]any{"intent": "question", "requiresAction": false},
		streamChunks: []string{"短回答"},
	})

	err := fx.orch.HandleUserInput(context.Background(), "client-1", ChatRequest{
		SessionID: "s1",
		UserID:    "u1",
		Content:   "问题",
	})
	require.NoError(t, err)
	fx.notifier.waitFor(t, "response_end")

	assert.Empty(t, fx.memories.savedMemories())
}

func TestOrchestrator_Interrupt_ReportsRunningTasks(t *testing.T) {
	fx := newOrchestratorFixture(t, &scriptedLLM{
		intentResult: map[string]any{"intent": "interrupt", "urgency": "high"},
		streamChunks: []string{"当前任务正在进行"},
	})

	require.NoError(t, fx.tasks.Create(&task.Task{
		ID: "t-run", SessionID: "s1", Type: "task", Status: task.StatusRunning, Progress: 40,
	}))

	err := fx.orch.HandleUserInput(context.Background(), "client-1", ChatRequest{
		SessionID: "s1",
		UserID:    "u1",
		Content:   "现在进展如何",
	})
	require.NoError(t, err)

	fx.notifier.waitFor(t, "response_end")

	start := fx.notifier.find("response_start")
	assert.Equal(t, "interrupt_response", start.Data["nodeType"])
	ids, _ := start.Data["relatedTaskIds"].([]string)
	assert.Contains(t, ids, "t-run")
	// 打断不创建新任务
	assert.Nil(t, fx.notifier.find("task_created"))
}

func TestOrchestrator_EnsureSession_CreatesSessionAndProfile(t *testing.T) {
	fx := newOrchestratorFixture(t, &scriptedLLM{
		intentResult: map[string]any{"intent": "question", "requiresAction": false},
		streamChunks: []string{"ok"},
	})

	err := fx.orch.HandleUserInput(context.Background(), "client-1", ChatRequest{
		SessionID: "s-new",
		UserID:    "u-new",
		Content:   "hi",
	})
	require.NoError(t, err)
	fx.notifier.waitFor(t, "response_end")

	s, _ := fx.orch.sessions.FindByID("s-new")
	require.NotNil(t, s)
	assert.Equal(t, "New Session", s.Title)
	assert.Equal(t, "u-new", s.UserID)

	p, _ := fx.orch.profiles.FindByID("u-new")
	require.NotNil(t, p)
	assert.Equal(t, "User", p.Name)
}

func TestOrchestrator_ArchivesIntentArtifacts(t *testing.T) {
	fx := newOrchestratorFixture(t, &scriptedLLM{
		intentResult: map[string]any{"intent": "question", "requiresAction": false},
		streamChunks: []string{"ok"},
	})

	err := fx.orch.HandleUserInput(context.Background(), "client-1", ChatRequest{
		SessionID: "s1",
		UserID:    "u1",
		Content:   "问个问题",
	})
	require.NoError(t, err)
	analyzed := fx.notifier.waitFor(t, "intent_analyzed")
	intentID, _ := analyzed.Data["intentId"].(string)
	require.NotEmpty(t, intentID)

	meta, _ := fx.archive.GetIntentMeta(intentID)
	assert.NotNil(t, meta)

	spec, _ := fx.archive.GetContextSpec(intentID)
	require.NotNil(t, spec)
	assert.Equal(t, intentID, spec.IntentID)

	found, _ := fx.archive.GetIntentContext(intentID, nil)
	assert.True(t, found)
}
