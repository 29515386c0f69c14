package contextbuild

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/icsys/backend/internal/domain/conversation"
	"github.com/icsys/backend/internal/domain/environment"
	"github.com/icsys/backend/internal/domain/llm"
	"github.com/icsys/backend/internal/domain/memory"
	"github.com/icsys/backend/internal/domain/session"
	"github.com/icsys/backend/internal/domain/task"
	"github.com/icsys/backend/internal/infrastructure/config"
	"github.com/icsys/backend/internal/infrastructure/log"
	"github.com/icsys/backend/internal/infrastructure/token"
)

// maxLineageDepth 锚点回溯的最大节点数
const maxLineageDepth = 20

// EnvironmentState 环境快照
type EnvironmentState struct {
	Events    []EnvironmentEvent `json:"events"`
	Timestamp int64              `json:"timestamp"`
}

// EnvironmentEvent 供提示词使用的环境事件视图
type EnvironmentEvent struct {
	Source string `json:"source"`
	Type   string `json:"type"`
	Data   string `json:"data"`
	Time   int64  `json:"time"`
}

// TaskSummary 供提示词使用的任务摘要
type TaskSummary struct {
	ID       string      `json:"id"`
	Type     string      `json:"type"`
	Status   task.Status `json:"status"`
	Progress int         `json:"progress"`
	Input    string      `json:"input"`
}

// Builder 上下文装配器
// 每个来源各自降级：单个来源失败退化为空值，整体构建只在全部来源不可用时失败
type Builder struct {
	profiles   session.ProfileRepository
	sessions   session.Repository
	memories   memory.Store
	messageLog conversation.MessageLog
	graphs     conversation.GraphStore
	events     environment.EventRepository
	tasks      task.Repository
	llm        llm.Service
	vectors    memory.VectorIndex
	cfg        config.ContextSpecConfig
	logger     *slog.Logger
}

// NewBuilder 创建上下文装配器
// vectors 可以为 nil，此时记忆检索只走时间序
func NewBuilder(
	profiles session.ProfileRepository,
	sessions session.Repository,
	memories memory.Store,
	messageLog conversation.MessageLog,
	graphs conversation.GraphStore,
	events environment.EventRepository,
	tasks task.Repository,
	llmService llm.Service,
	vectors memory.VectorIndex,
	cfg *config.Config,
) *Builder {
	return &Builder{
		profiles:   profiles,
		sessions:   sessions,
		memories:   memories,
		messageLog: messageLog,
		graphs:     graphs,
		events:     events,
		tasks:      tasks,
		llm:        llmService,
		vectors:    vectors,
		cfg:        cfg.ContextSpec,
		logger:     log.NewModuleLogger("contextbuild", "builder"),
	}
}

// Build 为一次意图装配完整上下文
// 各来源并行取数，之后按 CRS 组装为可直接发送的消息序列
func (b *Builder) Build(ctx context.Context, intent *conversation.Intent, sessionID string) (*BuiltContext, error) {
	spec := b.BuildSpec(intent, sessionID)

	var (
		profile     *session.UserProfile
		sessionInfo *session.Session
		relevant    []memory.Memory
		recent      []conversation.Message
		envState    *EnvironmentState
		related     []TaskSummary
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		profile = b.userProfile(intent.UserID)
		return nil
	})
	g.Go(func() error {
		sessionInfo = b.sessionInfo(sessionID)
		return nil
	})
	g.Go(func() error {
		relevant = b.relevantMemories(gctx, intent)
		return nil
	})
	g.Go(func() error {
		if intent.ContextHints.IncludeRecentHistory {
			recent = b.recentHistory(sessionID, spec.HistoryPolicy.AnchorNodeID)
		}
		return nil
	})
	g.Go(func() error {
		if intent.ContextHints.IncludeEnvironmentState {
			envState = b.environmentState()
		}
		return nil
	})
	g.Go(func() error {
		related = b.relatedTasks(sessionID)
		return nil
	})

	// 各取数闭包自行降级，这里不会收到错误
	_ = g.Wait()

	compiled := b.compileContext(ctx, &compileInput{
		Intent:   intent,
		Spec:     spec,
		Recent:   recent,
		Memories: relevant,
		Tasks:    related,
		Env:      envState,
	})

	built := b.compose(&composeInput{
		Intent:   intent,
		Spec:     spec,
		Profile:  profile,
		Session:  sessionInfo,
		Memories: relevant,
		Recent:   recent,
		Env:      envState,
		Tasks:    related,
		Compiled: compiled,
	})

	return built, nil
}

// userProfile 读取用户画像，缺失时合成默认画像
func (b *Builder) userProfile(userID string) *session.UserProfile {
	profile, err := b.profiles.FindByID(userID)
	if err != nil {
		b.logger.Warn("failed to load user profile", "user_id", userID, "error", err)
	}
	if profile == nil {
		return &session.UserProfile{
			ID:          userID,
			Name:        "User",
			Preferences: map[string]string{},
		}
	}
	return profile
}

// sessionInfo 读取会话信息，缺失时合成占位会话
func (b *Builder) sessionInfo(sessionID string) *session.Session {
	s, err := b.sessions.FindByID(sessionID)
	if err != nil {
		b.logger.Warn("failed to load session", "session_id", sessionID, "error", err)
	}
	if s == nil {
		return &session.Session{
			ID:     sessionID,
			Title:  "New Session",
			Status: "active",
		}
	}
	return s
}

// recentHistory 解析对话历史
// 有锚点时沿画布父链回溯（分支感知），无锚点时取会话最近 10 条
func (b *Builder) recentHistory(sessionID, anchorID string) []conversation.Message {
	if anchorID == "" {
		messages, err := b.messageLog.SessionMessages(sessionID, 10)
		if err != nil {
			b.logger.Warn("failed to load recent messages", "session_id", sessionID, "error", err)
			return nil
		}
		return messages
	}
	return b.messagesUpToNode(sessionID, anchorID)
}

// messagesUpToNode 返回从根到指定节点的消息路径
// 优先使用画布图，图缺失或锚点不在图中时回退到消息日志的父链
func (b *Builder) messagesUpToNode(sessionID, anchorID string) []conversation.Message {
	graph, err := b.graphs.GetGraph(sessionID)
	if err != nil {
		b.logger.Warn("failed to load canvas graph", "session_id", sessionID, "error", err)
	}

	if graph != nil && len(graph.Nodes) > 0 {
		index := graph.NodeIndex()
		if _, ok := index[anchorID]; ok {
			path := conversation.LineagePath(index, anchorID, maxLineageDepth)
			return conversation.MessagesOnPath(path)
		}
	}

	// 图不可用：在消息日志上做同样的父链回溯
	all, err := b.messageLog.SessionMessages(sessionID, 1000)
	if err != nil {
		b.logger.Warn("failed to load session messages", "session_id", sessionID, "error", err)
		return nil
	}

	byID := make(map[string]*conversation.Message, len(all))
	for i := range all {
		byID[all[i].ID] = &all[i]
	}

	anchor, ok := byID[anchorID]
	if !ok {
		if len(all) > 10 {
			return all[len(all)-10:]
		}
		return all
	}

	visited := make(map[string]bool)
	var path []conversation.Message
	current := anchor
	for current != nil && len(path) < maxLineageDepth {
		if visited[current.ID] {
			break
		}
		visited[current.ID] = true
		path = append(path, *current)

		if current.ParentNodeID == "" {
			break
		}
		parent, ok := byID[current.ParentNodeID]
		if !ok {
			break
		}
		current = parent
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// relevantMemories 检索相关记忆
// 类型过滤 + 语义检索合并；向量检索失败时退化为纯时间序
func (b *Builder) relevantMemories(ctx context.Context, intent *conversation.Intent) []memory.Memory {
	all, err := b.memories.UserMemories(intent.UserID, "")
	if err != nil {
		b.logger.Warn("failed to load user memories", "user_id", intent.UserID, "error", err)
		return nil
	}

	typeSet := make(map[string]bool, len(intent.ContextHints.MemoryTypes))
	for _, t := range intent.ContextHints.MemoryTypes {
		typeSet[t] = true
	}

	filtered := make([]memory.Memory, 0, len(all))
	for _, m := range all {
		if typeSet[m.Type] {
			filtered = append(filtered, m)
		}
	}

	if intent.UserInput != "" && b.vectors != nil {
		if merged, ok := b.semanticMerge(ctx, intent.UserInput, filtered); ok {
			return merged
		}
	}

	if len(filtered) > 10 {
		return filtered[len(filtered)-10:]
	}
	return filtered
}

// semanticMerge 最近 5 条 + 语义最相近 5 条
func (b *Builder) semanticMerge(ctx context.Context, input string, filtered []memory.Memory) ([]memory.Memory, bool) {
	embedding, err := b.llm.Embed(ctx, input)
	if err != nil {
		b.logger.Debug("embedding failed, falling back to recency", "error", err)
		return nil, false
	}

	similar, err := b.vectors.SearchSimilar(embedding, 5)
	if err != nil {
		b.logger.Debug("similarity search failed, falling back to recency", "error", err)
		return nil, false
	}

	recent := filtered
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}

	merged := make([]memory.Memory, 0, len(recent)+len(similar))
	merged = append(merged, recent...)
	for _, s := range similar {
		merged = append(merged, s.Memory)
	}
	return merged, true
}

// environmentState 读取未处理的环境事件
func (b *Builder) environmentState() *EnvironmentState {
	events, err := b.events.FindUnprocessed(20)
	if err != nil {
		b.logger.Warn("failed to load environment events", "error", err)
		return nil
	}

	state := &EnvironmentState{
		Events:    make([]EnvironmentEvent, 0, len(events)),
		Timestamp: time.Now().UnixMilli(),
	}
	for _, e := range events {
		state.Events = append(state.Events, EnvironmentEvent{
			Source: e.Source,
			Type:   e.Type,
			Data:   e.Data,
			Time:   e.CreatedAt,
		})
	}
	return state
}

// relatedTasks 会话内运行中或等待中的任务
func (b *Builder) relatedTasks(sessionID string) []TaskSummary {
	tasks, err := b.tasks.FindBySessionAndStatus(sessionID, []task.Status{task.StatusRunning, task.StatusPending}, 5)
	if err != nil {
		b.logger.Warn("failed to load related tasks", "session_id", sessionID, "error", err)
		return nil
	}

	summaries := make([]TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		summaries = append(summaries, TaskSummary{
			ID:       t.ID,
			Type:     t.Type,
			Status:   t.Status,
			Progress: t.Progress,
			Input:    clip(t.Input, 100),
		})
	}
	return summaries
}

// tokenEstimate 估算消息序列的 token 总量，估算器不可用时返回 0
func tokenEstimate(messages []conversation.ChatMessage) int {
	estimator, err := token.GetEstimator()
	if err != nil {
		return 0
	}
	texts := make([]string, 0, len(messages))
	for _, m := range messages {
		texts = append(texts, m.Content)
	}
	return estimator.CountTokensBatch(texts)
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
