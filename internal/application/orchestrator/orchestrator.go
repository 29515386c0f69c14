package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/icsys/backend/internal/application/contextbuild"
	"github.com/icsys/backend/internal/application/intent"
	"github.com/icsys/backend/internal/domain/conversation"
	"github.com/icsys/backend/internal/domain/llm"
	"github.com/icsys/backend/internal/domain/memory"
	"github.com/icsys/backend/internal/domain/session"
	"github.com/icsys/backend/internal/domain/task"
	"github.com/icsys/backend/internal/infrastructure/config"
	"github.com/icsys/backend/internal/infrastructure/log"
)

// Notifier 推送出站事件
// 客户端不在线时静默丢弃，编排流程不感知投递结果
type Notifier interface {
	SendToClient(clientID, eventType string, data any)
	Broadcast(eventType string, data any)
}

// ChatRequest 一条入站聊天消息
type ChatRequest struct {
	MessageID    string `json:"messageId"`
	SessionID    string `json:"sessionId"`
	UserID       string `json:"userId"`
	Content      string `json:"content"`
	ParentNodeID string `json:"parentNodeId"`
}

// ReexecuteRequest 基于已有意图节点重新执行
type ReexecuteRequest struct {
	SessionID    string                     `json:"sessionId"`
	UserID       string                     `json:"userId"`
	IntentNodeID string                     `json:"intentNodeId"`
	UserContent  string                     `json:"userContent"`
	Context      *contextbuild.BuiltContext `json:"context"`
}

// activeTask 内存中的活跃任务项，超时检测只看这张表
type activeTask struct {
	sessionID string
	clientID  string
	startTime time.Time
}

// Orchestrator 消息编排器
// 每条入站消息走 分析 → 路由 → 构建上下文 → 流式执行 的管线，
// 意图分析完成后路由即返回，后续阶段异步推进
type Orchestrator struct {
	intentEngine *intent.Engine
	builder      *contextbuild.Builder
	llm          llm.Service
	notifier     Notifier

	messageLog conversation.MessageLog
	archive    conversation.IntentArchive
	intents    conversation.IntentRepository
	tasks      task.Repository
	sessions   session.Repository
	profiles   session.ProfileRepository
	memories   memory.Store

	mu          sync.Mutex
	activeTasks map[string]*activeTask

	cfg    config.PipelineConfig
	logger *slog.Logger

	stopMonitor chan struct{}
	monitorOnce sync.Once
}

// NewOrchestrator 创建编排器
func NewOrchestrator(
	intentEngine *intent.Engine,
	builder *contextbuild.Builder,
	llmService llm.Service,
	notifier Notifier,
	messageLog conversation.MessageLog,
	archive conversation.IntentArchive,
	intents conversation.IntentRepository,
	tasks task.Repository,
	sessions session.Repository,
	profiles session.ProfileRepository,
	memories memory.Store,
	cfg *config.Config,
) *Orchestrator {
	return &Orchestrator{
		intentEngine: intentEngine,
		builder:      builder,
		llm:          llmService,
		notifier:     notifier,
		messageLog:   messageLog,
		archive:      archive,
		intents:      intents,
		tasks:        tasks,
		sessions:     sessions,
		profiles:     profiles,
		memories:     memories,
		activeTasks:  make(map[string]*activeTask),
		cfg:          cfg.Pipeline,
		logger:       log.NewModuleLogger("orchestrator", "orchestrator"),
		stopMonitor:  make(chan struct{}),
	}
}

// StartTimeoutMonitor 启动超时巡检
// 周期扫描活跃任务表，超时任务标记为 timeout 并通知客户端
func (o *Orchestrator) StartTimeoutMonitor() {
	go func() {
		ticker := time.NewTicker(o.cfg.TimeoutSweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-o.stopMonitor:
				return
			case <-ticker.C:
				o.sweepTimeouts(time.Now())
			}
		}
	}()
}

// Stop 停止超时巡检
func (o *Orchestrator) Stop() {
	o.monitorOnce.Do(func() {
		close(o.stopMonitor)
	})
}

// sweepTimeouts 单轮超时扫描
func (o *Orchestrator) sweepTimeouts(now time.Time) {
	type expired struct {
		taskID   string
		clientID string
	}

	o.mu.Lock()
	var timedOut []expired
	for taskID, t := range o.activeTasks {
		if now.Sub(t.startTime) > o.cfg.TaskTimeout {
			timedOut = append(timedOut, expired{taskID: taskID, clientID: t.clientID})
			delete(o.activeTasks, taskID)
		}
	}
	o.mu.Unlock()

	for _, e := range timedOut {
		o.logger.Warn("task timed out, cleaning up", "task_id", e.taskID)

		if err := o.tasks.UpdateStatus(e.taskID, task.StatusTimeout, 0); err != nil {
			o.logger.Error("failed to update timeout task status", "task_id", e.taskID, "error", err)
		}
		o.sendError(e.clientID, e.taskID, fmt.Errorf("task timeout (%s)", o.cfg.TaskTimeout))
	}
}

// HandleUserInput 处理一条入站聊天消息
// 意图分析完成并推送 intent_analyzed 后返回，路由出的处理异步推进
func (o *Orchestrator) HandleUserInput(ctx context.Context, clientID string, req ChatRequest) error {
	if err := o.ensureSession(req.SessionID, req.UserID); err != nil {
		return err
	}

	messageID := req.MessageID
	if messageID == "" {
		messageID = uuid.New().String()
	}

	userMessage := &conversation.Message{
		ID:           messageID,
		Role:         conversation.RoleUser,
		Content:      req.Content,
		Timestamp:    time.Now().UnixMilli(),
		ParentNodeID: req.ParentNodeID,
	}
	if err := o.messageLog.SaveMessage(req.SessionID, userMessage); err != nil {
		return fmt.Errorf("failed to save user message: %w", err)
	}

	o.sendStatus(clientID, messageID, "analyzing", "Analyzing intent...")

	analyzed, err := o.intentEngine.Analyze(ctx, req.UserID, req.Content, intent.SessionContext{
		SessionID:    req.SessionID,
		ParentNodeID: req.ParentNodeID,
	})
	if err != nil {
		o.sendError(clientID, messageID, err)
		return err
	}

	o.persistIntent(analyzed, req.SessionID, messageID)

	// 语境快照：规格 → 完整上下文，均以意图 id 为键归档
	if spec := o.builder.BuildSpec(analyzed, req.SessionID); spec != nil {
		if err := o.archive.SaveContextSpec(analyzed.ID, spec); err != nil {
			o.logger.Warn("failed to archive context spec", "intent_id", analyzed.ID, "error", err)
		}
	}
	if built, err := o.builder.Build(ctx, analyzed, req.SessionID); err == nil {
		if err := o.archive.SaveIntentContext(analyzed.ID, built); err != nil {
			o.logger.Warn("failed to archive intent context", "intent_id", analyzed.ID, "error", err)
		}
	}

	o.notifier.SendToClient(clientID, "intent_analyzed", map[string]any{
		"messageId":        messageID,
		"intentId":         analyzed.ID,
		"intent":           analyzed.Type,
		"topic":            analyzed.Topic,
		"urgency":          analyzed.Urgency,
		"confidence":       analyzed.Confidence,
		"relatedTopics":    analyzed.RelatedTopics,
		"relatedMessageId": messageID,
		"parentNodeId":     messageID,
	})

	// 路由后立即返回，同一连接可以继续发消息
	o.route(clientID, analyzed, req.SessionID, messageID, nil)
	return nil
}

// route 按意图类型分派处理，fire-and-forget
// prebuilt 非空时跳过上下文构建（重执行路径）
func (o *Orchestrator) route(clientID string, analyzed *conversation.Intent, sessionID, userMessageID string, prebuilt *contextbuild.BuiltContext) {
	run := func(fn func(context.Context) error) {
		go func() {
			if err := fn(context.Background()); err != nil {
				o.sendError(clientID, userMessageID, err)
			}
		}()
	}

	switch {
	case analyzed.Type == conversation.IntentInterrupt:
		run(func(ctx context.Context) error {
			return o.handleInterrupt(ctx, clientID, analyzed, sessionID, userMessageID)
		})
	case analyzed.RequiresAction:
		run(func(ctx context.Context) error {
			return o.createAndExecuteTask(ctx, clientID, analyzed, sessionID, userMessageID, prebuilt)
		})
	default:
		run(func(ctx context.Context) error {
			return o.handleSimpleQuery(ctx, clientID, analyzed, sessionID, userMessageID, prebuilt)
		})
	}
}

// persistIntent 意图三联写：关系行 + 元信息快照
func (o *Orchestrator) persistIntent(analyzed *conversation.Intent, sessionID, userMessageID string) {
	if err := o.intents.Save(&conversation.IntentRow{
		ID:            analyzed.ID,
		SessionID:     sessionID,
		UserMessageID: userMessageID,
		IntentType:    analyzed.Type,
		Topic:         analyzed.Topic,
		Urgency:       analyzed.Urgency,
		RelatedTopics: analyzed.RelatedTopics,
		Confidence:    analyzed.Confidence,
		CreatedAt:     analyzed.Timestamp,
	}); err != nil {
		o.logger.Error("failed to save intent row", "intent_id", analyzed.ID, "error", err)
	}

	if err := o.archive.SaveIntentMeta(analyzed.ID, &conversation.IntentMeta{
		Struct:       analyzed.Struct,
		Confidence:   analyzed.Confidence,
		ContextHints: analyzed.ContextHints,
	}); err != nil {
		o.logger.Warn("failed to archive intent meta", "intent_id", analyzed.ID, "error", err)
	}
}

// handleInterrupt 打断处理：不入任务表，直接带运行中任务状态应答
func (o *Orchestrator) handleInterrupt(ctx context.Context, clientID string, analyzed *conversation.Intent, sessionID, userMessageID string) error {
	o.sendStatus(clientID, userMessageID, "context_building", "Building context...")

	running, err := o.tasks.FindBySessionAndStatus(sessionID, []task.Status{task.StatusRunning}, 0)
	if err != nil {
		o.logger.Warn("failed to load running tasks", "session_id", sessionID, "error", err)
	}

	built, err := o.builder.Build(ctx, analyzed, sessionID)
	if err != nil {
		return err
	}

	summaries := make([]map[string]any, 0, len(running))
	relatedTaskIDs := make([]string, 0, len(running))
	for _, t := range running {
		summaries = append(summaries, map[string]any{"type": t.Type, "progress": t.Progress})
		relatedTaskIDs = append(relatedTaskIDs, t.ID)
	}
	summaryJSON, _ := json.Marshal(summaries)

	built.Messages = append(built.Messages, conversation.ChatMessage{
		Role:    conversation.RoleSystem,
		Content: fmt.Sprintf("User asked a question during task execution. Currently running tasks: %s", summaryJSON),
	})

	o.sendStatus(clientID, userMessageID, "responding", "Answering your question...")

	return o.streamResponse(ctx, clientID, built, responseMeta{
		NodeType:         "interrupt_response",
		RelatedTaskIDs:   relatedTaskIDs,
		ParentNodeID:     analyzed.ID,
		RelatedMessageID: userMessageID,
	})
}

// createAndExecuteTask 任务路径：限额检查 → 建任务 → 构建上下文 → 流式执行 → 完结
func (o *Orchestrator) createAndExecuteTask(ctx context.Context, clientID string, analyzed *conversation.Intent, sessionID, userMessageID string, prebuilt *contextbuild.BuiltContext) error {
	if !o.tryReserveTaskSlot(clientID, sessionID, userMessageID) {
		return nil
	}

	taskID := uuid.New().String()
	now := time.Now().UnixMilli()
	if err := o.tasks.Create(&task.Task{
		ID:        taskID,
		SessionID: sessionID,
		Type:      analyzed.Type,
		Status:    task.StatusRunning,
		Input:     analyzed.UserInput,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	o.mu.Lock()
	o.activeTasks[taskID] = &activeTask{
		sessionID: sessionID,
		clientID:  clientID,
		startTime: time.Now(),
	}
	o.mu.Unlock()

	o.notifier.Broadcast("task_created", map[string]any{
		"taskId": taskID,
		"type":   analyzed.Type,
		"topic":  analyzed.Topic,
	})

	built := prebuilt
	if built == nil {
		o.sendStatus(clientID, userMessageID, "context_building", "Building context...")
		var err error
		built, err = o.builder.Build(ctx, analyzed, sessionID)
		if err != nil {
			o.releaseTask(taskID, task.StatusError)
			return err
		}

		o.notifier.Broadcast("context_built", map[string]any{
			"taskId":      taskID,
			"contextSize": built.Metadata.ContextSize,
			"memoryCount": len(built.Messages) - 2,
		})
	}

	o.sendStatus(clientID, userMessageID, "executing", "Executing task...")

	if err := o.streamResponse(ctx, clientID, built, responseMeta{
		NodeType:         "task_response",
		TaskID:           taskID,
		ParentNodeID:     analyzed.ID,
		RelatedMessageID: userMessageID,
	}); err != nil {
		o.releaseTask(taskID, task.StatusError)
		return err
	}

	o.releaseTask(taskID, task.StatusCompleted)
	o.notifier.Broadcast("task_completed", map[string]any{"taskId": taskID})
	return nil
}

// tryReserveTaskSlot 会话限额检查，达到上限时通知客户端并放弃
func (o *Orchestrator) tryReserveTaskSlot(clientID, sessionID, userMessageID string) bool {
	o.mu.Lock()
	count := 0
	for _, t := range o.activeTasks {
		if t.sessionID == sessionID {
			count++
		}
	}
	o.mu.Unlock()

	if count >= o.cfg.MaxTasksPerSession {
		o.notifier.SendToClient(clientID, "task_limit_reached", map[string]any{
			"messageId": userMessageID,
			"limit":     o.cfg.MaxTasksPerSession,
			"message":   fmt.Sprintf("Session task limit reached (%d), please wait for current tasks to complete", o.cfg.MaxTasksPerSession),
		})
		return false
	}
	return true
}

// releaseTask 将任务移出活跃表并更新终态
// 任务已被超时巡检移除时跳过状态写入，避免覆盖 timeout
func (o *Orchestrator) releaseTask(taskID string, status task.Status) {
	o.mu.Lock()
	_, stillActive := o.activeTasks[taskID]
	delete(o.activeTasks, taskID)
	o.mu.Unlock()

	if !stillActive {
		return
	}

	progress := 0
	if status == task.StatusCompleted {
		progress = 100
	}
	if err := o.tasks.UpdateStatus(taskID, status, progress); err != nil {
		o.logger.Error("failed to update task status", "task_id", taskID, "status", status, "error", err)
	}
}

// handleSimpleQuery 无需任务行的直接应答
func (o *Orchestrator) handleSimpleQuery(ctx context.Context, clientID string, analyzed *conversation.Intent, sessionID, userMessageID string, prebuilt *contextbuild.BuiltContext) error {
	built := prebuilt
	if built == nil {
		o.sendStatus(clientID, userMessageID, "building_context", "Preparing answer...")
		var err error
		built, err = o.builder.Build(ctx, analyzed, sessionID)
		if err != nil {
			return err
		}
	} else {
		o.sendStatus(clientID, userMessageID, "responding", "Answering...")
	}

	return o.streamResponse(ctx, clientID, built, responseMeta{
		NodeType:         "simple_response",
		ParentNodeID:     analyzed.ID,
		RelatedMessageID: userMessageID,
	})
}

// responseMeta 单次流式应答的节点元信息
type responseMeta struct {
	NodeType         string   `json:"nodeType"`
	TaskID           string   `json:"taskId,omitempty"`
	RelatedTaskIDs   []string `json:"relatedTaskIds,omitempty"`
	ParentNodeID     string   `json:"parentNodeId"`
	RelatedMessageID string   `json:"relatedMessageId"`
}

// streamResponse 流式生成并落盘应答
// 事件序：response_start → response_chunk* → response_end，chunk 携带增量与累计全文
func (o *Orchestrator) streamResponse(ctx context.Context, clientID string, built *contextbuild.BuiltContext, meta responseMeta) error {
	messageID := uuid.New().String()

	start := map[string]any{
		"messageId":        messageID,
		"relatedMessageId": meta.RelatedMessageID,
		"parentNodeId":     meta.ParentNodeID,
		"nodeType":         meta.NodeType,
	}
	if meta.TaskID != "" {
		start["taskId"] = meta.TaskID
	}
	if len(meta.RelatedTaskIDs) > 0 {
		start["relatedTaskIds"] = meta.RelatedTaskIDs
	}
	o.notifier.SendToClient(clientID, "response_start", start)

	fullContent, err := o.llm.StreamChat(ctx, built.Messages, func(chunk, accumulated string) {
		o.notifier.SendToClient(clientID, "response_chunk", map[string]any{
			"messageId":   messageID,
			"chunk":       chunk,
			"accumulated": accumulated,
		})
	})
	if err != nil {
		return fmt.Errorf("stream chat failed: %w", err)
	}

	if err := o.messageLog.SaveMessage(built.Metadata.SessionID, &conversation.Message{
		ID:           messageID,
		Role:         conversation.RoleAssistant,
		Content:      fullContent,
		Timestamp:    time.Now().UnixMilli(),
		ParentNodeID: meta.ParentNodeID,
		Metadata: map[string]any{
			"nodeType":         meta.NodeType,
			"taskId":           meta.TaskID,
			"relatedMessageId": meta.RelatedMessageID,
		},
	}); err != nil {
		o.logger.Error("failed to save assistant message", "message_id", messageID, "error", err)
	}

	o.extractAndSaveMemory(built.Metadata.UserID, fullContent, meta.NodeType)

	o.notifier.SendToClient(clientID, "response_end", map[string]any{
		"messageId":        messageID,
		"relatedMessageId": meta.RelatedMessageID,
		"totalLength":      len(fullContent),
	})
	return nil
}

// extractAndSaveMemory 应答足够长时提取为长期记忆
func (o *Orchestrator) extractAndSaveMemory(userID, content, nodeType string) {
	if len(content) <= 100 {
		return
	}

	memType := memory.TypeConversation
	if nodeType == "task_response" {
		memType = memory.TypeTask
	}

	if err := o.memories.SaveMemory(userID, &memory.Memory{
		Type:      memType,
		Content:   clipBytes(content, 500),
		Timestamp: time.Now().UnixMilli(),
	}); err != nil {
		o.logger.Warn("failed to save extracted memory", "user_id", userID, "error", err)
	}
}

// ensureSession 会话与用户画像的惰性建档
func (o *Orchestrator) ensureSession(sessionID, userID string) error {
	existing, err := o.sessions.FindByID(sessionID)
	if err != nil {
		return fmt.Errorf("failed to look up session: %w", err)
	}
	if existing == nil {
		now := time.Now().UnixMilli()
		if err := o.sessions.Create(&session.Session{
			ID:        sessionID,
			UserID:    userID,
			Title:     "New Session",
			Status:    "active",
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
	}

	profile, err := o.profiles.FindByID(userID)
	if err != nil {
		return fmt.Errorf("failed to look up user profile: %w", err)
	}
	if profile == nil {
		now := time.Now().UnixMilli()
		if err := o.profiles.Create(&session.UserProfile{
			ID:          userID,
			Name:        "User",
			Preferences: map[string]string{},
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			return fmt.Errorf("failed to create user profile: %w", err)
		}
	}
	return nil
}

// HandleReexecute 从已有意图节点重新执行，跳过分类与上下文构建
// 新的 AI 回复作为意图节点下的新分支
func (o *Orchestrator) HandleReexecute(ctx context.Context, clientID string, req ReexecuteRequest) error {
	if err := o.ensureSession(req.SessionID, req.UserID); err != nil {
		return err
	}

	row, err := o.intents.FindByID(req.IntentNodeID)
	if err != nil {
		return fmt.Errorf("failed to load intent: %w", err)
	}
	if row == nil {
		o.logger.Error("intent node not found", "intent_node_id", req.IntentNodeID)
		err := errors.New("intent information not found")
		o.sendError(clientID, req.IntentNodeID, err)
		return err
	}

	analyzed := &conversation.Intent{
		ID:             row.ID,
		Type:           row.IntentType,
		Topic:          row.Topic,
		Urgency:        row.Urgency,
		RelatedTopics:  row.RelatedTopics,
		RequiresAction: row.IntentType != conversation.IntentQuestion,
		UserInput:      req.UserContent,
		ContextHints: conversation.ContextHints{
			IncludeUserProfile:     true,
			IncludeRecentHistory:   row.IntentType != conversation.IntentInterrupt,
			IncludeRelatedMemories: true,
			MemoryTypes:            []string{memory.TypeConversation},
		},
	}

	o.route(clientID, analyzed, req.SessionID, req.IntentNodeID, req.Context)
	return nil
}

// ActiveTaskCount 活跃任务数（监控用）
func (o *Orchestrator) ActiveTaskCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.activeTasks)
}

func (o *Orchestrator) sendStatus(clientID, messageID, stage, message string) {
	o.notifier.SendToClient(clientID, "message_status", map[string]any{
		"messageId": messageID,
		"stage":     stage,
		"message":   message,
		"timestamp": time.Now().UnixMilli(),
	})
}

func (o *Orchestrator) sendError(clientID, messageID string, err error) {
	o.notifier.SendToClient(clientID, "error", map[string]any{
		"messageId": messageID,
		"error":     err.Error(),
		"timestamp": time.Now().UnixMilli(),
	})
}

// clipBytes 按字节截断，落在 UTF-8 序列中间时回退到符文边界
func clipBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
