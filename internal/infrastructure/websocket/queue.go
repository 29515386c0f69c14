package websocket

import (
	"log/slog"
	"sync"

	"github.com/icsys/backend/internal/infrastructure/log"
)

// Job 队列中的一个待执行任务
type Job func()

// MessageQueue 每个连接一个的有界并发队列
// 提交顺序即出队顺序，同时运行的任务数不超过 maxConcurrent
type MessageQueue struct {
	mu            sync.Mutex
	pending       []Job
	running       int
	maxConcurrent int
	closed        bool
	logger        *slog.Logger
}

// QueueStats 队列即时状态
type QueueStats struct {
	Pending       int  `json:"pending"`
	Running       int  `json:"running"`
	MaxConcurrent int  `json:"maxConcurrent"`
	Closed        bool `json:"closed"`
}

// NewMessageQueue 创建队列，maxConcurrent 小于 1 时按 1 处理
func NewMessageQueue(maxConcurrent int) *MessageQueue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &MessageQueue{
		maxConcurrent: maxConcurrent,
		logger:        log.NewModuleLogger("websocket", "message_queue"),
	}
}

// Submit 入队一个任务，队列已关闭时返回 false
func (q *MessageQueue) Submit(job Job) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, job)
	q.mu.Unlock()

	q.dispatch()
	return true
}

// dispatch 在容量允许时按 FIFO 顺序启动等待中的任务
func (q *MessageQueue) dispatch() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.closed && q.running < q.maxConcurrent && len(q.pending) > 0 {
		job := q.pending[0]
		q.pending = q.pending[1:]
		q.running++

		go q.run(job)
	}
}

// run 执行单个任务，panic 不影响其他任务
func (q *MessageQueue) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queued job panicked", "panic", r)
		}

		q.mu.Lock()
		q.running--
		q.mu.Unlock()

		q.dispatch()
	}()

	job()
}

// Stats 返回队列即时状态
func (q *MessageQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Pending:       len(q.pending),
		Running:       q.running,
		MaxConcurrent: q.maxConcurrent,
		Closed:        q.closed,
	}
}

// Close 关闭队列并丢弃未启动的任务，已在运行的任务继续执行
func (q *MessageQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.pending = nil
}
