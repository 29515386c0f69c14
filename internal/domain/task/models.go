package task

// Status 任务状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusTimeout   Status = "timeout"
	StatusError     Status = "error"
)

// Task 任务实体
// 一个任务对应一条持久化行和一个内存活跃项，内存项是超时检测的唯一依据
type Task struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Type      string `json:"type"`
	Status    Status `json:"status"`
	Priority  int    `json:"priority"`
	Input     string `json:"input"`
	Output    string `json:"output,omitempty"`
	Progress  int    `json:"progress"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}
