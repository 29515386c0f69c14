package task

// Repository 任务仓储接口
type Repository interface {
	// Create 新建任务行
	Create(t *Task) error

	// UpdateStatus 更新状态与进度
	UpdateStatus(id string, status Status, progress int) error

	// FindByID 不存在返回 (nil, nil)
	FindByID(id string) (*Task, error)

	// FindBySessionAndStatus 按会话与状态过滤，时间倒序
	FindBySessionAndStatus(sessionID string, statuses []Status, limit int) ([]*Task, error)

	// FindRecentByUser 查询用户最近任务（跨会话）
	FindRecentByUser(userID string, limit int) ([]*Task, error)
}
