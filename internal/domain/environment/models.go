package environment

// Event 环境事件（传感器产出）
type Event struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Type      string `json:"type"`
	Data      string `json:"data"` // JSON 序列化后的载荷
	Processed bool   `json:"processed"`
	CreatedAt int64  `json:"createdAt"`
}

// Subscription 环境订阅配置
type Subscription struct {
	ID        string `json:"id"`
	Type      string `json:"type"` // rss / webpage / api
	Config    string `json:"config"`
	LastCheck int64  `json:"lastCheck"`
	Status    string `json:"status"` // active / inactive
	CreatedAt int64  `json:"createdAt"`
}

// EventRepository 环境事件仓储
type EventRepository interface {
	Save(e *Event) error

	// FindUnprocessed 未处理事件，时间倒序
	FindUnprocessed(limit int) ([]*Event, error)
}

// SubscriptionRepository 订阅仓储
type SubscriptionRepository interface {
	Save(s *Subscription) error

	UpdateStatus(id, status string) error

	// TouchLastCheck 更新最近检查时间
	TouchLastCheck(id string) error

	// FindActive subType 为空表示全部类型
	FindActive(subType string) ([]*Subscription, error)
}
