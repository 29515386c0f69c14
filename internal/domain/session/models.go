package session

// Session 会话实体
type Session struct {
	ID             string `json:"id"`
	UserID         string `json:"userId"`
	Title          string `json:"title"`
	Status         string `json:"status"`
	ContextSummary string `json:"contextSummary,omitempty"`
	CreatedAt      int64  `json:"createdAt"`
	UpdatedAt      int64  `json:"updatedAt"`
}

// UserProfile 用户画像
type UserProfile struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Preferences map[string]string `json:"preferences"`
	CreatedAt   int64             `json:"createdAt"`
	UpdatedAt   int64             `json:"updatedAt"`
}

// Repository 会话仓储接口
type Repository interface {
	// FindByID 不存在返回 (nil, nil)
	FindByID(id string) (*Session, error)

	Create(s *Session) error

	FindByUser(userID string, limit int) ([]*Session, error)
}

// ProfileRepository 用户画像仓储接口
type ProfileRepository interface {
	// FindByID 不存在返回 (nil, nil)
	FindByID(id string) (*UserProfile, error)

	Create(p *UserProfile) error
}
