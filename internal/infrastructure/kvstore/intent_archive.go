package kvstore

import (
	"time"

	"github.com/icsys/backend/internal/domain/conversation"
)

// SaveIntentMeta 保存意图元信息
func (s *Store) SaveIntentMeta(intentID string, meta *conversation.IntentMeta) error {
	meta.SavedAt = time.Now().UnixMilli()
	return s.putJSON("intentmeta:"+intentID, meta)
}

// GetIntentMeta 读取意图元信息，不存在返回 (nil, nil)
func (s *Store) GetIntentMeta(intentID string) (*conversation.IntentMeta, error) {
	var meta conversation.IntentMeta
	ok, err := s.getJSON("intentmeta:"+intentID, &meta)
	if err != nil || !ok {
		return nil, err
	}
	return &meta, nil
}

// SaveContextSpec 保存上下文需求规格
func (s *Store) SaveContextSpec(intentID string, spec *conversation.ContextSpec) error {
	spec.SavedAt = time.Now().UnixMilli()
	return s.putJSON("ctxspec:"+intentID, spec)
}

// GetContextSpec 读取上下文需求规格，不存在返回 (nil, nil)
func (s *Store) GetContextSpec(intentID string) (*conversation.ContextSpec, error) {
	var spec conversation.ContextSpec
	ok, err := s.getJSON("ctxspec:"+intentID, &spec)
	if err != nil || !ok {
		return nil, err
	}
	return &spec, nil
}

// SaveIntentContext 保存构建完成的上下文载荷快照
func (s *Store) SaveIntentContext(intentID string, context any) error {
	return s.putJSON("intent:"+intentID, context)
}

// GetIntentContext 读取上下文快照，不存在返回 (false, nil)
func (s *Store) GetIntentContext(intentID string, out any) (bool, error) {
	return s.getJSON("intent:"+intentID, out)
}
