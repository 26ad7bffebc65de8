package command

import "sync"

// MemoryStore 提供基于内存的会话设置存储（非聊天历史）；进程重启即丢失。
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]ContextValues
}

var _ ConversationStore = (*MemoryStore)(nil)

// NewMemoryStore 创建内存存储实例。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]ContextValues)}
}

// Load 返回指定 key 的设置副本，不存在时返回 nil。
func (s *MemoryStore) Load(key string) (ContextValues, error) {
	if s == nil || key == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if val, ok := s.data[key]; ok {
		return cloneValues(val), nil
	}
	return nil, nil
}

// Get 返回单个设置项。
func (s *MemoryStore) Get(key, name string) (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key][name]
	return v, ok
}

// Save 合并并存储设置增量，同名键按最新值覆盖。
func (s *MemoryStore) Save(key string, values ContextValues) error {
	if s == nil || key == "" || len(values) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := cloneValues(s.data[key])
	if merged == nil {
		merged = ContextValues{}
	}
	for k, v := range values {
		merged[k] = v
	}
	s.data[key] = merged
	return nil
}

// cloneValues 复制设置字典，避免共享引用。
func cloneValues(src ContextValues) ContextValues {
	if len(src) == 0 {
		return nil
	}
	dst := make(ContextValues, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
