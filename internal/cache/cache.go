package cache

import (
	"container/list"
	"sync"
	"time"
)

// Clock 注入式时钟（单测用假时钟控制TTL流逝）
type Clock func() time.Time

// Entry 单条缓存。过期后不删除，只标记为stale，供降级场景继续读取
type Entry struct {
	Key         string
	Payload     []byte
	StoredAt    time.Time
	TTL         time.Duration
	EndpointTag string
}

// Store 进程内 key/value 缓存，带逐条TTL与新鲜度元数据。
// Get 不做任何网络IO；容量上限用LRU淘汰兜住内存
type Store struct {
	mu       sync.Mutex
	capacity int
	now      Clock
	entries  map[string]*list.Element
	order    *list.List // 队首最旧，队尾最新
}

// NewStore 创建缓存，capacity<=0 时使用默认容量
func NewStore(capacity int, clock Clock) *Store {
	if capacity <= 0 {
		capacity = 2048
	}
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		capacity: capacity,
		now:      clock,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Put 写入/覆盖缓存，last-writer-wins
func (s *Store) Put(key string, payload []byte, ttl time.Duration, endpointTag string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &Entry{
		Key:         key,
		Payload:     payload,
		StoredAt:    s.now(),
		TTL:         ttl,
		EndpointTag: endpointTag,
	}

	if elem, ok := s.entries[key]; ok {
		elem.Value = entry
		s.order.MoveToBack(elem)
		return
	}

	s.entries[key] = s.order.PushBack(entry)

	// 超容量时淘汰最久未访问的一条
	for len(s.entries) > s.capacity {
		oldest := s.order.Front()
		if oldest == nil {
			break
		}
		s.order.Remove(oldest)
		delete(s.entries, oldest.Value.(*Entry).Key)
	}
}

// Get 读取缓存。返回 (payload, fresh, ok)：
// ok=false 表示未命中；fresh=false 表示已过TTL但数据仍可用（调用方自行决定是否降级使用）
func (s *Store) Get(key string) ([]byte, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[key]
	if !ok {
		return nil, false, false
	}
	s.order.MoveToBack(elem)

	entry := elem.Value.(*Entry)
	fresh := s.now().Sub(entry.StoredAt) <= entry.TTL
	return entry.Payload, fresh, true
}

// Len 当前条目数（健康检查用）
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
