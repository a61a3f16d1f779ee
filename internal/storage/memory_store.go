// internal/storage/memory_store.go
package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore 带空闲过期与容量上限的内存存储
type MemoryStore[T any] struct {
	entries map[string]*storeEntry[T]
	mutex   sync.RWMutex
	maxSize int           // 最大条目数
	ttl     time.Duration // 空闲过期时间
	now     func() time.Time
	onEvict func(id string, value T)
}

type storeEntry[T any] struct {
	value     T
	createdAt time.Time
	lastRead  time.Time
}

// StoreOption 存储选项
type StoreOption[T any] func(*MemoryStore[T])

// WithClock 替换时间源，用于测试
func WithClock[T any](now func() time.Time) StoreOption[T] {
	return func(s *MemoryStore[T]) { s.now = now }
}

// WithEvictHook 条目被过期或淘汰时回调（在锁外调用）
func WithEvictHook[T any](fn func(id string, value T)) StoreOption[T] {
	return func(s *MemoryStore[T]) { s.onEvict = fn }
}

// NewMemoryStore 创建内存存储
func NewMemoryStore[T any](maxSize int, ttl time.Duration, opts ...StoreOption[T]) *MemoryStore[T] {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}

	s := &MemoryStore[T]{
		entries: make(map[string]*storeEntry[T]),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put 保存或覆盖指定ID的值
func (s *MemoryStore[T]) Put(id string, value T) {
	now := s.now()

	s.mutex.Lock()
	s.entries[id] = &storeEntry[T]{value: value, createdAt: now, lastRead: now}

	var evicted map[string]T
	if len(s.entries) > s.maxSize {
		// 清理20%，至少1个
		evicted = s.cleanupLRU(max(1, s.maxSize/5), id)
	}
	s.mutex.Unlock()

	s.notify(evicted)
}

// Get 读取并刷新最后访问时间；已过期的条目视为不存在
func (s *MemoryStore[T]) Get(id string) (T, bool) {
	now := s.now()

	s.mutex.Lock()
	entry, ok := s.entries[id]
	if !ok || now.Sub(entry.lastRead) > s.ttl {
		s.mutex.Unlock()
		var zero T
		return zero, false
	}
	entry.lastRead = now
	value := entry.value
	s.mutex.Unlock()

	return value, true
}

// Delete 删除条目，返回是否存在
func (s *MemoryStore[T]) Delete(id string) (T, bool) {
	s.mutex.Lock()
	entry, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mutex.Unlock()

	if !ok {
		var zero T
		return zero, false
	}
	return entry.value, true
}

// Len 当前条目数
func (s *MemoryStore[T]) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.entries)
}

// Sweep 删除所有空闲超时的条目，返回删除数量
func (s *MemoryStore[T]) Sweep() int {
	now := s.now()

	s.mutex.Lock()
	expired := make(map[string]T)
	for id, entry := range s.entries {
		if now.Sub(entry.lastRead) > s.ttl {
			expired[id] = entry.value
			delete(s.entries, id)
		}
	}
	s.mutex.Unlock()

	s.notify(expired)
	return len(expired)
}

// Run 周期性清理，直到 ctx 结束
func (s *MemoryStore[T]) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Clear 清空存储，被清除的条目同样触发回调
func (s *MemoryStore[T]) Clear() {
	s.mutex.Lock()
	all := make(map[string]T, len(s.entries))
	for id, entry := range s.entries {
		all[id] = entry.value
	}
	s.entries = make(map[string]*storeEntry[T])
	s.mutex.Unlock()

	s.notify(all)
}

// 清理最少使用的条目，keep 不参与淘汰；调用方持有锁
func (s *MemoryStore[T]) cleanupLRU(count int, keep string) map[string]T {
	type keyAge struct {
		key  string
		time time.Time
	}

	entries := make([]keyAge, 0, len(s.entries))
	for k, v := range s.entries {
		if k == keep {
			continue
		}
		entries = append(entries, keyAge{k, v.lastRead})
	}

	// 按最后读取时间排序
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].time.Before(entries[j].time)
	})

	removed := make(map[string]T)
	for i := 0; i < min(count, len(entries)); i++ {
		removed[entries[i].key] = s.entries[entries[i].key].value
		delete(s.entries, entries[i].key)
	}
	return removed
}

func (s *MemoryStore[T]) notify(removed map[string]T) {
	if s.onEvict == nil {
		return
	}
	for id, value := range removed {
		s.onEvict(id, value)
	}
}
