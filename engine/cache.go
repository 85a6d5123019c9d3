package engine

import (
	"fmt"
	"sort"
	"sync"
	"text/template"
	"time"
)

// compiledUnit is a parsed artifact together with the source it came from.
type compiledUnit struct {
	SourceHash string
	Artifact   string
	Template   *template.Template
}

// CacheItem is one entry of the in-memory compile cache.
type CacheItem struct {
	Unit       *compiledUnit
	CreatedAt  time.Time
	LastUsedAt time.Time
	Size       int
}

// CacheManager keeps parsed artifacts in memory between renders. It is only
// used in the "source" cache mode.
type CacheManager struct {
	items           map[string]*CacheItem
	mutex           sync.Mutex
	maxSize         int
	currentSize     int
	ttl             time.Duration
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewCacheManager creates a cache and starts its cleanup goroutine. Call
// Stop to release it.
func NewCacheManager(maxSizeMB int, ttlMinutes, cleanupMinutes int) *CacheManager {
	if cleanupMinutes <= 0 {
		cleanupMinutes = 1
	}
	cm := &CacheManager{
		items:           make(map[string]*CacheItem),
		maxSize:         maxSizeMB * 1024 * 1024,
		ttl:             time.Duration(ttlMinutes) * time.Minute,
		cleanupInterval: time.Duration(cleanupMinutes) * time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	go cm.startCleanupRoutine()

	return cm
}

// Get returns the unit cached for a view.
func (cm *CacheManager) Get(key string) (*compiledUnit, bool) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if item, exists := cm.items[key]; exists {
		item.LastUsedAt = time.Now()
		return item.Unit, true
	}

	return nil, false
}

// Set stores a unit, evicting stale entries when the cache is full.
func (cm *CacheManager) Set(key string, unit *compiledUnit) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	size := len(unit.Artifact)
	if old, exists := cm.items[key]; exists {
		cm.currentSize -= old.Size
		delete(cm.items, key)
	}

	if cm.currentSize+size > cm.maxSize {
		cm.evictOldItems()
	}

	if cm.currentSize+size > cm.maxSize {
		return fmt.Errorf("cache is full, cannot add %s", key)
	}

	now := time.Now()
	cm.items[key] = &CacheItem{
		Unit:       unit,
		CreatedAt:  now,
		LastUsedAt: now,
		Size:       size,
	}
	cm.currentSize += size
	return nil
}

// Remove drops a view from the cache.
func (cm *CacheManager) Remove(key string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if item, exists := cm.items[key]; exists {
		cm.currentSize -= item.Size
		delete(cm.items, key)
	}
}

// Clear empties the cache.
func (cm *CacheManager) Clear() {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	cm.items = make(map[string]*CacheItem)
	cm.currentSize = 0
}

// evictOldItems drops expired entries and entries unused for two TTLs; if
// that frees nothing, the least recently used entry goes.
func (cm *CacheManager) evictOldItems() {
	var keysToRemove []string
	var lru string
	var lruAt time.Time

	for key, item := range cm.items {
		if time.Since(item.CreatedAt) > cm.ttl || time.Since(item.LastUsedAt) > cm.ttl*2 {
			keysToRemove = append(keysToRemove, key)
			continue
		}
		if lru == "" || item.LastUsedAt.Before(lruAt) {
			lru, lruAt = key, item.LastUsedAt
		}
	}
	if len(keysToRemove) == 0 && lru != "" {
		keysToRemove = append(keysToRemove, lru)
	}

	for _, key := range keysToRemove {
		cm.currentSize -= cm.items[key].Size
		delete(cm.items, key)
	}
}

func (cm *CacheManager) startCleanupRoutine() {
	ticker := time.NewTicker(cm.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cm.cleanupExpiredItems()
		case <-cm.stopCleanup:
			return
		}
	}
}

func (cm *CacheManager) cleanupExpiredItems() {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	now := time.Now()
	for key, item := range cm.items {
		if now.Sub(item.CreatedAt) > cm.ttl {
			cm.currentSize -= item.Size
			delete(cm.items, key)
		}
	}
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (cm *CacheManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCleanup) })
}

// Stats reports the cache occupancy.
func (cm *CacheManager) Stats() map[string]any {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	usage := 0.0
	if cm.maxSize > 0 {
		usage = float64(cm.currentSize) / float64(cm.maxSize) * 100
	}
	return map[string]any{
		"total_items":     len(cm.items),
		"current_size_kb": cm.currentSize / 1024,
		"max_size_mb":     cm.maxSize / (1024 * 1024),
		"memory_usage":    fmt.Sprintf("%.1f%%", usage),
	}
}

// GetKeys returns the cached view names in sorted order.
func (cm *CacheManager) GetKeys() []string {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	keys := make([]string, 0, len(cm.items))
	for key := range cm.items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
