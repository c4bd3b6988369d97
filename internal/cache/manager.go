package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Manager layers the memory cache over the disk cache. Disk hits are
// promoted to memory; writes go to both tiers.
type Manager struct {
	memory *MemoryCache
	disk   *DiskCache // nil when no disk path is configured
	cfg    Config
	logger *log.Logger

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewManager builds both tiers from cfg and starts the background cleanup
// loop when cfg.CleanupInterval is positive. An empty DiskPath keeps the
// cache in memory only.
func NewManager(cfg Config, logger *log.Logger) (*Manager, error) {
	if logger == nil {
		logger = log.Default()
	}

	m := &Manager{
		memory: NewMemoryCache(cfg.MemoryCapacity),
		cfg:    cfg,
		logger: logger.WithPrefix("cache"),
		stop:   make(chan struct{}),
	}

	if cfg.DiskPath != "" {
		disk, err := NewDiskCache(cfg.DiskPath, cfg.DiskCapacity, cfg.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to create disk cache: %w", err)
		}
		m.disk = disk
	}

	if cfg.CleanupInterval > 0 {
		m.wg.Add(1)
		go m.cleanupLoop()
	}

	return m, nil
}

// Get looks in memory first, then on disk.
func (m *Manager) Get(key string) ([]byte, bool) {
	if audio, ok := m.memory.Get(key); ok {
		return audio, true
	}
	if m.disk == nil {
		return nil, false
	}
	audio, ok := m.disk.Get(key)
	if !ok {
		return nil, false
	}
	if err := m.memory.Put(key, audio); err != nil {
		m.logger.Debug("clip not promoted", "key", key, "err", err)
	}
	return audio, true
}

// Put stores audio in both tiers. A clip too large for one tier is still
// stored in the other.
func (m *Manager) Put(key string, audio []byte) error {
	var errs []error
	if err := m.memory.Put(key, audio); err != nil && !errors.Is(err, ErrItemTooLarge) {
		errs = append(errs, fmt.Errorf("memory: %w", err))
	}
	if m.disk != nil {
		if err := m.disk.Put(key, audio); err != nil && !errors.Is(err, ErrItemTooLarge) {
			errs = append(errs, fmt.Errorf("disk: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Delete removes key from both tiers.
func (m *Manager) Delete(key string) {
	m.memory.Delete(key)
	if m.disk != nil {
		m.disk.Delete(key)
	}
}

// Clear empties both tiers.
func (m *Manager) Clear() error {
	m.memory.Clear()
	if m.disk != nil {
		return m.disk.Clear()
	}
	return nil
}

// Cleanup expires clips older than the configured TTL and returns how many
// were removed across both tiers.
func (m *Manager) Cleanup() int {
	if m.cfg.TTL <= 0 {
		return 0
	}
	removed := m.memory.Prune(m.cfg.TTL)
	if m.disk != nil {
		removed += m.disk.RemoveOlderThan(time.Now().Add(-m.cfg.TTL))
	}
	return removed
}

// Stats returns one entry per configured tier, memory first.
func (m *Manager) Stats() []Stats {
	stats := []Stats{m.memory.Stats()}
	if m.disk != nil {
		stats = append(stats, m.disk.Stats())
	}
	return stats
}

// Close stops the cleanup loop and persists the disk index.
func (m *Manager) Close() error {
	var err error
	m.once.Do(func() {
		close(m.stop)
		m.wg.Wait()
		if m.disk != nil {
			err = m.disk.Close()
		}
	})
	return err
}

func (m *Manager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.Cleanup(); n > 0 {
				m.logger.Debug("expired clips", "count", n)
			}
		case <-m.stop:
			return
		}
	}
}
