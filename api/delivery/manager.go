// Package delivery serves produced files once and removes them afterwards.
package delivery

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"mediaFetcher/api/models"
	"mediaFetcher/api/validation"
)

var ErrFileNotFound = errors.New("file not found")

// Delivery is an open file ready to stream. The caller closes File.
type Delivery struct {
	File        *os.File
	Name        string
	Size        int64
	ContentType string
}

// Manager hands out each stored file once and schedules its removal a grace
// period later.
type Manager struct {
	dir    string
	grace  time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
}

func NewManager(dir string, grace time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		dir:     dir,
		grace:   grace,
		logger:  logger,
		pending: make(map[string]*time.Timer),
	}
}

// Open claims name and opens it for streaming. Unknown, malformed and
// already claimed names all return ErrFileNotFound.
func (m *Manager) Open(name string) (*Delivery, error) {
	if err := validation.ValidateFileName(name); err != nil {
		return nil, ErrFileNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrFileNotFound
	}
	if _, claimed := m.pending[name]; claimed {
		return nil, ErrFileNotFound
	}

	path := filepath.Join(m.dir, name)
	file, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Error("Failed to open file for delivery", zap.String("file_name", name), zap.Error(err))
		}
		return nil, ErrFileNotFound
	}

	info, err := file.Stat()
	if err != nil || !info.Mode().IsRegular() {
		file.Close()
		return nil, ErrFileNotFound
	}

	m.pending[name] = time.AfterFunc(m.grace, func() { m.expire(name) })

	m.logger.Info("File claimed for delivery",
		zap.String("file_name", name),
		zap.Int64("size", info.Size()),
		zap.Duration("grace_period", m.grace),
	)

	return &Delivery{
		File:        file,
		Name:        name,
		Size:        info.Size(),
		ContentType: contentType(name),
	}, nil
}

// Stat describes name without claiming it. The returned Delivery has no File.
func (m *Manager) Stat(name string) (*Delivery, error) {
	if err := validation.ValidateFileName(name); err != nil {
		return nil, ErrFileNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrFileNotFound
	}
	if _, claimed := m.pending[name]; claimed {
		return nil, ErrFileNotFound
	}

	info, err := os.Stat(filepath.Join(m.dir, name))
	if err != nil || !info.Mode().IsRegular() {
		return nil, ErrFileNotFound
	}

	return &Delivery{
		Name:        name,
		Size:        info.Size(),
		ContentType: contentType(name),
	}, nil
}

func (m *Manager) expire(name string) {
	m.mu.Lock()
	_, ok := m.pending[name]
	delete(m.pending, name)
	m.mu.Unlock()

	if ok {
		m.remove(name)
	}
}

func (m *Manager) remove(name string) {
	err := os.Remove(filepath.Join(m.dir, name))
	switch {
	case err == nil:
		m.logger.Info("Delivered file removed", zap.String("file_name", name))
	case os.IsNotExist(err):
		m.logger.Debug("Delivered file already gone", zap.String("file_name", name))
	default:
		m.logger.Warn("Failed to remove delivered file", zap.String("file_name", name), zap.Error(err))
	}
}

// Pending reports whether name has been claimed and awaits removal.
func (m *Manager) Pending(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[name]
	return ok
}

// Close cancels scheduled removals and removes those files immediately.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	names := make([]string, 0, len(m.pending))
	for name, timer := range m.pending {
		if timer.Stop() {
			names = append(names, name)
		}
		delete(m.pending, name)
	}
	m.mu.Unlock()

	for _, name := range names {
		m.remove(name)
	}
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case models.OutputAudio.Extension():
		return models.OutputAudio.ContentType()
	case models.OutputVideo.Extension():
		return models.OutputVideo.ContentType()
	default:
		return "application/octet-stream"
	}
}
