package logging

import (
	"fmt"
	"sync"

	"searchbot/internal/config"
	"searchbot/internal/logging/adapters"
)

// Manager owns the root logger and its adapters.
type Manager struct {
	logger *MultiLogger
}

// NewManager creates a new logging manager
func NewManager() *Manager {
	return &Manager{logger: NewMultiLogger()}
}

// Initialize wires adapters from the logging section of the configuration:
// always stdout, plus a file adapter when a file path is set.
func (m *Manager) Initialize(cfg config.LoggingConfig) error {
	m.logger.SetLevel(ParseLogLevel(cfg.Level))

	stdout := adapters.NewStdoutAdapter("stdout", adapters.StdoutConfig{
		Format:    cfg.Format,
		Colorized: cfg.Colorized,
	})
	if err := m.logger.AddAdapter(stdout); err != nil {
		return fmt.Errorf("failed to add stdout adapter: %w", err)
	}

	if cfg.File != "" {
		file, err := adapters.NewFileAdapter("file", adapters.FileConfig{
			FilePath:   cfg.File,
			Format:     "json",
			CreateDirs: true,
		})
		if err != nil {
			return fmt.Errorf("failed to create file adapter: %w", err)
		}
		if err := m.logger.AddAdapter(file); err != nil {
			return fmt.Errorf("failed to add file adapter: %w", err)
		}
	}

	return nil
}

// GetLogger returns the root logger
func (m *Manager) GetLogger() Logger {
	return m.logger
}

// Close closes the logging system
func (m *Manager) Close() error {
	return m.logger.Close()
}

var (
	globalMu      sync.Mutex
	globalManager *Manager
)

// InitializeLogging initializes the global logging system
func InitializeLogging(cfg config.LoggingConfig) error {
	m := NewManager()
	if err := m.Initialize(cfg); err != nil {
		return err
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	globalManager = m
	return nil
}

// GetGlobalLogger returns the global logger, falling back to a text stdout
// logger when InitializeLogging was never called.
func GetGlobalLogger() Logger {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager == nil {
		manager := NewManager()
		_ = manager.logger.AddAdapter(adapters.NewStdoutAdapter("fallback_stdout", adapters.StdoutConfig{Format: "text"}))
		globalManager = manager
	}
	return globalManager.GetLogger()
}

// CloseLogging closes the global logging system
func CloseLogging() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager != nil {
		return globalManager.Close()
	}
	return nil
}
