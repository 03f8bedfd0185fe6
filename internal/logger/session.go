package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// SessionLog is a dedicated log file for one agent session. It is opened
// during session initialization and closed as part of session cleanup, so
// Close must tolerate being called after the process has started draining.
type SessionLog struct {
	logger zerolog.Logger
	file   *os.File
	path   string
}

// NewSessionLog opens a per-session log file under dir/sessions.
func NewSessionLog(dir, logID string, level zerolog.Level) (*SessionLog, error) {
	if logID == "" {
		return nil, fmt.Errorf("session log id cannot be empty")
	}

	sessionsDir := filepath.Join(dir, "sessions")
	if err := os.MkdirAll(sessionsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session log directory: %w", err)
	}

	path := filepath.Join(sessionsDir, logID+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open session log file: %w", err)
	}

	// Prompts and tool arguments land in this file; always scrub them.
	l := zerolog.New(NewScrubber().Writer(file)).
		Level(level).
		With().
		Timestamp().
		Str("session_log", logID).
		Logger()

	return &SessionLog{
		logger: l,
		file:   file,
		path:   path,
	}, nil
}

// Logger returns the session-scoped zerolog.Logger.
func (s *SessionLog) Logger() zerolog.Logger {
	return s.logger
}

// Path returns the log file path.
func (s *SessionLog) Path() string {
	return s.path
}

// Close flushes and closes the underlying file. Safe to call once.
func (s *SessionLog) Close() error {
	if s.file == nil {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		s.file.Close()
		s.file = nil
		return fmt.Errorf("failed to sync session log: %w", err)
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}
