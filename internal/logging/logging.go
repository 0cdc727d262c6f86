package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SessionLogPath is <logsDir>/<app>.<YYYYMMDD_HHMMSS>.log for the session start.
func SessionLogPath(logsDir, appName string, sessionStart time.Time) string {
	return filepath.Join(logsDir, fmt.Sprintf("%s.%s.log", appName, sessionStart.Format("20060102_150405")))
}

// OpenSessionLog creates logsDir if needed and opens the session log for
// appending. A file already at the path is moved aside to <path>.old.
func OpenSessionLog(logsDir, appName string, sessionStart time.Time) (*os.File, error) {
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs dir: %w", err)
	}
	path := SessionLogPath(logsDir, appName, sessionStart)
	if _, err := os.Stat(path); err == nil {
		_ = os.Rename(path, path+".old")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, nil
}
