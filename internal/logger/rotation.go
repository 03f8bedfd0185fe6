package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const megabyte = 1024 * 1024

// RollPolicy bounds a log file on disk.
type RollPolicy struct {
	MaxSizeMB  int  // roll over past this size
	MaxAgeDays int  // expire archives older than this; 0 keeps them forever
	Compress   bool // gzip archives at rollover
}

// RollingFile is an append-only log file that rolls over when a write would
// cross the size bound. The live file keeps its name; archives get a
// timestamp inserted before the extension (warden-20260830-120000.log) and
// are expired by age on each rollover.
type RollingFile struct {
	mu     sync.Mutex
	path   string
	policy RollPolicy
	file   *os.File
	size   int64
}

// OpenRollingFile opens or creates the log file at path.
func OpenRollingFile(path string, policy RollPolicy) (*RollingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	return &RollingFile{
		path:   path,
		policy: policy,
		file:   file,
		size:   info.Size(),
	}, nil
}

func (f *RollingFile) Write(p []byte) (n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.size > 0 && f.size+int64(len(p)) > int64(f.policy.MaxSizeMB)*megabyte {
		if err := f.roll(); err != nil {
			return 0, err
		}
	}

	n, err = f.file.Write(p)
	f.size += int64(n)
	return n, err
}

func (f *RollingFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

// roll archives the live file and starts a fresh one. Caller holds the lock.
func (f *RollingFile) roll() error {
	if err := f.file.Close(); err != nil {
		return err
	}

	now := time.Now()
	archive := f.archiveName(now)
	if err := os.Rename(f.path, archive); err != nil {
		return err
	}

	if f.policy.Compress {
		// A failed compression leaves the plain archive in place; expiry
		// still reaps it by age.
		gzipFile(archive)
	}
	f.expire(now)

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	f.file = file
	f.size = 0
	return nil
}

func (f *RollingFile) archiveName(now time.Time) string {
	ext := filepath.Ext(f.path)
	stem := strings.TrimSuffix(f.path, ext)
	return fmt.Sprintf("%s-%s%s", stem, now.Format("20060102-150405"), ext)
}

// expire removes archives older than the age bound.
func (f *RollingFile) expire(now time.Time) {
	if f.policy.MaxAgeDays <= 0 {
		return
	}
	cutoff := now.AddDate(0, 0, -f.policy.MaxAgeDays)

	ext := filepath.Ext(f.path)
	stem := strings.TrimSuffix(f.path, ext)
	matches, err := filepath.Glob(stem + "-*" + ext + "*")
	if err != nil {
		return
	}
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(path)
		}
	}
}

// gzipFile replaces path with path.gz. A partial .gz is removed on failure
// so the plain file stays authoritative.
func gzipFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(path+".gz", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		dst.Close()
		os.Remove(path + ".gz")
		return err
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		os.Remove(path + ".gz")
		return err
	}
	if err := dst.Close(); err != nil {
		os.Remove(path + ".gz")
		return err
	}

	return os.Remove(path)
}
