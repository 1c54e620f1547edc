package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// RotateOptions bounds a RotatingFile. Zero values disable the matching limit.
type RotateOptions struct {
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
}

// RotatingFile is an append-only io.Writer that moves the file aside once it
// passes MaxSizeMB. Backups are named <base>-<timestamp><ext>[.gz].
type RotatingFile struct {
	path string
	opts RotateOptions

	mu   sync.Mutex
	f    *os.File
	size int64

	compressWG sync.WaitGroup
}

// OpenRotatingFile opens path for appending, creating its directory
func OpenRotatingFile(path string, opts RotateOptions) (*RotatingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	rf := &RotatingFile{path: path, opts: opts}
	if err := rf.open(); err != nil {
		return nil, err
	}
	rf.prune(time.Now(), "")
	return rf, nil
}

// Path returns the active file path
func (rf *RotatingFile) Path() string {
	return rf.path
}

// Write implements io.Writer
func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.f == nil {
		return 0, os.ErrClosed
	}
	if limit := int64(rf.opts.MaxSizeMB) << 20; limit > 0 && rf.size+int64(len(p)) > limit {
		if err := rf.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := rf.f.Write(p)
	rf.size += int64(n)
	return n, err
}

// Close closes the active file and waits for pending compression. Safe to call twice.
func (rf *RotatingFile) Close() error {
	rf.mu.Lock()
	f := rf.f
	rf.f = nil
	rf.mu.Unlock()

	rf.compressWG.Wait()
	if f == nil {
		return nil
	}
	return f.Close()
}

func (rf *RotatingFile) open() error {
	f, err := os.OpenFile(rf.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	rf.f = f
	rf.size = info.Size()
	return nil
}

// rotate must be called with rf.mu held
func (rf *RotatingFile) rotate() error {
	rf.f.Close()
	rf.f = nil

	// earlier backups must be final before prune looks at them
	rf.compressWG.Wait()

	now := time.Now()
	backup := rf.backupName(now)
	if err := os.Rename(rf.path, backup); err != nil {
		backup = ""
	} else if rf.opts.Compress {
		rf.compressWG.Add(1)
		go func() {
			defer rf.compressWG.Done()
			gzipInPlace(backup)
		}()
	}

	if err := rf.open(); err != nil {
		return err
	}
	rf.prune(now, backup)
	return nil
}

func (rf *RotatingFile) backupName(now time.Time) string {
	ext := filepath.Ext(rf.path)
	base := strings.TrimSuffix(rf.path, ext)
	return base + "-" + now.Format("20060102T150405.000") + ext
}

// backups lists rotated files newest first
func (rf *RotatingFile) backups() []os.FileInfo {
	ext := filepath.Ext(rf.path)
	pattern := strings.TrimSuffix(rf.path, ext) + "-*" + ext + "*"
	matches, _ := filepath.Glob(pattern)

	infos := make([]os.FileInfo, 0, len(matches))
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil {
			infos = append(infos, info)
		}
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ModTime().After(infos[j].ModTime())
	})
	return infos
}

// prune applies the age and count limits. fresh is a backup that may still be
// compressing; it is kept and counts toward MaxBackups.
func (rf *RotatingFile) prune(now time.Time, fresh string) {
	dir := filepath.Dir(rf.path)
	maxAge := time.Duration(rf.opts.MaxAgeDays) * 24 * time.Hour

	kept := 0
	if fresh != "" {
		kept = 1
	}
	for _, info := range rf.backups() {
		if fresh != "" && strings.HasPrefix(info.Name(), filepath.Base(fresh)) {
			continue
		}
		expired := maxAge > 0 && now.Sub(info.ModTime()) > maxAge
		if expired || (rf.opts.MaxBackups > 0 && kept >= rf.opts.MaxBackups) {
			os.Remove(filepath.Join(dir, info.Name()))
			continue
		}
		kept++
	}
}

func gzipInPlace(path string) {
	src, err := os.Open(path)
	if err != nil {
		return
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return
	}

	gz := gzip.NewWriter(dst)
	_, err = io.Copy(gz, src)
	if cerr := gz.Close(); err == nil {
		err = cerr
	}
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path + ".gz")
		return
	}
	os.Remove(path)
}
