// monitor.go
package file

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileMonitor 监控数据目录，新的CSV/XLSX写入完成后回调
type FileMonitor struct {
	watchDir string
	watcher  *fsnotify.Watcher
	settle   time.Duration // 同一文件连续写事件的合并窗口
	lastMod  map[string]time.Time
	timers   map[string]*time.Timer
	stopped  bool
	mu       sync.Mutex
	running  sync.WaitGroup // 正在执行的回调
	handleMu sync.Mutex     // 回调串行执行
}

func NewFileMonitor(dir string) (*FileMonitor, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	return &FileMonitor{
		watchDir: dir,
		watcher:  watcher,
		settle:   500 * time.Millisecond,
		lastMod:  make(map[string]time.Time),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Dir 被监控的目录
func (m *FileMonitor) Dir() string { return m.watchDir }

// Watch 阻塞直到ctx取消或watcher出错，handler在独立goroutine中执行
func (m *FileMonitor) Watch(ctx context.Context, handler func(string)) error {
	defer m.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !Supported(event.Name) {
				continue
			}
			m.schedule(event.Name, handler)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

// schedule 合并连续的写事件，只有修改时间变化时才回调
// 多个文件同时变化时回调依次执行，不会并发
func (m *FileMonitor) schedule(name string, handler func(string)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.timers[name]; ok {
		t.Stop()
	}
	m.timers[name] = time.AfterFunc(m.settle, func() {
		info, err := os.Stat(name)
		if err != nil || info.IsDir() {
			return
		}

		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			return
		}
		delete(m.timers, name)
		changed := info.ModTime().After(m.lastMod[name])
		if changed {
			m.lastMod[name] = info.ModTime()
			m.running.Add(1)
		}
		m.mu.Unlock()

		if changed {
			defer m.running.Done()
			m.handleMu.Lock()
			defer m.handleMu.Unlock()
			handler(name)
		}
	})
}

// stop 停止等待中的定时器，并等已经开始的回调执行完
func (m *FileMonitor) stop() {
	m.mu.Lock()
	m.stopped = true
	for _, t := range m.timers {
		t.Stop()
	}
	m.mu.Unlock()

	m.running.Wait()
	m.watcher.Close()
}

// Latest 目录中修改时间最新的数据文件，没有时返回空字符串
func Latest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latest string
	var latestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() || !Supported(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest = filepath.Join(dir, entry.Name())
			latestMod = info.ModTime()
		}
	}
	return latest, nil
}

// ensureDir 确保目录存在
func ensureDir(dirPath string) error {
	if info, err := os.Stat(dirPath); err == nil {
		if info.IsDir() {
			return nil
		}
		return &os.PathError{Op: "mkdir", Path: dirPath, Err: os.ErrExist}
	}
	return os.MkdirAll(dirPath, 0755)
}
