package sharing

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// RecordStore 持久化分享记录，CLI的每条命令是独立进程，需要从这里恢复状态。
// 多个进程共用同一个存储，每次写入只改动一条记录
type RecordStore interface {
	Load() ([]Record, error)
	// Put 插入或替换会话的记录
	Put(record Record) error
	// Update 只在同一分享仍然存在时覆盖它，返回是否写入
	Update(record Record) (bool, error)
	// Delete 删除会话的记录，会话已被重新分享为其他shareID时不动
	Delete(sessionID, shareID string) error
}

const (
	lockRetryInterval = 10 * time.Millisecond
	lockTimeout       = 5 * time.Second
	// 持有者崩溃时留下的锁文件超过这个时间视为失效
	lockStaleAfter = 30 * time.Second
)

type stateFile struct {
	Shares []Record `yaml:"shares"`
}

// FileStore 把记录保存为YAML文件。文件包含分享密钥，权限为0600。
// 写入在锁文件保护下重新读取、修改、整体替换
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultStatePath 返回默认状态文件位置
func DefaultStatePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config directory: %w", err)
	}
	return filepath.Join(dir, "better-share", "shares.yaml"), nil
}

func (s *FileStore) Path() string {
	return s.path
}

// Load 读取记录，文件不存在时返回空列表
func (s *FileStore) Load() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileStore) Put(record Record) error {
	return s.update(func(records map[string]Record) bool {
		records[record.SessionID] = record
		return true
	})
}

func (s *FileStore) Update(record Record) (bool, error) {
	applied := false
	err := s.update(func(records map[string]Record) bool {
		current, ok := records[record.SessionID]
		if !ok || current.ShareID != record.ShareID {
			return false
		}
		records[record.SessionID] = record
		applied = true
		return true
	})
	return applied, err
}

func (s *FileStore) Delete(sessionID, shareID string) error {
	return s.update(func(records map[string]Record) bool {
		current, ok := records[sessionID]
		if !ok || current.ShareID != shareID {
			return false
		}
		delete(records, sessionID)
		return true
	})
}

// update 持有进程内互斥锁和锁文件，fn返回false时不写回
func (s *FileStore) update(fn func(records map[string]Record) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	list, err := s.read()
	if err != nil {
		return err
	}
	records := make(map[string]Record, len(list))
	for _, record := range list {
		records[record.SessionID] = record
	}
	if !fn(records) {
		return nil
	}

	list = list[:0]
	for _, record := range records {
		list = append(list, record)
	}
	return s.write(list)
}

// lock 以O_EXCL创建锁文件，写入持有者的PID
func (s *FileStore) lock() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	lockPath := s.path + ".lock"
	deadline := time.Now().Add(lockTimeout)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			_, writeErr := f.WriteString(strconv.Itoa(os.Getpid()))
			f.Close()
			if writeErr != nil {
				os.Remove(lockPath)
				return nil, fmt.Errorf("failed to write state lock: %w", writeErr)
			}
			return func() { os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("failed to create state lock: %w", err)
		}

		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > lockStaleAfter {
			os.Remove(lockPath)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for state lock %s", lockPath)
		}
		time.Sleep(lockRetryInterval)
	}
}

func (s *FileStore) read() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state stateFile
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", s.path, err)
	}
	return state.Shares, nil
}

// write 整体替换文件，先写临时文件再重命名
func (s *FileStore) write(records []Record) error {
	sort.Slice(records, func(i, j int) bool { return records[i].SessionID < records[j].SessionID })

	data, err := yaml.Marshal(stateFile{Shares: records})
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".shares-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set state file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
