// Package sessionstore 读取宿主工具(opencode)在本地磁盘上保存的会话数据。
//
// 目录结构:
//
//	<root>/session/<projectID>/<sessionID>.json
//	<root>/message/<sessionID>/<messageID>.json
//	<root>/part/<messageID>/<partID>.json
package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"better-share/internal/transcript"
	"better-share/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrSessionNotFound 表示没有任何项目目录包含该会话
var ErrSessionNotFound = errors.New("session not found")

// 并发读取part目录的上限
const readConcurrency = 8

type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{root: root}
}

// DefaultRoot 返回opencode默认的存储目录，遵循XDG_DATA_HOME
func DefaultRoot() (string, error) {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "opencode", "storage"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "opencode", "storage"), nil
}

func (s *Store) Root() string {
	return s.root
}

// FindProject 查找会话所属的项目ID
func (s *Store) FindProject(ctx context.Context, sessionID string) (string, error) {
	sessionDir := filepath.Join(s.root, "session")
	projects, err := os.ReadDir(sessionDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("failed to read session directory: %w", err)
	}

	fileName := sessionID + ".json"
	for _, project := range projects {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !project.IsDir() {
			continue
		}
		_, err := os.Stat(filepath.Join(sessionDir, project.Name(), fileName))
		if err == nil {
			return project.Name(), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			logger.L.Warn("Failed to stat session file",
				zap.String("projectID", project.Name()),
				zap.String("sessionID", sessionID),
				zap.Error(err))
		}
	}
	return "", ErrSessionNotFound
}

// ReadSession 读取会话元数据
func (s *Store) ReadSession(projectID, sessionID string) (*transcript.Session, error) {
	var session transcript.Session
	path := filepath.Join(s.root, "session", projectID, sessionID+".json")
	if err := readJSON(path, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ReadMessages 读取会话的所有消息(不含part)，按创建时间排序
func (s *Store) ReadMessages(sessionID string) ([]transcript.Message, error) {
	var messages []transcript.Message
	err := readJSONDir(filepath.Join(s.root, "message", sessionID), func(path string) error {
		var message transcript.Message
		if err := readJSON(path, &message); err != nil {
			return err
		}
		messages = append(messages, message)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].Time.Created != messages[j].Time.Created {
			return messages[i].Time.Created < messages[j].Time.Created
		}
		return messages[i].ID < messages[j].ID
	})
	return messages, nil
}

// ReadParts 读取一条消息的所有part。part ID按时间递增生成，按ID排序即为产生顺序
func (s *Store) ReadParts(messageID string) ([]transcript.Part, error) {
	parts := []transcript.Part{}
	err := readJSONDir(filepath.Join(s.root, "part", messageID), func(path string) error {
		var part transcript.Part
		if err := readJSON(path, &part); err != nil {
			return err
		}
		parts = append(parts, part)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(parts, func(i, j int) bool {
		return parts[i].ID < parts[j].ID
	})
	return parts, nil
}

// ReadFullSession 读取会话、消息以及所有part，组装成完整快照
func (s *Store) ReadFullSession(ctx context.Context, projectID, sessionID string) (*transcript.Snapshot, error) {
	session, err := s.ReadSession(projectID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	messages, err := s.ReadMessages(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(readConcurrency)
	for i := range messages {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			parts, err := s.ReadParts(messages[i].ID)
			if err != nil {
				return fmt.Errorf("failed to read parts of message %s: %w", messages[i].ID, err)
			}
			messages[i].Parts = parts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if messages == nil {
		messages = []transcript.Message{}
	}
	return &transcript.Snapshot{Session: *session, Messages: messages}, nil
}

// SessionRef 用于列出本地会话
type SessionRef struct {
	ProjectID string
	Session   transcript.Session
}

// ListSessions 列出所有项目下的会话，按更新时间倒序
func (s *Store) ListSessions() ([]SessionRef, error) {
	sessionDir := filepath.Join(s.root, "session")
	projects, err := os.ReadDir(sessionDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session directory: %w", err)
	}

	var refs []SessionRef
	for _, project := range projects {
		if !project.IsDir() {
			continue
		}
		err := readJSONDir(filepath.Join(sessionDir, project.Name()), func(path string) error {
			var session transcript.Session
			if err := readJSON(path, &session); err != nil {
				// 单个文件损坏不影响列出其他会话
				logger.L.Warn("Skipping unreadable session file", zap.String("path", path), zap.Error(err))
				return nil
			}
			refs = append(refs, SessionRef{ProjectID: project.Name(), Session: session})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.SliceStable(refs, func(i, j int) bool {
		return refs[i].Session.Time.Updated > refs[j].Session.Time.Updated
	})
	return refs, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// readJSONDir 对目录中的每个.json文件调用fn，目录不存在视为空目录
func readJSONDir(dir string, fn func(path string) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := fn(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
