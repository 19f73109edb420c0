// Package sharing 管理本进程内会话分享的生命周期：创建、防抖同步和删除。
package sharing

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"better-share/internal/client"
	"better-share/internal/clock"
	"better-share/internal/errs"
	"better-share/internal/sessionstore"
	"better-share/internal/shareid"
	"better-share/internal/transcript"
	"better-share/pkg/logger"

	"go.uber.org/zap"
)

const (
	DefaultDebounce = time.Second
	// 创建失败后撤销服务端注册的超时
	cleanupTimeout = 10 * time.Second
)

// API 是分享服务的远程操作，由client.Client实现
type API interface {
	CreatePresign(ctx context.Context, shareID, sessionID string) (*client.PresignResponse, error)
	SyncPresign(ctx context.Context, shareID, secret string) (string, error)
	DeleteShare(ctx context.Context, shareID, secret string) error
	Upload(ctx context.Context, presignedURL string, doc *transcript.ShareDocument) error
}

// SessionSource 读取本地会话，由sessionstore.Store实现
type SessionSource interface {
	FindProject(ctx context.Context, sessionID string) (string, error)
	ReadFullSession(ctx context.Context, projectID, sessionID string) (*transcript.Snapshot, error)
}

type Options struct {
	// 同步防抖窗口，默认1秒
	Debounce time.Duration
	Clock    clock.Clock
	// 为nil时只在内存中保存记录
	Store RecordStore
}

// pendingSync 是一个已安排的同步，generation用于识别被取代的定时器
type pendingSync struct {
	timer      clock.Timer
	generation uint64
}

// Manager 是本进程内哪些会话已分享的唯一权威，所有上传和删除都经由它发起
type Manager struct {
	api      API
	sessions SessionSource
	clock    clock.Clock
	store    RecordStore
	debounce time.Duration

	mu         sync.Mutex
	shares     map[string]*Record
	timers     map[string]*pendingSync
	creating   map[string]struct{}
	// 创建期间收到删除事件的会话，创建完成前撤销
	deletedWhileCreating map[string]struct{}
	removing             map[string]struct{}
	syncing    map[string]chan struct{}
	generation uint64
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager 创建管理器，配置了Store时先加载已保存的记录
func NewManager(api API, sessions SessionSource, opts Options) (*Manager, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		api:      api,
		sessions: sessions,
		clock:    opts.Clock,
		store:    opts.Store,
		debounce: opts.Debounce,
		shares:   make(map[string]*Record),
		timers:   make(map[string]*pendingSync),
		creating: make(map[string]struct{}),
		removing: make(map[string]struct{}),
		syncing:  make(map[string]chan struct{}),
		ctx:      ctx,
		cancel:   cancel,

		deletedWhileCreating: make(map[string]struct{}),
	}

	if m.store != nil {
		records, err := m.store.Load()
		if err != nil {
			cancel()
			return nil, err
		}
		for i := range records {
			record := records[i]
			m.shares[record.SessionID] = &record
		}
		logger.L.Debug("Loaded share records", zap.Int("count", len(records)))
	}
	return m, nil
}

// DeriveShareID 由会话ID生成默认的分享ID
func DeriveShareID(sessionID string) string {
	return shareid.Derive(sessionID)
}

func (m *Manager) IsShared(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.shares[sessionID]
	return ok
}

// ShareInfo 返回记录的副本
func (m *Manager) ShareInfo(sessionID string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.shares[sessionID]
	if !ok {
		return Record{}, false
	}
	return *record, true
}

// Shares 返回所有记录，按创建时间排序
func (m *Manager) Shares() []Record {
	m.mu.Lock()
	records := make([]Record, 0, len(m.shares))
	for _, record := range m.shares {
		records = append(records, *record)
	}
	m.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt < records[j].CreatedAt
		}
		return records[i].SessionID < records[j].SessionID
	})
	return records
}

// CreateShare 分享一个会话并返回公开地址。只有文档上传成功后才会记录分享
func (m *Manager) CreateShare(ctx context.Context, sessionID, shareID string) (string, error) {
	if !shareid.Valid(shareID) {
		return "", errs.New(errs.InvalidShareID, "invalid share id: "+shareID)
	}

	m.mu.Lock()
	if _, ok := m.shares[sessionID]; ok {
		m.mu.Unlock()
		return "", errs.New(errs.AlreadyShared, "session is already shared")
	}
	if _, ok := m.creating[sessionID]; ok {
		m.mu.Unlock()
		return "", errs.New(errs.AlreadyShared, "session is already being shared")
	}
	m.creating[sessionID] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.creating, sessionID)
		delete(m.deletedWhileCreating, sessionID)
		m.mu.Unlock()
	}()

	log := logger.L.With(zap.String("sessionID", sessionID), zap.String("shareID", shareID))

	projectID, err := m.sessions.FindProject(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sessionstore.ErrSessionNotFound) {
			return "", errs.Wrap(errs.SessionNotFound, "session not found", err)
		}
		return "", errs.Wrap(errs.SessionReadFailed, "failed to locate session", err)
	}

	presign, err := m.api.CreatePresign(ctx, shareID, sessionID)
	if err != nil {
		log.Warn("Presign request failed", zap.Error(err))
		return "", presignError(err)
	}

	snapshot, err := m.sessions.ReadFullSession(ctx, projectID, sessionID)
	if err != nil {
		log.Warn("Failed to read session snapshot", zap.Error(err))
		m.abandon(shareID, presign.Secret)
		return "", errs.Wrap(errs.SessionReadFailed, "failed to read session", err)
	}

	now := m.clock.Now().UnixMilli()
	doc := transcript.NewDocument(shareID, snapshot, now, now)
	if err := m.api.Upload(ctx, presign.PresignedURL, doc); err != nil {
		log.Warn("Initial upload failed", zap.Error(err))
		m.abandon(shareID, presign.Secret)
		return "", errs.Wrap(errs.UploadFailed, "failed to upload session", err)
	}

	record := &Record{
		ShareID:   shareID,
		SessionID: sessionID,
		Secret:    presign.Secret,
		URL:       presign.URL,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	if _, deleted := m.deletedWhileCreating[sessionID]; deleted {
		m.mu.Unlock()
		log.Info("Session deleted while sharing, withdrawing share")
		m.abandon(shareID, presign.Secret)
		return "", errs.New(errs.SessionNotFound, "session was deleted while sharing")
	}
	m.shares[sessionID] = record
	m.putLocked(*record)
	m.mu.Unlock()

	log.Info("Session shared", zap.Object("record", *record))
	return record.URL, nil
}

// QueueSync 安排一次防抖同步。会话未分享或正在删除时什么也不做，从不阻塞
func (m *Manager) QueueSync(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if _, ok := m.shares[sessionID]; !ok {
		return
	}
	if _, ok := m.removing[sessionID]; ok {
		return
	}

	if pending, ok := m.timers[sessionID]; ok {
		pending.timer.Stop()
	}

	m.generation++
	generation := m.generation
	pending := &pendingSync{generation: generation}
	m.timers[sessionID] = pending
	pending.timer = m.clock.AfterFunc(m.debounce, func() {
		m.fire(sessionID, generation)
	})
}

// fire 在防抖窗口结束时执行，被取代或取消的定时器直接返回
func (m *Manager) fire(sessionID string, generation uint64) {
	m.mu.Lock()
	pending, ok := m.timers[sessionID]
	if !ok || pending.generation != generation {
		m.mu.Unlock()
		return
	}
	delete(m.timers, sessionID)

	record, shared := m.shares[sessionID]
	if !shared || m.closed {
		m.mu.Unlock()
		return
	}
	if _, removing := m.removing[sessionID]; removing {
		m.mu.Unlock()
		return
	}
	if _, busy := m.syncing[sessionID]; busy {
		// 上一次同步还没结束，等它结束后再同步一次
		m.mu.Unlock()
		m.QueueSync(sessionID)
		return
	}
	snapshot := *record
	done := make(chan struct{})
	m.syncing[sessionID] = done
	m.wg.Add(1)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.syncing, sessionID)
		m.mu.Unlock()
		close(done)
		m.wg.Done()
	}()

	m.sync(snapshot)
}

// sync 上传会话的最新内容，失败只记录日志
func (m *Manager) sync(record Record) {
	ctx := m.ctx
	log := logger.L.With(zap.String("sessionID", record.SessionID), zap.String("shareID", record.ShareID))

	presignedURL, err := m.api.SyncPresign(ctx, record.ShareID, record.Secret)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			log.Info("Share no longer exists on server, dropping record")
			m.dropIfCurrent(record)
			return
		}
		log.Warn("Sync presign failed", zap.Error(err))
		return
	}

	projectID, err := m.sessions.FindProject(ctx, record.SessionID)
	if err != nil {
		log.Warn("Sync could not locate session", zap.Error(err))
		return
	}
	snapshot, err := m.sessions.ReadFullSession(ctx, projectID, record.SessionID)
	if err != nil {
		log.Warn("Sync could not read session", zap.Error(err))
		return
	}

	now := m.clock.Now().UnixMilli()
	doc := transcript.NewDocument(record.ShareID, snapshot, record.CreatedAt, now)
	if err := m.api.Upload(ctx, presignedURL, doc); err != nil {
		log.Warn("Sync upload failed", zap.Error(err))
		return
	}

	m.mu.Lock()
	current, ok := m.shares[record.SessionID]
	if !ok || current.ShareID != record.ShareID {
		m.mu.Unlock()
		return
	}
	current.UpdatedAt = now
	if m.store != nil {
		applied, err := m.store.Update(*current)
		if err != nil {
			logger.L.Error("Failed to persist share record", zap.Error(err))
		} else if !applied {
			// 其他进程已经取消了这个分享
			m.cancelPendingLocked(record.SessionID)
			delete(m.shares, record.SessionID)
			m.mu.Unlock()
			log.Info("Share was removed by another process, dropping record")
			return
		}
	}
	m.mu.Unlock()
	log.Debug("Session synced", zap.Int("messages", len(doc.Messages)))
}

// dropIfCurrent 删除仍指向同一分享的记录
func (m *Manager) dropIfCurrent(record Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.shares[record.SessionID]
	if !ok || current.ShareID != record.ShareID {
		return
	}
	m.cancelPendingLocked(record.SessionID)
	delete(m.shares, record.SessionID)
	m.deleteLocked(record)
}

// RemoveShare 取消分享。待执行的同步总是被取消；远程删除失败时保留记录以便重试
func (m *Manager) RemoveShare(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	record, ok := m.shares[sessionID]
	if !ok {
		m.mu.Unlock()
		return errs.New(errs.NotShared, "session is not shared")
	}
	if _, busy := m.removing[sessionID]; busy {
		m.mu.Unlock()
		return errs.New(errs.DeleteFailed, "session is already being unshared")
	}
	m.cancelPendingLocked(sessionID)
	m.removing[sessionID] = struct{}{}
	inFlight := m.syncing[sessionID]
	snapshot := *record
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.removing, sessionID)
		m.mu.Unlock()
	}()

	// 等待正在进行的上传结束，避免删除后又被写回
	if inFlight != nil {
		select {
		case <-inFlight:
		case <-ctx.Done():
			return errs.Wrap(errs.DeleteFailed, "timed out waiting for sync to finish", ctx.Err())
		}
	}

	if err := m.api.DeleteShare(ctx, snapshot.ShareID, snapshot.Secret); err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			// 服务端已经没有这个分享，本地记录也不再有意义
			logger.L.Info("Share already gone on server", zap.Object("record", snapshot))
		} else {
			logger.L.Warn("Remote delete failed", zap.Object("record", snapshot), zap.Error(err))
			return errs.Wrap(errs.DeleteFailed, remoteMessage(err, "failed to delete share"), err)
		}
	}

	m.dropIfCurrent(snapshot)

	logger.L.Info("Session unshared", zap.String("sessionID", sessionID), zap.String("shareID", snapshot.ShareID))
	return nil
}

// HandleSessionDeleted 会话被删除时隐式取消分享，未分享的会话忽略。
// 正在创建的分享会在创建完成前撤销
func (m *Manager) HandleSessionDeleted(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	if _, ok := m.creating[sessionID]; ok {
		m.deletedWhileCreating[sessionID] = struct{}{}
		m.mu.Unlock()
		return nil
	}
	_, shared := m.shares[sessionID]
	m.mu.Unlock()
	if !shared {
		return nil
	}

	err := m.RemoveShare(ctx, sessionID)
	if err != nil {
		logger.L.Warn("Failed to unshare deleted session", zap.String("sessionID", sessionID), zap.Error(err))
	}
	return err
}

// PendingSyncs 返回已安排但尚未执行的同步数量
func (m *Manager) PendingSyncs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Close 停止所有待执行的同步并等待进行中的同步结束
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	for sessionID := range m.timers {
		m.cancelPendingLocked(sessionID)
	}
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

func (m *Manager) cancelPendingLocked(sessionID string) {
	if pending, ok := m.timers[sessionID]; ok {
		pending.timer.Stop()
		delete(m.timers, sessionID)
	}
}

// Refresh 与记录存储对齐：加入其他进程创建的分享，去掉其他进程取消的分享
func (m *Manager) Refresh() error {
	if m.store == nil {
		return nil
	}

	// 持锁读取，保证本进程的写入不会夹在读取和合并之间
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := m.store.Load()
	if err != nil {
		return err
	}
	onDisk := make(map[string]Record, len(records))
	for _, record := range records {
		onDisk[record.SessionID] = record
	}

	for sessionID, current := range m.shares {
		if _, busy := m.removing[sessionID]; busy {
			continue
		}
		if stored, ok := onDisk[sessionID]; ok && stored.ShareID == current.ShareID {
			continue
		}
		m.cancelPendingLocked(sessionID)
		delete(m.shares, sessionID)
		logger.L.Debug("Share removed elsewhere", zap.Object("record", *current))
	}
	for sessionID, stored := range onDisk {
		if _, ok := m.shares[sessionID]; ok {
			continue
		}
		if _, busy := m.creating[sessionID]; busy {
			continue
		}
		record := stored
		m.shares[sessionID] = &record
		logger.L.Debug("Share added elsewhere", zap.Object("record", record))
	}
	return nil
}

func (m *Manager) putLocked(record Record) {
	if m.store == nil {
		return
	}
	if err := m.store.Put(record); err != nil {
		logger.L.Error("Failed to persist share record", zap.Error(err))
	}
}

func (m *Manager) deleteLocked(record Record) {
	if m.store == nil {
		return
	}
	if err := m.store.Delete(record.SessionID, record.ShareID); err != nil {
		logger.L.Error("Failed to persist share removal", zap.Error(err))
	}
}

// abandon 撤销已在服务端注册但没有完成上传的分享
func (m *Manager) abandon(shareID, secret string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := m.api.DeleteShare(ctx, shareID, secret); err != nil {
		logger.L.Warn("Failed to clean up abandoned share", zap.String("shareID", shareID), zap.Error(err))
	}
}

func presignError(err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return errs.Wrap(errs.RateLimited, apiErr.Message, err)
	}
	return errs.Wrap(errs.PresignFailed, remoteMessage(err, "failed to reach share server"), err)
}

// remoteMessage 优先使用服务端返回的消息
func remoteMessage(err error, fallback string) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
