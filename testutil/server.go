package testutil

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"better-share/internal/api"
	"better-share/internal/middleware"
	"better-share/internal/repository"
	"better-share/internal/service"
	"better-share/internal/storage"
	"better-share/internal/websocket"
	"better-share/pkg/config"
	"better-share/pkg/db"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// ShareServer 是一个完整的分享服务，使用sqlite和本地存储
type ShareServer struct {
	*httptest.Server
	Repo    *repository.ShareRepository
	Store   *storage.LocalStore
	Service *service.ShareService
	Hub     *websocket.Hub
}

type ServerOptions struct {
	// 0 表示不限流
	CreateRatePerMinute int
	CreateBurst         int
	MaxUploadBytes      int64
}

// NewShareServer 启动一个测试用分享服务，测试结束时关闭
func NewShareServer(t *testing.T, opts ServerOptions) *ShareServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.Open(config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "shares.db")})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	repo := repository.NewShareRepository(conn)

	// 上传地址要指向服务自己，先启动服务再装配路由
	var handler http.Handler = http.NotFoundHandler()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	signer, err := storage.NewURLSigner("test-signing-key")
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}
	store, err := storage.NewLocalStore(t.TempDir(), srv.URL, signer)
	if err != nil {
		t.Fatalf("Failed to create local store: %v", err)
	}

	hub := websocket.NewHub()
	go hub.Run()
	t.Cleanup(func() { hub.Close() })

	svc, err := service.NewShareService(repo, store, hub, service.ShareServiceOptions{
		BaseURL:    srv.URL,
		SecretCost: bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("Failed to create share service: %v", err)
	}

	deps := api.RouterDeps{
		Shares:         svc,
		Hub:            hub,
		LocalStore:     store,
		MaxUploadBytes: opts.MaxUploadBytes,
	}
	if opts.CreateRatePerMinute > 0 {
		deps.RateLimiter = middleware.NewRateLimiter(opts.CreateRatePerMinute, opts.CreateBurst)
	}
	handler = api.NewRouter(deps)

	return &ShareServer{Server: srv, Repo: repo, Store: store, Service: svc, Hub: hub}
}
