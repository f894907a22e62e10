package app

import (
	"context"
	"fmt"

	"rayven/internal/config"
	"rayven/internal/logger"
	"rayven/internal/pattern"
	"rayven/internal/store"
	transporthttp "rayven/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App 应用级编排：加载配置 → 装配依赖 → 启动决策循环与 HTTP 服务。
type App struct {
	cfg      *config.Config
	live     *LiveService
	httpSrv  *transporthttp.Server
	db       *store.Store
	registry *pattern.Registry
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动 HTTP 与决策循环，任一退出即整体退出。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.live == nil {
		return fmt.Errorf("live service not initialized")
	}
	group, ctx := errgroup.WithContext(ctx)

	if a.httpSrv != nil {
		group.Go(func() error {
			if err := a.httpSrv.Start(ctx); err != nil {
				return fmt.Errorf("http server error: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		defer a.live.Close()
		return a.live.Run(ctx)
	})

	err := group.Wait()
	if a.db != nil {
		_ = a.db.Close()
	}
	return err
}

// LiveService 暴露底层决策服务（测试/回放用）。
func (a *App) LiveService() *LiveService {
	if a == nil {
		return nil
	}
	return a.live
}
