package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/newsdeck/backend/internal/api"
	"github.com/wonny/newsdeck/backend/internal/api/handlers"
	"github.com/wonny/newsdeck/backend/internal/dashboard"
	"github.com/wonny/newsdeck/backend/internal/probe"
	"github.com/wonny/newsdeck/backend/internal/runner"
	"github.com/wonny/newsdeck/backend/internal/scheduler"
	"github.com/wonny/newsdeck/backend/internal/scheduler/jobs"
	"github.com/wonny/newsdeck/backend/internal/settings"
	"github.com/wonny/newsdeck/backend/pkg/redis"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "대시보드 API 서버 시작",
	Long: `대시보드 API 서버를 시작합니다.

이 명령어는:
- HTTP API 서버 시작
- 웹소켓으로 캐시 재생성/작업 완료 알림
- 요청이 없으면 QUALITY_IDLE_TIMEOUT 후 자동 종료
- QUALITY_PERSISTENT=true 이면 상시 실행 + 주기적 캐시 재생성

Endpoints:
  GET  /health             - Health check (refresh job stats when persistent)
  GET  /api/snapshots      - 대시보드 페이로드 (?refresh=true 로 재생성)
  GET  /api/config         - 설정 조회
  PUT  /api/config         - 설정 저장
  GET  /api/reports/{name} - 레거시 리포트 원문
  GET  /api/probe          - 지연시간 프로브
  POST /api/run/{task}     - test | report | build 실행
  GET  /ws                 - 웹소켓 알림

Example:
  go run ./cmd/quality serve
  go run ./cmd/quality serve --port 8080`,
	RunE: runServe,
}

var (
	servePort    string
	serveOrigins []string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	// Flags
	serveCmd.Flags().StringVar(&servePort, "port", "", "API 서버 포트 (기본: PORT)")
	serveCmd.Flags().StringSliceVar(&serveOrigins, "allowed-origins", nil, "웹소켓 허용 Origin 목록")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// 1. Load config
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Port = servePort
	}

	log.WithFields(map[string]interface{}{
		"port":       cfg.Port,
		"env":        cfg.Env,
		"persistent": cfg.PersistentMode,
	}).Info("Initializing API server")

	// 2. Shared components (store, redis)
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	builder := a.builder(ctx)

	// 3. Websocket hub
	hub := api.NewHub(serveOrigins, log.Component("ws"))
	go hub.Run(ctx)

	// 4. Collaborators
	var settingsMirror settings.Mirror
	if a.cache != nil {
		settingsMirror = a.cache
	}
	cfgStore := settings.New(a.ws, cfg.Paths.Rel(cfg.Paths.SettingsFile), settingsMirror, log)

	run := runner.New(cfg.RunnerBin, cfg.Paths.Root, log.Component("runner")).
		WithTimings(a.ws, cfg.Paths.Rel(cfg.Paths.ScriptTimings))
	limiter := redis.NewRateLimiter(a.redis, "quality")

	var guard *api.AppBuild
	deps := handlers.Deps{
		Cache:      builder,
		Reports:    a.store,
		Settings:   cfgStore,
		ProbeURL:   cfg.ProbeURL,
		ProbeCache: a.cache,
		Runner:     run,
		Limiter:    limiter,
		Notifier:   hub,
	}
	if cfg.ProbeURL != "" {
		deps.Prober = probe.New(cfg.ProbeTimeout, log)
	}
	if cfg.AutoRebuild {
		guard = api.NewAppBuild(a.ws, cfg.Paths.Rel(cfg.Paths.BuildOutput), run, limiter, log)
		deps.Guard = guard
	}

	// 5. Scheduled refresh (persistent mode only)
	var routerOpts []api.RouterOption
	if cfg.PersistentMode {
		sched, err := startRefresh(cfg.RefreshSchedule, builder, guard, hub, a)
		if err != nil {
			return err
		}
		defer sched.Stop()
		routerOpts = append(routerOpts, api.WithJobStats(sched))
	}

	// 6. Router and server
	activity := api.NewActivity()
	router := api.NewRouter(handlers.NewQualityHandler(deps, log), hub, activity, log, routerOpts...)
	server := api.New(cfg, log, router, activity)
	server.KeepAliveWhile(func() bool { return hub.ClientCount() > 0 })

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	err = server.Run(ctx)
	if errors.Is(err, api.ErrIdle) {
		log.Info("Server stopped after idle timeout")
		return nil
	}
	if err != nil {
		return err
	}

	log.Info("Server stopped")
	return nil
}

func startRefresh(schedule string, builder *dashboard.Builder, guard *api.AppBuild, hub *api.Hub, a *app) (*scheduler.Scheduler, error) {
	if err := scheduler.ValidateSchedule(schedule); err != nil {
		return nil, fmt.Errorf("QUALITY_REFRESH_SCHEDULE: %w", err)
	}

	job := jobs.NewCacheRefreshJob(builder, schedule, a.log).
		After(func(p *dashboard.Payload) {
			hub.Broadcast(handlers.EventCacheRebuilt, map[string]interface{}{
				"generatedAt": p.GeneratedAt,
				"count":       p.Summary.Count,
			})
		})
	if guard != nil {
		job.Before(guard.Ensure)
	}

	sched := scheduler.New(a.log.Component("scheduler"))
	if err := sched.AddJob(job); err != nil {
		return nil, fmt.Errorf("register refresh job: %w", err)
	}
	sched.Start()

	// Warm the cache now rather than at the first tick.
	if err := sched.RunJob(job.Name()); err != nil {
		sched.Stop()
		return nil, err
	}

	a.log.WithFields(map[string]interface{}{
		"job":      job.Name(),
		"schedule": schedule,
	}).Info("Scheduled cache refresh")

	return sched, nil
}
