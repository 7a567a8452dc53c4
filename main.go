package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"WPush/global"
	"WPush/logger"
	"WPush/service/bus"
	"WPush/service/gateway"
	"WPush/service/ingress"
	"WPush/service/storage"
	redisstore "WPush/service/storage/redis"
	"WPush/service/ws"
	"WPush/tools/safe"
)

func main() {
	cfg := global.Config()

	if err := redisstore.InitRedis(cfg.Redis); err != nil {
		logger.Errorf("[main] redis init failed: %v", err)
		os.Exit(1)
	}
	rdb := redisstore.GetRedis()

	instanceID := gateway.NewInstanceID()
	logger.Infof("[main] instance id = %s", instanceID)

	conns := ws.NewConnManager(cfg.SendDeadline)
	dir := storage.NewRedisDirectory(rdb)
	groups := storage.NewRedisGroupStore(rdb)
	inst := gateway.NewInstance(instanceID, conns, dir, groups)

	// 总线订阅：本实例数据类/系统类 + 全局广播
	rbus := bus.NewRedisBus(rdb)
	if err := rbus.Subscribe(context.Background(), instanceID, inst.HandleBus); err != nil {
		logger.Errorf("[main] bus subscribe failed: %v", err)
		os.Exit(1)
	}

	// 原生 socket 服务
	wsSrv := ws.NewServer(cfg.WSAddr, conns, cfg.CookieTTL, inst)
	safe.SafeGo(func() {
		if err := wsSrv.ListenAndServe(); err != nil {
			logger.Errorf("[main] ws server exited: %v", err)
		}
	})

	// ingress 发布入口
	engine := ingress.NewRouter(ingress.NewHandler(dir, groups, rbus))
	httpSrv := &http.Server{Addr: cfg.IngressAddr, Handler: engine}
	safe.SafeGo(func() {
		logger.Infof("[main] ingress listening on %s", cfg.IngressAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("[main] ingress exited: %v", err)
		}
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("[main] shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	wsSrv.Close()
	_ = rbus.Close()
	conns.Close()
	_ = redisstore.CloseRedis()
}
