package main

import (
	"context"
	"flag"
	"time"

	"github.com/sirupsen/logrus"

	"inspector/internal/abiprovider"
	"inspector/internal/analyzer"
	"inspector/internal/api"
	"inspector/internal/cache"
	"inspector/internal/chain"
	"inspector/internal/config"
	"inspector/internal/logging"
	"inspector/internal/proxy"
	"inspector/internal/shutdown"
	"inspector/internal/state"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "配置文件路径")
	port       = flag.Int("port", 0, "API 服务端口（0表示使用配置）")
	verbose    = flag.Bool("verbose", false, "详细输出")
)

func main() {
	flag.Parse()

	// 自动检测并加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}

	if *verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		logrus.Fatalf("初始化日志失败: %v", err)
	}

	client, err := chain.NewMultiNodeClient(cfg.Blockchain, logger)
	if err != nil {
		logger.Fatalf("创建链客户端失败: %v", err)
	}

	var store *cache.Store
	if cfg.Cache.Enabled {
		store, err = cache.NewStore(cfg.Cache.Path, logger)
		if err != nil {
			logger.Warnf("初始化缓存失败，禁用缓存: %v", err)
		}
	}

	var abiCache abiprovider.ABICache
	if store != nil {
		abiCache = store
	}
	provider := abiprovider.NewEtherscanProvider(cfg.ABI, abiCache, logger)

	resolver := proxy.NewResolver(client, cfg.Resolver, logger)
	reader := state.NewReader(client, cfg.Reader, logger)
	a := analyzer.NewAnalyzer(client, resolver, provider, reader, store, logger)

	serverPort := *port
	if serverPort == 0 {
		serverPort = cfg.API.Port
	}
	server := api.NewServer(cfg, a, logger, serverPort)

	// 优雅停机：先停HTTP服务，再关缓存和链客户端
	manager := shutdown.NewManager(30*time.Second, logger)
	manager.Register("api服务器", server.Stop, 1)
	if store != nil {
		manager.Register("结果缓存", func(ctx context.Context) error {
			return store.Close()
		}, 2)
	}
	manager.Register("链客户端", func(ctx context.Context) error {
		client.Close()
		return nil
	}, 3)
	manager.Start()

	go func() {
		if err := server.Start(); err != nil {
			logger.Errorf("API服务器已停止: %v", err)
		}
	}()

	logger.Infof("API服务器已启动，监听端口: %d", serverPort)
	manager.Wait()
	logger.Info("服务器已关闭")
}
