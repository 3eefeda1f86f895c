// Package main 是应用程序的入口点。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkin-companion/internal/config"
	"checkin-companion/internal/handler"
	"checkin-companion/internal/middleware"
	"checkin-companion/internal/repository"
	"checkin-companion/internal/service"
	"checkin-companion/pkg/database"
	"checkin-companion/pkg/kafka"
	"checkin-companion/pkg/llm"
	"checkin-companion/pkg/log"
	"checkin-companion/pkg/storage"
	"checkin-companion/pkg/tasks"
	"checkin-companion/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "path to the YAML config file")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(log.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 选择存储实现：配置缺失或不可达时降级，不退出
	var studyRepo repository.StudyRepository
	if cfg.Database.MySQL.Configured() {
		if err := database.InitMySQL(cfg.Database.MySQL.DSN); err != nil {
			log.Warnw("MySQL 不可用，使用本地存储", "error", err)
		} else if err := database.AutoMigrate(database.DB); err != nil {
			log.Warnw("数据库迁移失败，使用本地存储", "error", err)
		} else {
			studyRepo = repository.NewStudyRepository(database.DB)
			log.Info("使用 MySQL 存储研究数据")
		}
	} else {
		log.Warnf("未配置 database.mysql.dsn，使用本地存储")
	}
	if studyRepo == nil {
		studyRepo = repository.NewLocalStudyRepository(cfg.Study.LocalStorePath)
		log.Infof("本地存储路径: %s", cfg.Study.LocalStorePath)
	}

	var sessionCache repository.SessionCache
	if cfg.Database.Redis.Configured() {
		if err := database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB); err != nil {
			log.Warnw("Redis 不可用，使用进程内缓存", "error", err)
		} else {
			sessionCache = repository.NewRedisSessionCache(database.RDB)
		}
	} else {
		log.Warnf("未配置 database.redis.addr，使用进程内缓存")
	}
	if sessionCache == nil {
		sessionCache = repository.NewMemorySessionCache()
	}

	var archiver service.TranscriptArchiver = service.NoopArchiver{}
	if cfg.MinIO.Configured() {
		if err := storage.InitMinIO(cfg.MinIO); err != nil {
			log.Warnw("MinIO 不可用，不归档对话记录", "error", err)
		} else {
			archiver = service.NewMinioArchiver(storage.MinioClient, cfg.MinIO.BucketName)
		}
	}

	// 4. 后台写入：配置了 Kafka 时经由消息队列，否则在进程内异步执行
	processor := service.NewMessageProcessor(studyRepo)
	localDispatcher := service.NewAsyncDispatcher(processor, service.LogErrorHook)
	dispatcher := localDispatcher
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	consumerDone := make(chan struct{})
	if cfg.Kafka.Configured() {
		kafka.InitProducer(cfg.Kafka, func(task tasks.MessageWriteTask, err error) {
			log.Warnw("Kafka 投递失败，改为进程内写入", "messageId", task.MessageID, "error", err)
			localDispatcher.DispatchMessage(task)
		})
		dispatcher = service.NewKafkaDispatcher(localDispatcher)
		go func() {
			defer close(consumerDone)
			kafka.StartConsumer(consumerCtx, cfg.Kafka, processor)
		}()
	} else {
		log.Warnf("未配置 kafka.brokers，消息在进程内异步写入")
		close(consumerDone)
	}

	// 5. 初始化 Service (依赖注入)
	if cfg.JWT.Secret == "" {
		cfg.JWT.Secret = token.MustRandomSecret()
		log.Warnf("未配置 jwt.secret，使用随机密钥，重启后 token 失效")
	}
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	if cfg.LLM.APIKey == "" {
		log.Warnf("未配置 llm.api_key，对话代理运行在演示模式")
	}
	clock := service.NewClock(cfg.Study.Location())
	checkinService := service.NewCheckinService(studyRepo, dispatcher, archiver, clock)
	agentService := service.NewAgentService(llm.NewClient(cfg.LLM), cfg.LLM)
	companionService := service.NewCompanionService(checkinService, agentService, sessionCache, jwtManager, clock, cfg.Study)

	// 6. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 7. 注册路由
	handler.RegisterRoutes(r, companionService, jwtManager, sessionCache)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 排空后台写入，再停止消费者
	if err := dispatcher.Close(ctx); err != nil {
		log.Errorf("后台写入未能在超时前完成: %v", err)
	}
	stopConsumer()
	<-consumerDone
	log.Info("服务已优雅关闭")
}
