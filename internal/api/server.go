package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"inspector/internal/analyzer"
	"inspector/internal/config"
	ierrors "inspector/internal/errors"
	"inspector/internal/validation"
	"inspector/pkg/models"
)

// Server API服务器
type Server struct {
	analyzer  *analyzer.Analyzer
	config    *config.Config
	logger    *logrus.Logger
	stats     *ierrors.ErrorStats
	server    *http.Server
	startTime time.Time
	port      int
}

// NewServer 创建新的API服务器
func NewServer(cfg *config.Config, a *analyzer.Analyzer, logger *logrus.Logger, port int) *Server {
	return &Server{
		analyzer:  a,
		config:    cfg,
		logger:    logger,
		stats:     ierrors.NewErrorStats(),
		startTime: time.Now(),
		port:      port,
	}
}

// Start 启动API服务器
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	s.setupRoutes(router)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: router,
	}

	s.logger.Infof("API服务器启动在端口 %d", s.port)
	return s.server.ListenAndServe()
}

// Stop 停止API服务器
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/health", s.healthCheck)

	api := router.Group("/api/v1")
	{
		// 代理解析
		api.GET("/resolve/:address", s.resolveProxy)

		// 状态快照
		api.GET("/snapshot/:address", s.captureSnapshot)

		// 完整检查
		api.GET("/analyze/:address", s.analyzeContract)

		// 跨区块对比
		api.GET("/compare/:address", s.compareBlocks)

		// 服务状态
		api.GET("/status", s.getStatus)
	}
}

// healthCheck 健康检查
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "inspector-api",
	})
}

// resolveProxy 解析合约的代理结构
func (s *Server) resolveProxy(c *gin.Context) {
	report, ok := s.runAnalysis(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, report.Resolution)
}

// captureSnapshot 捕获合约状态快照
func (s *Server) captureSnapshot(c *gin.Context) {
	report, ok := s.runAnalysis(c)
	if !ok {
		return
	}

	if report.Snapshot == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "无可用ABI，无法捕获快照",
			"address": report.Address,
		})
		return
	}

	c.JSON(http.StatusOK, report.Snapshot)
}

// analyzeContract 执行完整检查
func (s *Server) analyzeContract(c *gin.Context) {
	report, ok := s.runAnalysis(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, report)
}

// runAnalysis 解析请求参数并执行检查
func (s *Server) runAnalysis(c *gin.Context) (*models.InspectionReport, bool) {
	address, err := validation.ParseAddress(c.Param("address"))
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}

	ref, err := validation.ParseBlockRef(c.DefaultQuery("block", "latest"))
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}

	result, err := s.analyzer.Analyze(c.Request.Context(), address, ref)
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}

	return result, true
}

// compareBlocks 对比同一合约在两个区块的状态
func (s *Server) compareBlocks(c *gin.Context) {
	address, err := validation.ParseAddress(c.Param("address"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	before, err := validation.ParseBlockRef(c.Query("before"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	after, err := validation.ParseBlockRef(c.DefaultQuery("after", "latest"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	comparison, err := s.analyzer.Compare(c.Request.Context(), address, before, after)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, comparison)
}

// getStatus 查询服务状态
func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"error_stats":    s.stats.Snapshot(),
	})
}

// writeError 把检查错误映射为HTTP响应
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	response := gin.H{"error": err.Error()}

	var inspErr *ierrors.InspectorError
	if errors.As(err, &inspErr) {
		s.stats.RecordError(inspErr)
		response["code"] = inspErr.Code

		switch inspErr.Type {
		case ierrors.ErrorTypeInput, ierrors.ErrorTypeValidation:
			status = http.StatusBadRequest
		case ierrors.ErrorTypeNetwork, ierrors.ErrorTypeConnection, ierrors.ErrorTypeTimeout:
			status = http.StatusBadGateway
		case ierrors.ErrorTypeRateLimit:
			status = http.StatusTooManyRequests
		}
	}

	c.JSON(status, response)
}
