// Package api exposes a small local HTTP API over the running agent:
// configured tasks and recent activity.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/QQHoney/tg-signer/internal/config"
	"github.com/QQHoney/tg-signer/internal/storage"
)

// Server holds the Gin engine and references to the task store and the
// activity database.
type Server struct {
	router *gin.Engine
	tasks  *config.TaskStore
	store  *storage.Storage
	logger *zap.Logger
}

// NewServer creates a new API server instance.
func NewServer(tasks *config.TaskStore, store *storage.Storage, logger *zap.Logger) *Server {
	router := gin.Default()

	server := &Server{
		router: router,
		tasks:  tasks,
		store:  store,
		logger: logger,
	}
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.health)
	s.router.GET("/tasks", s.listTasks)
	s.router.GET("/events", s.recentEvents)
	s.router.GET("/signs", s.recentSigns)
}

// Start runs the HTTP server on the given address, blocking.
func (s *Server) Start(addr string) error {
	s.logger.Info("API server listening", zap.String("addr", addr))
	return s.router.Run(addr)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listTasks(c *gin.Context) {
	signs, err := s.tasks.ListSigns()
	if err != nil {
		s.logger.Error("Failed to list sign tasks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	monitors, err := s.tasks.ListMonitors()
	if err != nil {
		s.logger.Error("Failed to list monitor tasks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signs": signs, "monitors": monitors})
}

func (s *Server) recentEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	events, err := s.store.RecentEvents(limit)
	if err != nil {
		s.logger.Error("Failed to load monitor events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) recentSigns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := s.store.RecentSignRecords(limit)
	if err != nil {
		s.logger.Error("Failed to load sign records", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}
