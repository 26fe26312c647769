// Package eventsmodule exposes the event bus over HTTP: a recent-events
// endpoint for polling and a websocket stream for live consumers.
package eventsmodule

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tunegrab/tunegrab/internal/errors"
	"github.com/tunegrab/tunegrab/internal/events"
	"github.com/tunegrab/tunegrab/internal/modules/modulemanager"
)

// Auto-register the module when imported
func init() {
	Register()
}

const (
	ModuleID   = "system.events"
	ModuleName = "Event Management"
)

// Module handles the event distribution surface.
type Module struct {
	id   string
	name string
	core bool

	eventBus events.EventBus
	streamer *Streamer
}

var instance *Module

// Register registers this module with the module system.
func Register() {
	instance = &Module{
		id:   ModuleID,
		name: ModuleName,
		core: true,
	}
	modulemanager.Register(instance)
}

func (m *Module) ID() string   { return m.id }
func (m *Module) Name() string { return m.name }
func (m *Module) Core() bool   { return m.core }

// Migrate is a no-op; events are kept in memory.
func (m *Module) Migrate(db *gorm.DB) error {
	return nil
}

// Init attaches to the global event bus.
func (m *Module) Init() error {
	m.eventBus = events.GetGlobalEventBus()
	if m.eventBus == nil {
		return fmt.Errorf("global event bus not initialized")
	}
	m.streamer = NewStreamer(m.eventBus)
	return nil
}

// RegisterRoutes registers the event API routes.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/events")
	{
		api.GET("/recent", m.recentEvents)
		api.GET("/stream", m.streamer.Handle)
		api.GET("/health", m.health)
	}
}

func (m *Module) recentEvents(c *gin.Context) {
	recent := m.eventBus.RecentEvents()
	c.JSON(http.StatusOK, gin.H{"events": recent, "count": len(recent)})
}

func (m *Module) health(c *gin.Context) {
	if err := m.eventBus.Health(); err != nil {
		errors.HandleInternalError(c, "event bus unhealthy", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
