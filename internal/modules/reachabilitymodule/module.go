// Package reachabilitymodule gates delivery on each requester's
// reachability state and keeps that state in step with membership-change
// events from the transport.
package reachabilitymodule

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tunegrab/tunegrab/internal/database"
	"github.com/tunegrab/tunegrab/internal/errors"
	"github.com/tunegrab/tunegrab/internal/modules/modulemanager"
	"github.com/tunegrab/tunegrab/internal/types"
)

// Auto-register the module when imported
func init() {
	Register()
}

const (
	ModuleID   = "delivery.reachability"
	ModuleName = "Reachability Gate"
)

// Module wires the reachability gate into the module system.
type Module struct {
	id   string
	name string
	core bool

	gate *Gate
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

// Migrate creates the reachability table.
func (m *Module) Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&database.ReachabilityRecord{})
}

// Init builds the gate over the shared database handle.
func (m *Module) Init() error {
	m.gate = NewGate(NewStore(database.GetDB()))
	return nil
}

// RegisterRoutes exposes the gate's admin surface.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/reachability")
	{
		api.GET("/blocked", m.listBlocked)
		api.GET("/:requesterId", m.getState)
		api.POST("/events", m.postEvent)
	}
}

func (m *Module) listBlocked(c *gin.Context) {
	records, err := m.gate.store.ListBlocked()
	if err != nil {
		errors.HandleInternalError(c, "failed to list blocked requesters", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocked": records, "count": len(records)})
}

func (m *Module) getState(c *gin.Context) {
	requesterID := c.Param("requesterId")
	c.JSON(http.StatusOK, gin.H{
		"requester_id": requesterID,
		"deliverable":  m.gate.IsDeliverable(requesterID),
	})
}

// postEvent ingests a membership-change event from the transport layer.
func (m *Module) postEvent(c *gin.Context) {
	var req struct {
		RequesterID string `json:"requester_id" binding:"required"`
		OldStatus   string `json:"old_status" binding:"required"`
		NewStatus   string `json:"new_status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.HandleValidationError(c, "invalid membership event", "body")
		return
	}

	transition := m.gate.HandleMembershipEvent(
		req.RequesterID,
		types.MembershipStatus(req.OldStatus),
		types.MembershipStatus(req.NewStatus),
	)
	c.JSON(http.StatusOK, gin.H{"transition": transition.String()})
}

// GetGate returns the initialized reachability gate.
func GetGate() *Gate {
	if instance == nil {
		return nil
	}
	return instance.gate
}
