package pipelinemodule

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tunegrab/tunegrab/internal/config"
	"github.com/tunegrab/tunegrab/internal/database"
	"github.com/tunegrab/tunegrab/internal/errors"
	"github.com/tunegrab/tunegrab/internal/modules/downloadmodule"
	"github.com/tunegrab/tunegrab/internal/modules/modulemanager"
	"github.com/tunegrab/tunegrab/internal/modules/normalizermodule"
	"github.com/tunegrab/tunegrab/internal/modules/reachabilitymodule"
	"github.com/tunegrab/tunegrab/internal/modules/recognizermodule"
	"github.com/tunegrab/tunegrab/internal/modules/resolvermodule"
	"github.com/tunegrab/tunegrab/internal/types"
	"github.com/tunegrab/tunegrab/internal/utils"
)

// Auto-register the module when imported
func init() {
	Register()
}

const (
	ModuleID   = "system.pipeline"
	ModuleName = "Resolution Pipeline"
)

// Module wires the pipeline and its worker pool into the module system.
type Module struct {
	id   string
	name string
	core bool

	pipeline *Pipeline
	pool     *utils.WorkerPool
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

// Migrate creates the track cache table.
func (m *Module) Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&database.CachedTrack{})
}

// Init assembles the pipeline from the stage modules. Because module IDs
// load in sorted order, every stage module is initialized before this one.
func (m *Module) Init() error {
	normalizer := normalizermodule.GetNormalizer()
	recognizer := recognizermodule.GetRecognizer()
	resolver := resolvermodule.GetResolver()
	acquirer := downloadmodule.GetAcquirer()
	gate := reachabilitymodule.GetGate()

	if normalizer == nil || recognizer == nil || resolver == nil || acquirer == nil || gate == nil {
		return fmt.Errorf("pipeline stage modules are not initialized")
	}

	cfg := config.Get().Pipeline
	m.pipeline = NewPipeline(
		normalizer,
		recognizer,
		resolver,
		acquirer,
		gate,
		NewTrackCache(database.GetDB()),
		cfg.StepTimeout,
	)

	m.pool = utils.NewWorkerPool(cfg.Workers, cfg.QueueSize)
	m.pool.Start()
	return nil
}

// Shutdown drains the worker pool.
func (m *Module) Shutdown() error {
	if m.pool != nil {
		m.pool.Stop()
	}
	return nil
}

// RegisterRoutes exposes the pipeline's HTTP surface.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.POST("/resolve", m.handleResolve)
		api.GET("/status", m.handleStatus)
	}
}

// resolveRequest is the inbound descriptor plus the optional reply-to
// variant, where the media belongs to a different message than the
// triggering command.
type resolveRequest struct {
	ContentKind     string `json:"content_kind" binding:"required"`
	MimeType        string `json:"mime_type"`
	ByteSize        int64  `json:"byte_size" binding:"required"`
	SourceHandle    string `json:"source_handle" binding:"required"`
	DurationSeconds int    `json:"duration_seconds"`
	RequesterID     string `json:"requester_id"`
	ReplyToHandle   string `json:"reply_to_handle"`
}

func (m *Module) handleResolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.HandleValidationError(c, "invalid resolve request", "body")
		return
	}

	desc := types.MediaDescriptor{
		ContentKind:     types.ContentKind(req.ContentKind),
		MimeType:        req.MimeType,
		ByteSize:        req.ByteSize,
		SourceHandle:    req.SourceHandle,
		DurationSeconds: req.DurationSeconds,
		RequesterID:     req.RequesterID,
	}
	// The reply-to variant points at the replied-to message's media.
	if req.ReplyToHandle != "" {
		desc.SourceHandle = req.ReplyToHandle
	}

	type outcome struct {
		result *types.PipelineResult
		err    error
	}
	done := make(chan outcome, 1)

	submitted := m.pool.Submit(func() {
		result, err := m.pipeline.Run(c.Request.Context(), desc)
		done <- outcome{result: result, err: err}
	})
	if !submitted {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "pipeline queue is full, try again later",
			"code":  "QUEUE_FULL",
		})
		return
	}

	out := <-done
	if out.err != nil {
		var pe *errors.PipelineError
		if stderrors.As(out.err, &pe) {
			pe.ToGinResponse(c)
			return
		}
		errors.HandleInternalError(c, "pipeline execution failed", out.err)
		return
	}

	if out.result.Identity == nil {
		c.JSON(http.StatusOK, gin.H{
			"request_id": out.result.RequestID,
			"matched":    false,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"request_id": out.result.RequestID,
		"matched":    true,
		"identity":   out.result.Identity,
		"source":     out.result.Source,
		"artifact":   out.result.Artifact,
		"from_cache": out.result.FromCache,
	})
}

func (m *Module) handleStatus(c *gin.Context) {
	modules := modulemanager.ListModules()
	moduleInfo := make([]gin.H, 0, len(modules))
	for _, mod := range modules {
		moduleInfo = append(moduleInfo, gin.H{"id": mod.ID(), "name": mod.Name(), "core": mod.Core()})
	}

	status := gin.H{"modules": moduleInfo}
	if pool := resolvermodule.GetCredentialPool(); pool != nil {
		status["search_keys"] = pool.Stats()
	}
	c.JSON(http.StatusOK, status)
}

// GetPipeline returns the initialized pipeline.
func GetPipeline() *Pipeline {
	if instance == nil {
		return nil
	}
	return instance.pipeline
}
