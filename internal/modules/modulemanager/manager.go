// Package modulemanager provides the module registry and lifecycle.
package modulemanager

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tunegrab/tunegrab/internal/logger"
)

// Module defines the interface that all modules must implement.
type Module interface {
	ID() string                // Unique identifier for the module
	Name() string              // Display name for the module
	Core() bool                // Whether this is a core module (cannot be disabled)
	Migrate(db *gorm.DB) error // Run database migrations
	Init() error               // Initialize the module
}

// RouteRegistrar is an optional interface for modules that need to register routes.
type RouteRegistrar interface {
	RegisterRoutes(router *gin.Engine)
}

// Shutdowner is an optional interface for modules that hold resources.
type Shutdowner interface {
	Shutdown() error
}

// ModuleRegistry manages module registration and initialization.
type ModuleRegistry struct {
	modules     map[string]Module
	mu          sync.RWMutex
	initialized bool
}

// Registry is the global module registry.
var Registry = &ModuleRegistry{
	modules: make(map[string]Module),
}

// Register adds a module to the global registry.
func Register(m Module) {
	Registry.Register(m)
}

// Register adds a module to the registry.
func (r *ModuleRegistry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		logger.Warn("module %s (%s) registered after initialization", m.Name(), m.ID())
	}

	r.modules[m.ID()] = m
	logger.Info("module registered: %s (%s)", m.Name(), m.ID())
}

// LoadAll migrates and initializes all registered modules.
func LoadAll(db *gorm.DB) error {
	return Registry.LoadAll(db)
}

// LoadAll migrates and initializes all registered modules in ID order so
// startup is deterministic.
func (r *ModuleRegistry) LoadAll(db *gorm.DB) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		logger.Warn("module system already initialized")
		return nil
	}

	for _, m := range r.ordered() {
		if err := m.Migrate(db); err != nil {
			return fmt.Errorf("migrate module %s: %w", m.ID(), err)
		}
		if err := m.Init(); err != nil {
			if m.Core() {
				return fmt.Errorf("init core module %s: %w", m.ID(), err)
			}
			logger.Warn("module %s failed to initialize: %v", m.ID(), err)
			continue
		}
		logger.Info("module initialized: %s", m.ID())
	}

	r.initialized = true
	return nil
}

// RegisterRoutes lets every module that serves HTTP attach its routes.
func RegisterRoutes(router *gin.Engine) {
	Registry.RegisterRoutes(router)
}

// RegisterRoutes attaches routes for all modules implementing RouteRegistrar.
func (r *ModuleRegistry) RegisterRoutes(router *gin.Engine) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.ordered() {
		if rr, ok := m.(RouteRegistrar); ok {
			rr.RegisterRoutes(router)
			logger.Debug("routes registered for module: %s", m.ID())
		}
	}
}

// Shutdown stops modules in reverse ID order.
func Shutdown() {
	Registry.Shutdown()
}

// Shutdown stops all modules implementing Shutdowner.
func (r *ModuleRegistry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	mods := r.ordered()
	for i := len(mods) - 1; i >= 0; i-- {
		if s, ok := mods[i].(Shutdowner); ok {
			if err := s.Shutdown(); err != nil {
				logger.Warn("module %s shutdown error: %v", mods[i].ID(), err)
			}
		}
	}
	r.initialized = false
}

// GetModule returns a registered module by ID.
func GetModule(id string) (Module, bool) {
	Registry.mu.RLock()
	defer Registry.mu.RUnlock()

	m, ok := Registry.modules[id]
	return m, ok
}

// ListModules returns all registered modules in ID order.
func ListModules() []Module {
	Registry.mu.RLock()
	defer Registry.mu.RUnlock()

	return Registry.ordered()
}

// ordered returns modules sorted by ID. Callers must hold the lock.
func (r *ModuleRegistry) ordered() []Module {
	ids := make([]string, 0, len(r.modules))
	for id := range r.modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Module, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.modules[id])
	}
	return out
}
