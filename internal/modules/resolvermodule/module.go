// Package resolvermodule finds a playable source for a recognized track.
// It drives a quota-metered primary search API through a rotating
// credential pool and falls back to an extraction-based engine when the
// pool is exhausted.
package resolvermodule

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"gorm.io/gorm"

	"github.com/tunegrab/tunegrab/internal/config"
	"github.com/tunegrab/tunegrab/internal/modules/modulemanager"
	"github.com/tunegrab/tunegrab/internal/types"
)

// Auto-register the module when imported
func init() {
	Register()
}

const (
	ModuleID   = "source.resolver"
	ModuleName = "Source Resolver"
)

// Module wires the resolver into the module system.
type Module struct {
	id   string
	name string
	core bool

	resolver *Resolver
	pool     *CredentialPool
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

// Migrate is a no-op; the resolver owns no tables.
func (m *Module) Migrate(db *gorm.DB) error {
	return nil
}

// Init builds the credential pool, search clients, and the resolution cache.
func (m *Module) Init() error {
	cfg := config.Get().Search

	cache, err := lru.New[string, types.SourceReference](cfg.CacheSize)
	if err != nil {
		return fmt.Errorf("create resolution cache: %w", err)
	}

	m.pool = NewCredentialPool(cfg.APIKeys, cfg.DailyQuota, cfg.QuotaCooldown)
	m.resolver = NewResolver(
		m.pool,
		newSearchClient(cfg),
		newExtractorEngine(cfg.ExtractorPath, &DefaultCommandRunner{}),
		cache,
	)
	return nil
}

// GetResolver returns the initialized resolver service.
func GetResolver() *Resolver {
	if instance == nil {
		return nil
	}
	return instance.resolver
}

// GetCredentialPool returns the shared credential pool, for admin surfaces.
func GetCredentialPool() *CredentialPool {
	if instance == nil {
		return nil
	}
	return instance.pool
}
