// Package normalizermodule prepares inbound media for fingerprinting. It
// classifies the content kind, enforces the byte-size ceiling, and
// extracts a bounded, resampled audio clip through ffmpeg.
package normalizermodule

import (
	"gorm.io/gorm"

	"github.com/tunegrab/tunegrab/internal/config"
	"github.com/tunegrab/tunegrab/internal/modules/modulemanager"
)

// Auto-register the module when imported
func init() {
	Register()
}

const (
	ModuleID   = "media.normalizer"
	ModuleName = "Media Normalizer"
)

// Module wires the normalizer into the module system.
type Module struct {
	id   string
	name string
	core bool

	normalizer *Normalizer
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

// Migrate is a no-op; the normalizer owns no tables.
func (m *Module) Migrate(db *gorm.DB) error {
	return nil
}

// Init builds the normalizer from configuration.
func (m *Module) Init() error {
	m.normalizer = NewNormalizer(config.Get().Media)
	return nil
}

// GetNormalizer returns the initialized normalizer service.
func GetNormalizer() *Normalizer {
	if instance == nil {
		return nil
	}
	return instance.normalizer
}
