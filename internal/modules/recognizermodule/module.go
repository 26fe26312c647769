// Package recognizermodule submits normalized clips to the external
// fingerprint recognition service and returns track identities.
package recognizermodule

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
	ModuleID   = "media.recognizer"
	ModuleName = "Fingerprint Recognizer"
)

// Module wires the recognizer into the module system.
type Module struct {
	id   string
	name string
	core bool

	recognizer *Recognizer
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

// Migrate is a no-op; the recognizer owns no tables.
func (m *Module) Migrate(db *gorm.DB) error {
	return nil
}

// Init builds the recognizer client from configuration.
func (m *Module) Init() error {
	m.recognizer = NewRecognizer(config.Get().Recognition)
	return nil
}

// GetRecognizer returns the initialized recognizer service.
func GetRecognizer() *Recognizer {
	if instance == nil {
		return nil
	}
	return instance.recognizer
}
