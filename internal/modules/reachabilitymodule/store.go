package reachabilitymodule

import (
	stderrors "errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tunegrab/tunegrab/internal/database"
	"github.com/tunegrab/tunegrab/internal/errors"
	"github.com/tunegrab/tunegrab/internal/events"
	"github.com/tunegrab/tunegrab/internal/logger"
	"github.com/tunegrab/tunegrab/internal/types"
)

// Store persists reachability records. The gate only reads and issues
// update requests; the schema belongs to the shared database layer.
type Store struct {
	db *gorm.DB
}

// NewStore creates a store over the given database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Get returns the requester's stored state. Requesters without a record
// have never been blocked and are treated as active.
func (s *Store) Get(requesterID string) (types.ReachabilityState, error) {
	var record database.ReachabilityRecord
	err := s.db.Where("requester_id = ?", requesterID).Take(&record).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return types.ReachabilityActive, nil
	}
	if err != nil {
		return types.ReachabilityActive, err
	}
	return types.ReachabilityState(record.State), nil
}

// Set upserts the requester's state.
func (s *Store) Set(requesterID string, state types.ReachabilityState, lastEvent string) error {
	record := database.ReachabilityRecord{
		RequesterID: requesterID,
		State:       string(state),
		LastEvent:   lastEvent,
		ChangedAt:   time.Now(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "requester_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "last_event", "changed_at", "updated_at"}),
	}).Create(&record).Error
}

// ListBlocked returns every requester currently marked blocked.
func (s *Store) ListBlocked() ([]database.ReachabilityRecord, error) {
	var records []database.ReachabilityRecord
	err := s.db.Where("state = ?", string(types.ReachabilityBlocked)).
		Order("changed_at DESC").
		Find(&records).Error
	return records, err
}

// Gate decides whether a requester can receive deliveries and applies
// membership-change events to the store.
type Gate struct {
	store *Store
}

// NewGate creates a gate over the given store.
func NewGate(store *Store) *Gate {
	return &Gate{store: store}
}

// IsDeliverable reports whether the requester currently accepts direct
// delivery. Read failures default to deliverable; a storage hiccup must
// not silently drop sends.
func (g *Gate) IsDeliverable(requesterID string) bool {
	state, err := g.store.Get(requesterID)
	if err != nil {
		logger.Warn("reachability read failed, assuming deliverable", []logger.Field{
			logger.String("requester_id", requesterID),
			logger.Err(err),
		})
		return true
	}
	return state != types.ReachabilityBlocked
}

// HandleMembershipEvent evaluates the status change and persists any
// resulting transition. The write is best-effort: a failed bookkeeping
// write is logged and never aborts the delivery already in flight.
func (g *Gate) HandleMembershipEvent(requesterID string, oldStatus, newStatus types.MembershipStatus) Transition {
	transition := EvaluateTransition(oldStatus, newStatus)
	if transition == TransitionNone {
		return transition
	}

	state := types.ReachabilityActive
	if transition == TransitionToBlocked {
		state = types.ReachabilityBlocked
	}

	lastEvent := string(oldStatus) + "->" + string(newStatus)
	if err := g.store.Set(requesterID, state, lastEvent); err != nil {
		werr := errors.NewReachabilityWriteFailed(err)
		logger.Error("reachability transition not persisted", []logger.Field{
			logger.String("requester_id", requesterID),
			logger.String("transition", transition.String()),
			logger.Err(werr),
		})
		return transition
	}

	if bus := events.GetGlobalEventBus(); bus != nil {
		bus.PublishAsync(events.Event{
			Type:   events.EventReachabilityChanged,
			Source: ModuleID,
			Title:  requesterID,
			Data: map[string]interface{}{
				"state":      string(state),
				"last_event": lastEvent,
			},
		})
	}
	return transition
}
