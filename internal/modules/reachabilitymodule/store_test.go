package reachabilitymodule

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tunegrab/tunegrab/internal/types"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)
	return db, mock
}

func TestStoreGetUnknownRequesterIsActive(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db)

	mock.ExpectQuery(`SELECT (.+) FROM "reachability_records"`).
		WithArgs("requester-404", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "requester_id", "state"}))

	state, err := store.Get("requester-404")
	require.NoError(t, err)
	assert.Equal(t, types.ReachabilityActive, state, "requesters without a record were never blocked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetBlockedRequester(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db)

	rows := sqlmock.NewRows([]string{"id", "requester_id", "state", "last_event", "changed_at"}).
		AddRow(1, "requester-7", "blocked", "member->kicked", time.Now())
	mock.ExpectQuery(`SELECT (.+) FROM "reachability_records"`).
		WithArgs("requester-7", 1).
		WillReturnRows(rows)

	state, err := store.Get("requester-7")
	require.NoError(t, err)
	assert.Equal(t, types.ReachabilityBlocked, state)
}

func TestGateIsDeliverableDefaultsOnReadError(t *testing.T) {
	db, mock := newMockDB(t)
	gate := NewGate(NewStore(db))

	mock.ExpectQuery(`SELECT (.+) FROM "reachability_records"`).
		WillReturnError(assert.AnError)

	assert.True(t, gate.IsDeliverable("requester-1"), "a storage hiccup must not drop deliveries")
}

func TestGateHandleMembershipEventPersistsBlock(t *testing.T) {
	db, mock := newMockDB(t)
	gate := NewGate(NewStore(db))

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "reachability_records"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	transition := gate.HandleMembershipEvent("requester-3", types.StatusMember, types.StatusKicked)
	assert.Equal(t, TransitionToBlocked, transition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGateWriteFailureDoesNotAbortDelivery(t *testing.T) {
	db, mock := newMockDB(t)
	gate := NewGate(NewStore(db))

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "reachability_records"`).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	// The transition is still reported; only the bookkeeping write failed.
	transition := gate.HandleMembershipEvent("requester-9", types.StatusKicked, types.StatusMember)
	assert.Equal(t, TransitionToActive, transition)
}

func TestGateIgnoredTransitionTouchesNothing(t *testing.T) {
	db, mock := newMockDB(t)
	gate := NewGate(NewStore(db))

	transition := gate.HandleMembershipEvent("requester-5", types.StatusLeft, types.StatusKicked)
	assert.Equal(t, TransitionNone, transition)
	assert.NoError(t, mock.ExpectationsWereMet(), "no-op transitions must not hit the store")
}
