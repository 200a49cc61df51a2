package kgorm

import (
	"context"
	"testing"

	"github.com/cksportal/hubid/core/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRepository(t *testing.T) {
	repo := newTestRepository(t)
	store := NewAuditRepository(repo.DB())
	ctx := context.Background()

	require.NoError(t, audit.NewEvent(audit.EventAccountLinked).Subject("MGR-003").Actor("user_1").Success().Save(ctx, store))
	require.NoError(t, audit.NewEvent(audit.EventRecoveryRequested).Subject("CON-001").Failure().Save(ctx, store))

	events, err := store.Query(ctx, audit.Filter{SubjectID: "MGR-003"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventAccountLinked, events[0].Type)
	assert.Equal(t, "user_1", events[0].ActorID)

	events, err = store.Query(ctx, audit.Filter{Statuses: []string{"failure"}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "CON-001", events[0].SubjectID)
}
