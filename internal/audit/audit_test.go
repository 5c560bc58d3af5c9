package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licensehub/internal/database"
	"github.com/licensehub/pkg/models"
)

func TestEntryCarriesActor(t *testing.T) {
	uid := int64(7)
	e := Entry(models.Actor{UserID: &uid, IP: "10.0.0.1"}, ActionLicensePaused, "serial=SP-2026-AAAA-BBBB-CCCC")

	assert.Equal(t, &uid, e.UserID)
	assert.Equal(t, "10.0.0.1", e.IPAddress)
	assert.Equal(t, ActionLicensePaused, e.Action)
	assert.Equal(t, "serial=SP-2026-AAAA-BBBB-CCCC", e.Details)
}

func TestClearLogsItself(t *testing.T) {
	ctx := context.Background()
	db, ok, err := database.OpenForTest(ctx)
	if !ok {
		t.Skip("DATABASE_URL not set (skipping DB-backed audit test)")
	}
	require.NoError(t, err)
	defer db.Close()

	store := NewStorage(db)
	require.NoError(t, Insert(ctx, db, Entry(models.Actor{IP: "127.0.0.1"}, ActionPlanCreated, "name=Standard")))

	_, err = store.Clear(ctx, models.Actor{IP: "127.0.0.1"})
	require.NoError(t, err)

	logs, total, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, ActionLogsCleared, logs[0].Action)
}
