package calendarsync

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/practivahq/practiva-backend/pkg/db/models"
	"github.com/practivahq/practiva-backend/pkg/enums"
)

func setupCalendarTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS calendar_accounts (
  id TEXT PRIMARY KEY,
  practitioner_id TEXT NOT NULL,
  provider TEXT NOT NULL,
  refresh_token TEXT NOT NULL,
  access_token TEXT,
  expires_at DATETIME,
  reauth_required BOOLEAN NOT NULL DEFAULT FALSE,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, conn.Exec(schema).Error)
	return conn
}

func seedCalendarAccount(t *testing.T, conn *gorm.DB, expiresAt *time.Time, reauthRequired bool) *models.CalendarAccount {
	t.Helper()
	account := &models.CalendarAccount{
		ID:             uuid.New(),
		PractitionerID: uuid.New(),
		Provider:       enums.CalendarProviderGoogle,
		RefreshToken:   "rt_" + uuid.NewString()[:8],
		AccessToken:    "at_stale",
		ExpiresAt:      expiresAt,
		ReauthRequired: reauthRequired,
	}
	require.NoError(t, conn.Create(account).Error)
	return account
}

func TestRepositoryListExpiringAccounts(t *testing.T) {
	conn := setupCalendarTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	soon := now.Add(30 * time.Minute)
	later := now.Add(48 * time.Hour)

	expiring := seedCalendarAccount(t, conn, &soon, false)
	neverExpires := seedCalendarAccount(t, conn, nil, false)
	seedCalendarAccount(t, conn, &later, false)
	seedCalendarAccount(t, conn, &soon, true)

	accounts, err := repo.ListExpiringAccounts(ctx, now.Add(time.Hour), 100)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	ids := map[uuid.UUID]bool{}
	for _, account := range accounts {
		ids[account.ID] = true
	}
	assert.True(t, ids[expiring.ID])
	assert.True(t, ids[neverExpires.ID], "accounts without an expiry should be swept too")
}

func TestRepositoryUpdateTokens(t *testing.T) {
	conn := setupCalendarTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	stale := time.Now().UTC().Add(-time.Minute)
	account := seedCalendarAccount(t, conn, &stale, false)

	fresh := time.Now().UTC().Add(time.Hour)
	require.NoError(t, repo.UpdateTokens(ctx, account.ID, "at_new", "rt_new", fresh))

	var reloaded models.CalendarAccount
	require.NoError(t, conn.First(&reloaded, "id = ?", account.ID).Error)
	assert.Equal(t, "at_new", reloaded.AccessToken)
	assert.Equal(t, "rt_new", reloaded.RefreshToken)
	require.NotNil(t, reloaded.ExpiresAt)
	assert.WithinDuration(t, fresh, *reloaded.ExpiresAt, time.Second)
}

func TestRepositoryMarkReauthRequiredRemovesFromSweep(t *testing.T) {
	conn := setupCalendarTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	stale := time.Now().UTC().Add(-time.Minute)
	account := seedCalendarAccount(t, conn, &stale, false)

	require.NoError(t, repo.MarkReauthRequired(ctx, account.ID))

	accounts, err := repo.ListExpiringAccounts(ctx, time.Now().UTC().Add(time.Hour), 100)
	require.NoError(t, err)
	assert.Empty(t, accounts)
}
