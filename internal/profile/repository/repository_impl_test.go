package repository

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/trailpay/internal/profile/domain"
	"github.com/smallbiznis/trailpay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestReplaceAccountStatusOverwritesAllColumns(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	m := testutil.SeedMarketplace(t, db)
	repo := Provide()
	now := time.Now().UTC()

	ok, err := repo.ReplaceAccountStatus(ctx, db, m.AccountID, domain.AccountStatus{
		KYCStatus:    domain.KYCIncomplete,
		BankLast4:    testutil.Ptr("4242"),
		Requirements: datatypes.JSON(`{"currently_due":["individual.dob"]}`),
		SyncedAt:     now,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ReplaceAccountStatus(ctx, db, m.AccountID, domain.AccountStatus{
		KYCStatus:    domain.KYCVerified,
		Requirements: datatypes.JSON(`{}`),
		SyncedAt:     now,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	guide, err := repo.FindGuideByAccount(ctx, db, m.AccountID)
	require.NoError(t, err)
	require.NotNil(t, guide)
	assert.Equal(t, m.GuideID, guide.ProfileID)
	assert.Equal(t, domain.KYCVerified, guide.KYCStatus)
	assert.Nil(t, guide.BankLast4)
	assert.JSONEq(t, `{}`, string(guide.Requirements))

	ok, err = repo.ReplaceAccountStatus(ctx, db, "acct_unknown", domain.AccountStatus{KYCStatus: domain.KYCPending, SyncedAt: now})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindProfile(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	m := testutil.SeedMarketplace(t, db)

	p, err := Provide().FindByID(ctx, db, m.AdminID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, domain.RoleAdmin, p.Role)
}
