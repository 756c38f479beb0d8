package discounts

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func setupDiscountsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Campaign{}, &models.Coupon{}, &models.CouponRedemption{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestRepositoryListActiveCampaigns(t *testing.T) {
	db := setupDiscountsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	at := time.Now().UTC()

	live := flatCampaign("live", 1000, 1)
	future := flatCampaign("future", 1000, 2)
	future.StartsAt = timePtr(at.Add(time.Hour))
	ended := flatCampaign("ended", 1000, 3)
	ended.EndsAt = timePtr(at.Add(-time.Hour))
	top := flatCampaign("top", 1000, 9)

	for _, c := range []models.Campaign{live, future, ended, top} {
		c := c
		require.NoError(t, db.Create(&c).Error)
	}
	off := flatCampaign("off", 1000, 4)
	require.NoError(t, db.Create(&off).Error)
	require.NoError(t, db.Model(&models.Campaign{}).Where("id = ?", off.ID).Update("active", false).Error)

	campaigns, err := repo.ListActiveCampaigns(ctx, at)
	require.NoError(t, err)
	require.Len(t, campaigns, 2)
	assert.Equal(t, top.ID, campaigns[0].ID)
	assert.Equal(t, live.ID, campaigns[1].ID)
	assert.True(t, campaigns[0].DiscountValue.Equal(decimal.NewFromInt(1000)))
}

func TestRepositoryCouponLifecycle(t *testing.T) {
	db := setupDiscountsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	coupon := &models.Coupon{
		Code:          "WELCOME10",
		DiscountType:  enums.DiscountTypePercentage,
		DiscountValue: decimal.NewFromInt(10),
		UsageLimit:    intPtr(1),
		Active:        true,
	}
	require.NoError(t, db.Create(coupon).Error)

	found, err := repo.FindCouponByCode(ctx, " welcome10 ")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, coupon.ID, found.ID)

	missing, err := repo.FindCouponByCode(ctx, "NOPE")
	require.NoError(t, err)
	assert.Nil(t, missing)

	customerID := uuid.New()
	require.NoError(t, repo.IncrementUsage(ctx, coupon.ID))
	require.NoError(t, repo.CreateRedemption(ctx, &models.CouponRedemption{
		CouponID:    coupon.ID,
		CustomerID:  customerID,
		OrderID:     uuid.New(),
		AmountPaise: 1000,
	}))
	require.ErrorIs(t, repo.IncrementUsage(ctx, coupon.ID), ErrCouponExhausted)

	count, err := repo.CountRedemptions(ctx, coupon.ID, customerID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestRepositoryReleaseRedemption(t *testing.T) {
	db := setupDiscountsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	coupon := &models.Coupon{
		Code:          "ONCE",
		DiscountType:  enums.DiscountTypeFlat,
		DiscountValue: decimal.NewFromInt(1000),
		UsageLimit:    intPtr(1),
		Active:        true,
	}
	require.NoError(t, db.Create(coupon).Error)

	orderID := uuid.New()
	require.NoError(t, repo.IncrementUsage(ctx, coupon.ID))
	require.NoError(t, repo.CreateRedemption(ctx, &models.CouponRedemption{
		CouponID:    coupon.ID,
		CustomerID:  uuid.New(),
		OrderID:     orderID,
		AmountPaise: 1000,
	}))

	released, err := repo.DeleteRedemptionByOrder(ctx, orderID)
	require.NoError(t, err)
	require.NotNil(t, released)
	assert.Equal(t, coupon.ID, released.CouponID)
	require.NoError(t, repo.DecrementUsage(ctx, coupon.ID))
	require.NoError(t, repo.DecrementUsage(ctx, coupon.ID))

	var reloaded models.Coupon
	require.NoError(t, db.First(&reloaded, "id = ?", coupon.ID).Error)
	assert.Zero(t, reloaded.UsedCount)

	again, err := repo.DeleteRedemptionByOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Nil(t, again)
	require.NoError(t, repo.IncrementUsage(ctx, coupon.ID))
}
