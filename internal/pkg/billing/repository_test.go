package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CreditFox/app/models"
)

func TestCreateSubscriptionIfNotExists(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	first := &models.Subscription{UserID: subscriberID, ProductID: standardProductID, Status: models.SubscriptionStatusActive, ActiveKey: models.ActiveKey(subscriberID, standardProductID)}
	created, err := repo.CreateSubscriptionIfNotExists(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotZero(t, first.ID)

	dup := &models.Subscription{UserID: subscriberID, ProductID: standardProductID, Status: models.SubscriptionStatusActive, CustomerReference: "other", ActiveKey: models.ActiveKey(subscriberID, standardProductID)}
	created, err = repo.CreateSubscriptionIfNotExists(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, dup.ID, "duplicate is replaced by the stored row")
	assert.Empty(t, dup.CustomerReference)

	_, err = repo.CreateSubscriptionIfNotExists(ctx, &models.Subscription{UserID: 1, ProductID: 1})
	assert.Error(t, err)
}

func TestCancelledSubscriptionFreesKey(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	sub := &models.Subscription{UserID: subscriberID, ProductID: standardProductID, Status: models.SubscriptionStatusActive, ActiveKey: models.ActiveKey(subscriberID, standardProductID)}
	_, err := repo.CreateSubscriptionIfNotExists(ctx, sub)
	require.NoError(t, err)

	require.NoError(t, db.Model(sub).Updates(map[string]interface{}{
		"status":     models.SubscriptionStatusCancelled,
		"active_key": nil,
	}).Error)

	_, err = repo.FindSubscriptionByKey(ctx, *models.ActiveKey(subscriberID, standardProductID))
	assert.ErrorIs(t, err, ErrNotFound)

	again := &models.Subscription{UserID: subscriberID, ProductID: standardProductID, Status: models.SubscriptionStatusActive, ActiveKey: models.ActiveKey(subscriberID, standardProductID)}
	created, err := repo.CreateSubscriptionIfNotExists(ctx, again)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, sub.ID, again.ID)
}

func TestWebhookEventLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	ev := func() *models.BillingWebhookEvent {
		return &models.BillingWebhookEvent{
			Provider:        models.BillingProviderStripe,
			EventType:       string(EventCheckoutCompleted),
			ResourceID:      "cs_1",
			ProviderEventID: "evt_1",
			PayloadJSON:     `{}`,
		}
	}

	created, stored, err := repo.CreateWebhookEventIfNotExists(ctx, ev())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Nil(t, stored.ProcessedAt)

	require.NoError(t, repo.MarkWebhookFailed(ctx, stored.ID, "db timeout"))
	created, again, err := repo.CreateWebhookEventIfNotExists(ctx, ev())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, stored.ID, again.ID)
	assert.Nil(t, again.ProcessedAt)
	assert.Equal(t, "db timeout", again.ProcessingError)

	require.NoError(t, repo.MarkWebhookProcessed(ctx, stored.ID, ""))
	require.NoError(t, repo.MarkWebhookFailed(ctx, stored.ID, "late failure"))
	_, final, err := repo.CreateWebhookEventIfNotExists(ctx, ev())
	require.NoError(t, err)
	assert.NotNil(t, final.ProcessedAt)
	assert.Empty(t, final.ProcessingError, "processed events keep their final state")
}

func TestTransactionRollsBack(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.Transaction(ctx, func(tx Repository) error {
		_, err := tx.CreateSubscriptionIfNotExists(ctx, &models.Subscription{
			UserID: subscriberID, ProductID: standardProductID,
			Status: models.SubscriptionStatusActive, ActiveKey: models.ActiveKey(subscriberID, standardProductID),
		})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, countRows(t, db).Subscriptions)
}

func TestFindersTranslateNotFound(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	_, err := repo.FindProduct(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.FindPaymentByProcessorID(ctx, "pi_404")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.FindActiveScheduledPayment(ctx, 1, 2)
	assert.ErrorIs(t, err, ErrNotFound)

	business, err := repo.FindBusiness(ctx, businessID)
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", business.Owner.Email)

	product, err := repo.FindProduct(ctx, payItOffProductID)
	require.NoError(t, err)
	assert.True(t, product.Price.Valid)
	assert.Equal(t, "1200", product.Price.Decimal.String())

	product, err = repo.FindProduct(ctx, balanceBuilderProductID)
	require.NoError(t, err)
	assert.False(t, product.Price.Valid)
}

func TestCreatePaymentIfNotExists(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	p := &models.Payment{ProcessorPaymentID: "pi_1", UserID: subscriberID, BusinessID: businessID, ProductID: oneTimeProductID, Amount: 4900, Status: models.PaymentStatusSucceeded}
	created, err := repo.CreatePaymentIfNotExists(ctx, p)
	require.NoError(t, err)
	assert.True(t, created)

	dup := &models.Payment{ProcessorPaymentID: "pi_1", Amount: 1}
	created, err = repo.CreatePaymentIfNotExists(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(4900), dup.Amount)

	found, err := repo.FindPaymentByProcessorID(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)
}
