package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/internal/pkg/database"
	"github.com/ManuelReschke/CreditFox/internal/pkg/notify"
)

const testSecret = "whsec_test_secret"

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// Fixture ids.
const (
	ownerID      uint = 1
	subscriberID uint = 2
	businessID   uint = 1

	standardProductID       uint = 10
	balanceBuilderProductID uint = 11
	payItOffProductID       uint = 12
	oneTimeProductID        uint = 13
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	seedCatalog(t, db)
	return db
}

func seedCatalog(t *testing.T, db *gorm.DB) {
	t.Helper()
	price := func(s string) decimal.NullDecimal { return decimal.NewNullDecimal(decimal.RequireFromString(s)) }

	require.NoError(t, db.Create(&models.User{ID: ownerID, Name: "Olivia Owner", Email: "owner@example.com"}).Error)
	require.NoError(t, db.Create(&models.User{ID: subscriberID, Name: "Sam Subscriber", Email: "sam@example.com"}).Error)
	require.NoError(t, db.Create(&models.Business{ID: businessID, OwnerUserID: ownerID, Name: "Corner Gym"}).Error)

	products := []models.Product{
		{ID: standardProductID, BusinessID: businessID, Name: "Membership", ProductType: models.ProductTypeStandard, Price: price("19.99"), Currency: "gbp"},
		{ID: balanceBuilderProductID, BusinessID: businessID, Name: "Credit Builder", ProductType: models.ProductTypeBalanceBuilder, Currency: "gbp"},
		{ID: payItOffProductID, BusinessID: businessID, Name: "Treadmill", ProductType: models.ProductTypePayItOff, Price: price("1200.00"), Currency: "gbp"},
		{ID: oneTimeProductID, BusinessID: businessID, Name: "Day Pass", ProductType: models.ProductTypeOneTime, Price: price("49.00"), Currency: "gbp"},
	}
	require.NoError(t, db.Create(&products).Error)
}

type rowCounts struct {
	Subscriptions     int64
	ScheduledPayments int64
	Ledgers           int64
	Payments          int64
	Events            int64
}

func countRows(t *testing.T, db *gorm.DB) rowCounts {
	t.Helper()
	var c rowCounts
	require.NoError(t, db.Model(&models.Subscription{}).Count(&c.Subscriptions).Error)
	require.NoError(t, db.Model(&models.ScheduledPayment{}).Count(&c.ScheduledPayments).Error)
	require.NoError(t, db.Model(&models.UserCredit{}).Count(&c.Ledgers).Error)
	require.NoError(t, db.Model(&models.Payment{}).Count(&c.Payments).Error)
	require.NoError(t, db.Model(&models.BillingWebhookEvent{}).Count(&c.Events).Error)
	return c
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, n notify.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return f.err
}

func (f *fakeNotifier) Sent() []notify.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.Notification(nil), f.sent...)
}

type fakeProcessor struct {
	mu           sync.Mutex
	setupIntents map[string]string
	getErr       error
	attachErr    error
	createErr    error
	attached     [][2]string
	sessions     []CheckoutSessionInput
}

func (f *fakeProcessor) GetSetupIntent(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", f.getErr
	}
	return f.setupIntents[id], nil
}

func (f *fakeProcessor) AttachDefaultPaymentMethod(_ context.Context, customerID, paymentMethodID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached = append(f.attached, [2]string{customerID, paymentMethodID})
	return f.attachErr
}

func (f *fakeProcessor) CreateCheckoutSession(_ context.Context, in CheckoutSessionInput) (*CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.sessions = append(f.sessions, in)
	id := fmt.Sprintf("cs_test_%d", len(f.sessions))
	return &CheckoutSession{ID: id, URL: "https://checkout.example/" + id}, nil
}

type harness struct {
	db         *gorm.DB
	repo       Repository
	notifier   *fakeNotifier
	processor  *fakeProcessor
	reconciler *Reconciler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := newTestDB(t)
	h := &harness{
		db:        db,
		repo:      NewRepository(db),
		notifier:  &fakeNotifier{},
		processor: &fakeProcessor{setupIntents: map[string]string{}},
	}
	h.reconciler = h.newReconciler(h.repo)
	return h
}

func (h *harness) newReconciler(repo Repository) *Reconciler {
	r := NewReconciler(repo, h.processor, h.notifier, ReconcilerConfig{
		WebhookSecret:      testSecret,
		SignatureTolerance: 5 * time.Minute,
		WriteTimeout:       5 * time.Second,
		LockTTL:            time.Second,
	})
	r.now = func() time.Time { return testNow }
	return r
}

// deliver signs payload and hands it to the reconciler.
func (h *harness) deliver(t *testing.T, payload []byte) (*Result, error) {
	t.Helper()
	return h.reconciler.HandleWebhook(context.Background(), payload, SignWebhookPayload(payload, testSecret, testNow))
}

type sessionFixture struct {
	EventID       string
	EventType     string
	SessionID     string
	Customer      string
	SetupIntent   string
	PaymentIntent string
	AmountTotal   int64
	Metadata      map[string]string
}

func checkoutEvent(t *testing.T, f sessionFixture) []byte {
	t.Helper()
	if f.EventType == "" {
		f.EventType = "checkout.session.completed"
	}
	obj := map[string]any{
		"id":       f.SessionID,
		"object":   "checkout.session",
		"metadata": f.Metadata,
	}
	if f.Customer != "" {
		obj["customer"] = f.Customer
	}
	if f.SetupIntent != "" {
		obj["setup_intent"] = f.SetupIntent
	}
	if f.PaymentIntent != "" {
		obj["payment_intent"] = f.PaymentIntent
	}
	if f.AmountTotal > 0 {
		obj["amount_total"] = f.AmountTotal
	}
	return mustJSON(t, map[string]any{
		"id":   f.EventID,
		"type": f.EventType,
		"data": map[string]any{"object": obj},
	})
}

func paymentFailedEvent(t *testing.T, eventID, paymentIntentID string) []byte {
	t.Helper()
	return mustJSON(t, map[string]any{
		"id":   eventID,
		"type": "payment_intent.payment_failed",
		"data": map[string]any{"object": map[string]any{"id": paymentIntentID, "object": "payment_intent"}},
	})
}

func checkoutMeta(productID uint, extra map[string]string) map[string]string {
	md := map[string]string{
		MetaProductID:         formatID(productID),
		MetaUserID:            formatID(subscriberID),
		MetaCustomerReference: "cus_sam",
	}
	for k, v := range extra {
		md[k] = v
	}
	return md
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
