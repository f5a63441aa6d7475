package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/CreditFox/app/models"
)

// Repository provides DB operations used by the reconciliation engine.
type Repository interface {
	// Transaction runs fn with a repository bound to a single DB transaction.
	Transaction(ctx context.Context, fn func(tx Repository) error) error

	FindProduct(ctx context.Context, id uint) (*models.Product, error)
	FindUser(ctx context.Context, id uint) (*models.User, error)
	FindBusiness(ctx context.Context, id uint) (*models.Business, error)

	FindSubscriptionByKey(ctx context.Context, key string) (*models.Subscription, error)
	CreateSubscriptionIfNotExists(ctx context.Context, sub *models.Subscription) (bool, error)
	FindActiveScheduledPayment(ctx context.Context, userID, productID uint) (*models.ScheduledPayment, error)
	CreateScheduledPaymentIfNotExists(ctx context.Context, sp *models.ScheduledPayment) (bool, error)
	InitializeCreditLedger(ctx context.Context, userID, businessID uint) (bool, *models.UserCredit, error)

	CreatePaymentIfNotExists(ctx context.Context, p *models.Payment) (bool, error)
	FindPaymentByProcessorID(ctx context.Context, processorPaymentID string) (*models.Payment, error)

	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error
	MarkWebhookFailed(ctx context.Context, id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

// insertIfAbsent inserts row unless a row violating one of its unique indexes
// already exists. In that case row is overwritten with the stored row found by
// lookup and created is false.
func insertIfAbsent[T any](db *gorm.DB, row *T, lookup func(*gorm.DB) *gorm.DB) (bool, error) {
	tx := db.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if tx.Error != nil {
		return false, tx.Error
	}
	if tx.RowsAffected > 0 {
		return true, nil
	}

	var stored T
	if err := lookup(db).First(&stored).Error; err != nil {
		return false, notFound(err)
	}
	*row = stored
	return false, nil
}

// notFound translates GORM's sentinel into the package's own.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

func first[T any](q *gorm.DB) (*T, error) {
	var out T
	if err := q.First(&out).Error; err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}

func (r *gormRepository) FindProduct(ctx context.Context, id uint) (*models.Product, error) {
	return first[models.Product](r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *gormRepository) FindUser(ctx context.Context, id uint) (*models.User, error) {
	return first[models.User](r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *gormRepository) FindBusiness(ctx context.Context, id uint) (*models.Business, error) {
	return first[models.Business](r.db.WithContext(ctx).Preload("Owner").Where("id = ?", id))
}

func (r *gormRepository) FindSubscriptionByKey(ctx context.Context, key string) (*models.Subscription, error) {
	return first[models.Subscription](r.db.WithContext(ctx).Where("active_key = ?", key))
}

func (r *gormRepository) CreateSubscriptionIfNotExists(ctx context.Context, sub *models.Subscription) (bool, error) {
	if sub.ActiveKey == nil {
		return false, errors.New("subscription active_key is required")
	}
	key := *sub.ActiveKey
	return insertIfAbsent(r.db.WithContext(ctx), sub, func(db *gorm.DB) *gorm.DB {
		return db.Where("active_key = ?", key)
	})
}

func (r *gormRepository) FindActiveScheduledPayment(ctx context.Context, userID, productID uint) (*models.ScheduledPayment, error) {
	return first[models.ScheduledPayment](r.db.WithContext(ctx).
		Where("active_key = ?", *models.ActiveKey(userID, productID)))
}

func (r *gormRepository) CreateScheduledPaymentIfNotExists(ctx context.Context, sp *models.ScheduledPayment) (bool, error) {
	if sp.ActiveKey == nil {
		sp.ActiveKey = models.ActiveKey(sp.UserID, sp.ProductID)
	}
	key := *sp.ActiveKey
	return insertIfAbsent(r.db.WithContext(ctx), sp, func(db *gorm.DB) *gorm.DB {
		return db.Where("active_key = ?", key)
	})
}

func (r *gormRepository) InitializeCreditLedger(ctx context.Context, userID, businessID uint) (bool, *models.UserCredit, error) {
	credit := &models.UserCredit{UserID: userID, BusinessID: businessID}
	created, err := insertIfAbsent(r.db.WithContext(ctx), credit, func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ? AND business_id = ?", userID, businessID)
	})
	if err != nil {
		return false, nil, err
	}
	return created, credit, nil
}

func (r *gormRepository) CreatePaymentIfNotExists(ctx context.Context, p *models.Payment) (bool, error) {
	id := p.ProcessorPaymentID
	return insertIfAbsent(r.db.WithContext(ctx), p, func(db *gorm.DB) *gorm.DB {
		return db.Where("processor_payment_id = ?", id)
	})
}

func (r *gormRepository) FindPaymentByProcessorID(ctx context.Context, processorPaymentID string) (*models.Payment, error) {
	return first[models.Payment](r.db.WithContext(ctx).Where("processor_payment_id = ?", processorPaymentID))
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	provider, eventType, resourceID := event.Provider, event.EventType, event.ResourceID
	created, err := insertIfAbsent(r.db.WithContext(ctx), event, func(db *gorm.DB) *gorm.DB {
		return db.Where("provider = ? AND event_type = ? AND resource_id = ?", provider, eventType, resourceID)
	})
	if err != nil {
		return false, nil, err
	}
	return created, event, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

// MarkWebhookFailed stores the error but leaves the event unprocessed so a
// redelivery is handled again.
func (r *gormRepository) MarkWebhookFailed(ctx context.Context, id uint, processingError string) error {
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).
		Where("id = ? AND processed_at IS NULL", id).
		Update("processing_error", processingError).Error
}
