package database

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/internal/pkg/config"
)

func TestDSN(t *testing.T) {
	cfg := &config.Config{DBUser: "u", DBPassword: "p", DBHost: "db", DBPort: "3307", DBName: "credit"}
	assert.Equal(t, "u:p@tcp(db:3307)/credit?charset=utf8mb4&parseTime=True&loc=UTC", DSN(cfg))
}

func TestMigrateCreatesUniqueIndexes(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db), "migrate must be re-runnable")

	m := db.Migrator()
	assert.True(t, m.HasIndex(&models.Subscription{}, "ux_subscriptions_active_key"))
	assert.True(t, m.HasIndex(&models.ScheduledPayment{}, "ux_scheduled_payments_active_key"))
	assert.True(t, m.HasIndex(&models.UserCredit{}, "ux_user_credits_user_business"))
	assert.True(t, m.HasIndex(&models.Payment{}, "ux_payments_processor_payment"))
	assert.True(t, m.HasIndex(&models.BillingWebhookEvent{}, "ux_billing_webhook_events_resource"))
}
