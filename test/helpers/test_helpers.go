package helpers

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leadflow/campaign-gateway/internal/repository"
	"github.com/leadflow/campaign-gateway/pkg/pg"
	"github.com/leadflow/campaign-gateway/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func SetupTestDB(t *testing.T) *pg.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&repository.LeadEntity{},
		&repository.TagEntity{},
		&repository.LeadTagEntity{},
		&repository.CampaignEntity{},
		&repository.MessageEntity{},
		&repository.WhatsAppNumberEntity{},
		&repository.WhatsAppTemplateEntity{},
		&repository.AuditLogEntity{},
	)
	require.NoError(t, err)

	pgDB := &pg.DB{}
	pgDBValue := reflect.ValueOf(pgDB).Elem()

	readField := pgDBValue.FieldByName("read")
	writeField := pgDBValue.FieldByName("write")

	readField = reflect.NewAt(readField.Type(), readField.Addr().UnsafePointer()).Elem()
	writeField = reflect.NewAt(writeField.Type(), writeField.Addr().UnsafePointer()).Elem()

	readField.Set(reflect.ValueOf(db))
	writeField.Set(reflect.ValueOf(db))

	return pgDB
}

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	adapter, err := redis.NewRedisAdapter("test", "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func CreateTestLead(t *testing.T, db *pg.DB, userID int64, phone string, consented bool) *repository.LeadEntity {
	ctx := context.Background()
	lead := &repository.LeadEntity{
		UserID:       userID,
		FirstName:    "Test",
		LastName:     "Lead",
		PhoneNumber:  phone,
		Source:       "MANUAL",
		Status:       "NEW",
		ConsentGiven: consented,
	}
	if consented {
		now := time.Now().UTC()
		lead.ConsentTimestamp = &now
		lead.ConsentType = "EXPLICIT"
	}
	err := db.Write(ctx).Create(lead).Error
	require.NoError(t, err)
	return lead
}

func CreateTestCampaign(t *testing.T, db *pg.DB, userID int64, campaignType, status string) *repository.CampaignEntity {
	ctx := context.Background()
	c := &repository.CampaignEntity{
		UserID:          userID,
		Name:            "Test Campaign",
		Type:            campaignType,
		Status:          status,
		TargetAudience:  "{}",
		MessageTemplate: "Hello {{name}}",
	}
	err := db.Write(ctx).Create(c).Error
	require.NoError(t, err)
	return c
}

func CreateTestNumber(t *testing.T, db *pg.DB, userID int64, phone string) *repository.WhatsAppNumberEntity {
	ctx := context.Background()
	n := &repository.WhatsAppNumberEntity{
		UserID:        userID,
		PhoneNumber:   phone,
		PhoneNumberID: "pnid-" + phone,
		AccessToken:   "test-token",
		IsActive:      true,
	}
	err := db.Write(ctx).Create(n).Error
	require.NoError(t, err)
	return n
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func Ptr[T any](v T) *T {
	return &v
}
