package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leadflow/campaign-gateway/internal/model"
	"github.com/leadflow/campaign-gateway/internal/queue"
	"github.com/leadflow/campaign-gateway/internal/repository"
	"github.com/leadflow/campaign-gateway/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockLeadRepository struct {
	mock.Mock
}

func (m *MockLeadRepository) Create(ctx context.Context, lead *model.Lead) (*model.Lead, error) {
	args := m.Called(ctx, lead)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Lead), args.Error(1)
}

func (m *MockLeadRepository) GetOwned(ctx context.Context, userID, id int64) (*model.Lead, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Lead), args.Error(1)
}

func (m *MockLeadRepository) UpdateConsent(ctx context.Context, userID, id int64, given bool, consentType model.ConsentType) error {
	args := m.Called(ctx, userID, id, given, consentType)
	return args.Error(0)
}

func (m *MockLeadRepository) List(ctx context.Context, f model.LeadFilter) ([]*model.Lead, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Lead), args.Get(1).(int64), args.Error(2)
}

func setupTestQueue(t *testing.T) *queue.Queue {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	connName := t.Name() + "-" + mr.Addr()
	adapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	q, err := queue.New(adapter, queue.Config{
		Name:          "test:direct",
		ConsumerGroup: "test-group",
		ConsumerName:  "test-consumer",
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		q.Stop(time.Second)
		mr.Close()
	})

	return q
}

func TestLeadService_Create(t *testing.T) {
	repo := new(MockLeadRepository)
	svc := NewLeadService(repo, setupTestQueue(t))

	repo.On("Create", mock.Anything, mock.MatchedBy(func(l *model.Lead) bool {
		return l.PhoneNumber == "+15550001" &&
			l.Email == "ana@example.com" &&
			l.Status == model.LeadStatusNew &&
			l.Source == model.LeadSourceManual
	})).Return(&model.Lead{ID: 1}, nil)

	created, err := svc.Create(context.Background(), model.LeadCreateRequest{
		UserID:      10,
		FirstName:   "Ana",
		PhoneNumber: "  +15550001 ",
		Email:       "Ana@Example.com ",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
	repo.AssertExpectations(t)
}

func TestLeadService_Create_ConsentDefaults(t *testing.T) {
	repo := new(MockLeadRepository)
	svc := NewLeadService(repo, setupTestQueue(t))

	repo.On("Create", mock.Anything, mock.MatchedBy(func(l *model.Lead) bool {
		return l.ConsentGiven &&
			l.ConsentType == model.ConsentTypeExplicit &&
			l.ConsentTimestamp != nil
	})).Return(&model.Lead{ID: 2, ConsentGiven: true}, nil)

	_, err := svc.Create(context.Background(), model.LeadCreateRequest{
		UserID:       10,
		FirstName:    "Ben",
		PhoneNumber:  "+15550002",
		ConsentGiven: true,
	})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestLeadService_Create_DuplicateBecomesValidationError(t *testing.T) {
	repo := new(MockLeadRepository)
	svc := NewLeadService(repo, setupTestQueue(t))

	repo.On("Create", mock.Anything, mock.Anything).Return(nil, repository.ErrDuplicate)

	_, err := svc.Create(context.Background(), model.LeadCreateRequest{
		UserID:      10,
		FirstName:   "Ana",
		PhoneNumber: "+15550001",
	})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestLeadService_Create_InvalidRequest(t *testing.T) {
	repo := new(MockLeadRepository)
	svc := NewLeadService(repo, setupTestQueue(t))

	_, err := svc.Create(context.Background(), model.LeadCreateRequest{UserID: 10})
	assert.ErrorIs(t, err, model.ErrValidation)
	repo.AssertNotCalled(t, "Create")
}

func TestLeadService_UpdateConsent_DefaultsToExplicit(t *testing.T) {
	repo := new(MockLeadRepository)
	svc := NewLeadService(repo, setupTestQueue(t))

	repo.On("UpdateConsent", mock.Anything, int64(10), int64(1), true, model.ConsentTypeExplicit).Return(nil)
	repo.On("GetOwned", mock.Anything, int64(10), int64(1)).
		Return(&model.Lead{ID: 1, ConsentGiven: true, ConsentType: model.ConsentTypeExplicit}, nil)

	lead, err := svc.UpdateConsent(context.Background(), 10, 1, true, "")
	require.NoError(t, err)
	assert.True(t, lead.ConsentGiven)
	repo.AssertExpectations(t)
}

func TestLeadService_UpdateConsent_NotFound(t *testing.T) {
	repo := new(MockLeadRepository)
	svc := NewLeadService(repo, setupTestQueue(t))

	repo.On("UpdateConsent", mock.Anything, int64(10), int64(99), false, model.ConsentType("")).
		Return(repository.ErrNotFound)

	_, err := svc.UpdateConsent(context.Background(), 10, 99, false, "")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLeadService_ImportEngagement(t *testing.T) {
	repo := new(MockLeadRepository)
	q := setupTestQueue(t)
	svc := NewLeadService(repo, q)

	jobID, err := svc.ImportEngagement(context.Background(), 10, "page-1", "post-1", model.LeadSourceFacebookComment)
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)

	stats, err := q.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Waiting)
}

func TestLeadService_ImportEngagement_Validation(t *testing.T) {
	repo := new(MockLeadRepository)
	svc := NewLeadService(repo, setupTestQueue(t))
	ctx := context.Background()

	_, err := svc.ImportEngagement(ctx, 10, "page-1", "", model.LeadSourceFacebookComment)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = svc.ImportEngagement(ctx, 10, "page-1", "post-1", model.LeadSourceManual)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestLeadService_Get_PassesThrough(t *testing.T) {
	repo := new(MockLeadRepository)
	svc := NewLeadService(repo, setupTestQueue(t))

	wantErr := errors.New("backend down")
	repo.On("GetOwned", mock.Anything, int64(10), int64(1)).Return(nil, wantErr)

	_, err := svc.Get(context.Background(), 10, 1)
	assert.ErrorIs(t, err, wantErr)
}
