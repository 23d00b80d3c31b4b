package approval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"upkeep/internal/types"
)

type mockRequestRepo struct {
	mock.Mock
}

func (m *mockRequestRepo) Create(ctx context.Context, req *types.Request) error {
	return m.Called(ctx, req).Error(0)
}

func (m *mockRequestRepo) GetByID(ctx context.Context, id string) (*types.Request, error) {
	args := m.Called(ctx, id)
	if r := args.Get(0); r != nil {
		return r.(*types.Request), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRequestRepo) List(ctx context.Context, f types.RequestFilter) ([]*types.Request, types.PageInfo, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]*types.Request), args.Get(1).(types.PageInfo), args.Error(2)
}

func (m *mockRequestRepo) Update(ctx context.Context, req *types.Request) error {
	return m.Called(ctx, req).Error(0)
}

func (m *mockRequestRepo) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRequestRepo) CountByStatus(ctx context.Context) (map[types.RequestStatus]int, error) {
	args := m.Called(ctx)
	return args.Get(0).(map[types.RequestStatus]int), args.Error(1)
}

type fakeNotifier struct {
	created   []string
	requested []string
	decided   []string
	err       error
}

func (f *fakeNotifier) RequestCreated(_ context.Context, req *types.Request) error {
	f.created = append(f.created, req.ID)
	return f.err
}

func (f *fakeNotifier) ApprovalRequested(_ context.Context, req *types.Request) error {
	f.requested = append(f.requested, req.ID)
	return f.err
}

func (f *fakeNotifier) ApprovalDecided(_ context.Context, req *types.Request) error {
	f.decided = append(f.decided, req.ID)
	return f.err
}

var testNow = time.Date(2024, time.May, 2, 9, 0, 0, 0, time.UTC)

func newTestService(repo *mockRequestRepo, n *fakeNotifier) *Service {
	return NewService(ServiceConfig{
		Requests: repo,
		Notifier: n,
		Clock:    types.FixedClock(testNow),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestSubmit_OperatorCostGoesPending(t *testing.T) {
	repo := &mockRequestRepo{}
	n := &fakeNotifier{}
	svc := newTestService(repo, n)

	repo.On("Create", mock.Anything, mock.AnythingOfType("*types.Request")).Return(nil).Run(func(args mock.Arguments) {
		args.Get(1).(*types.Request).ID = "req_new"
	})

	req := &types.Request{Title: "Replace belt", EstimatedCostCents: 12_500, Status: types.RequestClosed}
	err := svc.Submit(context.Background(), req, types.Actor{ID: "usr_op", Role: types.RoleOperator})

	require.NoError(t, err)
	assert.Equal(t, "usr_op", req.RequestedBy)
	assert.Equal(t, types.RequestOpen, req.Status)
	assert.Equal(t, types.ApprovalPending, req.ApprovalStatus)
	assert.Equal(t, types.PriorityMedium, req.Priority)
	assert.Equal(t, []string{"req_new"}, n.created)
	assert.Equal(t, []string{"req_new"}, n.requested)
	repo.AssertExpectations(t)
}

func TestSubmit_NotificationFailureDoesNotFail(t *testing.T) {
	repo := &mockRequestRepo{}
	n := &fakeNotifier{err: errors.New("queue down")}
	svc := newTestService(repo, n)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)

	req := &types.Request{Title: "Inspect", Priority: types.PriorityLow}
	err := svc.Submit(context.Background(), req, types.Actor{ID: "usr_admin", Role: types.RoleAdmin})

	require.NoError(t, err)
	assert.Equal(t, types.ApprovalNotRequired, req.ApprovalStatus)
	assert.Empty(t, n.requested)
}

func TestSubmit_StoreErrorPropagates(t *testing.T) {
	repo := &mockRequestRepo{}
	n := &fakeNotifier{}
	svc := newTestService(repo, n)
	storeErr := types.NewAppError(types.ErrCodeInternalDB, "failed to create request", errors.New("boom"))
	repo.On("Create", mock.Anything, mock.Anything).Return(storeErr)

	err := svc.Submit(context.Background(), &types.Request{Title: "x"}, types.SystemActor())

	assert.ErrorIs(t, err, storeErr)
	assert.Empty(t, n.created)
}

func TestDecide_Approve(t *testing.T) {
	repo := &mockRequestRepo{}
	n := &fakeNotifier{}
	svc := newTestService(repo, n)

	stored := &types.Request{
		ID:                 "req_1",
		RequestedBy:        "usr_op",
		Status:             types.RequestOpen,
		EstimatedCostCents: 9_000,
		ApprovalStatus:     types.ApprovalPending,
	}
	repo.On("GetByID", mock.Anything, "req_1").Return(stored, nil)
	repo.On("Update", mock.Anything, stored).Return(nil)

	tech := types.Actor{ID: "usr_tech", Role: types.RoleMaintenance, ApprovalLimitCents: 10_000}
	got, err := svc.Decide(context.Background(), "req_1", tech, Approve)

	require.NoError(t, err)
	assert.Equal(t, types.ApprovalApproved, got.ApprovalStatus)
	assert.Equal(t, "usr_tech", got.ApprovedBy)
	assert.True(t, got.ApprovedAt.Equal(testNow))
	assert.Equal(t, []string{"req_1"}, n.decided)
	repo.AssertExpectations(t)
}

func TestDecide_LimitExceededDoesNotWrite(t *testing.T) {
	repo := &mockRequestRepo{}
	svc := newTestService(repo, &fakeNotifier{})

	repo.On("GetByID", mock.Anything, "req_1").Return(&types.Request{
		ID:                 "req_1",
		RequestedBy:        "usr_op",
		EstimatedCostCents: 50_000,
		ApprovalStatus:     types.ApprovalPending,
	}, nil)

	tech := types.Actor{ID: "usr_tech", Role: types.RoleMaintenance, ApprovalLimitCents: 10_000}
	_, err := svc.Decide(context.Background(), "req_1", tech, Approve)

	assert.Equal(t, types.ErrCodePermissionApprovalLimit, appCode(t, err))
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestDecide_InvalidDecision(t *testing.T) {
	repo := &mockRequestRepo{}
	svc := newTestService(repo, &fakeNotifier{})

	_, err := svc.Decide(context.Background(), "req_1", types.SystemActor(), Decision("maybe"))

	assert.Equal(t, types.ErrCodeValidationInvalidValue, appCode(t, err))
	repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}
