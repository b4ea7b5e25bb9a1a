package commitment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ikpa/internal/apperr"
	"ikpa/internal/core"
)

var now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type memStore struct {
	goals     map[int64]core.Goal
	contracts map[int64]Contract
	failGoal  int64
}

func newMemStore() *memStore {
	return &memStore{
		goals: map[int64]core.Goal{
			1: {ID: 1, UserID: 7, Status: core.GoalActive, TargetAmount: core.Money{Cents: 1000}, CurrentAmount: core.Money{Cents: 1000}},
			2: {ID: 2, UserID: 7, Status: core.GoalActive, TargetAmount: core.Money{Cents: 1000}, CurrentAmount: core.Money{Cents: 100}},
			3: {ID: 3, UserID: 7, Status: core.GoalPaused, TargetAmount: core.Money{Cents: 1000}},
		},
		contracts: map[int64]Contract{},
	}
}

func (m *memStore) GetGoal(_ context.Context, userID, id int64) (core.Goal, error) {
	if id == m.failGoal {
		return core.Goal{}, errors.New("boom")
	}
	g, ok := m.goals[id]
	if !ok || g.UserID != userID {
		return core.Goal{}, core.ErrNotFound
	}
	return g, nil
}

func (m *memStore) HasActiveContract(_ context.Context, goalID int64) (bool, error) {
	for _, c := range m.contracts {
		if c.GoalID == goalID && c.Status == StatusActive {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CreateContract(_ context.Context, c *Contract) error {
	c.ID = int64(len(m.contracts) + 1)
	m.contracts[c.ID] = *c
	return nil
}

func (m *memStore) GetContract(_ context.Context, userID, id int64) (Contract, error) {
	c, ok := m.contracts[id]
	if !ok || c.UserID != userID {
		return Contract{}, core.ErrNotFound
	}
	return c, nil
}

func (m *memStore) GetContractByID(_ context.Context, id int64) (Contract, error) {
	c, ok := m.contracts[id]
	if !ok {
		return Contract{}, core.ErrNotFound
	}
	return c, nil
}

func (m *memStore) ListContracts(_ context.Context, userID int64) ([]Contract, error) {
	var out []Contract
	for _, c := range m.contracts {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) UpdateContractStatus(_ context.Context, id int64, status Status, at *time.Time) error {
	c := m.contracts[id]
	if c.Status != StatusActive {
		return core.ErrConflict
	}
	c.Status = status
	c.VerifiedAt = at
	m.contracts[id] = c
	return nil
}

func (m *memStore) ListUsersWithDueContracts(_ context.Context, at time.Time) ([]int64, error) {
	seen := map[int64]bool{}
	var out []int64
	for _, c := range m.contracts {
		if c.Status == StatusActive && !c.Deadline.After(at) && !seen[c.UserID] {
			seen[c.UserID] = true
			out = append(out, c.UserID)
		}
	}
	return out, nil
}

func (m *memStore) ListDueContracts(_ context.Context, userID int64, at time.Time) ([]Contract, error) {
	var out []Contract
	for _, c := range m.contracts {
		if c.UserID == userID && c.Status == StatusActive && !c.Deadline.After(at) {
			out = append(out, c)
		}
	}
	return out, nil
}

func newService() (*Service, *memStore) {
	store := newMemStore()
	svc := NewService(store)
	svc.now = func() time.Time { return now }
	return svc, store
}

func validRequest() CreateRequest {
	return CreateRequest{
		GoalID:       2,
		StakeType:    StakeSocial,
		RefereeEmail: "Ref@Example.com",
		Deadline:     now.AddDate(0, 1, 0),
	}
}

func TestCreateRequestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateRequest)
		ok     bool
	}{
		{"social without stake", func(*CreateRequest) {}, true},
		{"unknown stake type", func(r *CreateRequest) { r.StakeType = "vibes" }, false},
		{"loss pool needs amount", func(r *CreateRequest) { r.StakeType = StakeLossPool }, false},
		{"loss pool with amount", func(r *CreateRequest) { r.StakeType = StakeLossPool; r.StakeAmount = core.Money{Cents: 500} }, true},
		{"anti charity needs name", func(r *CreateRequest) { r.StakeType = StakeAntiCharity; r.StakeAmount = core.Money{Cents: 500} }, false},
		{"anti charity complete", func(r *CreateRequest) {
			r.StakeType = StakeAntiCharity
			r.StakeAmount = core.Money{Cents: 500}
			r.AntiCharity = "Rival FC Supporters Club"
		}, true},
		{"social needs referee", func(r *CreateRequest) { r.RefereeEmail = "" }, false},
		{"bad referee email", func(r *CreateRequest) { r.RefereeEmail = "not-an-email" }, false},
		{"deadline too soon", func(r *CreateRequest) { r.Deadline = now.Add(6 * 24 * time.Hour) }, false},
		{"deadline exactly 7 days", func(r *CreateRequest) { r.Deadline = now.Add(MinLeadTime) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRequest()
			tt.mutate(&r)
			err := r.Validate(now)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperr.Is(err, apperr.CodeValidation), "got %v", err)
			}
		})
	}
}

func TestCreate(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	c, err := svc.Create(ctx, 7, validRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusActive, c.Status)
	assert.Equal(t, "ref@example.com", c.RefereeEmail)
	assert.Equal(t, now, c.CreatedAt)

	_, err = svc.Create(ctx, 7, validRequest())
	assert.True(t, apperr.Is(err, apperr.CodeConflict), "one active contract per goal")

	r := validRequest()
	r.GoalID = 99
	_, err = svc.Create(ctx, 7, r)
	assert.True(t, apperr.Is(err, apperr.CodeGoalNotFound))

	r.GoalID = 3
	_, err = svc.Create(ctx, 7, r)
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
}

func TestVerify(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	c, err := svc.Create(ctx, 7, validRequest())
	require.NoError(t, err)

	_, err = svc.Verify(ctx, c.ID, "someone@else.com", true)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	_, err = svc.Verify(ctx, 404, "ref@example.com", true)
	assert.True(t, apperr.Is(err, apperr.CodeCommitmentNotFound))

	got, err := svc.Verify(ctx, c.ID, " REF@example.com ", true)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
	require.NotNil(t, got.VerifiedAt)

	_, err = svc.Verify(ctx, c.ID, "ref@example.com", false)
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
}

func TestCancel(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	c, err := svc.Create(ctx, 7, validRequest())
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, 8, c.ID)
	assert.True(t, apperr.Is(err, apperr.CodeCommitmentNotFound))

	got, err := svc.Cancel(ctx, 7, c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Nil(t, got.VerifiedAt)

	_, err = svc.Cancel(ctx, 7, c.ID)
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
}

func TestSettle(t *testing.T) {
	svc, store := newService()
	past := now.AddDate(0, 0, -1)
	store.contracts = map[int64]Contract{
		1: {ID: 1, UserID: 7, GoalID: 1, Status: StatusActive, Deadline: past},
		2: {ID: 2, UserID: 7, GoalID: 2, Status: StatusActive, Deadline: past},
		3: {ID: 3, UserID: 7, GoalID: 2, Status: StatusActive, Deadline: now.AddDate(0, 0, 1)},
		4: {ID: 4, UserID: 7, GoalID: 1, Status: StatusSucceeded, Deadline: past},
		5: {ID: 5, UserID: 8, GoalID: 5, Status: StatusActive, Deadline: past},
	}
	store.failGoal = 5

	rep, err := svc.Settle(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Succeeded)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Errors)
	assert.ElementsMatch(t, []int64{1, 2}, rep.Settled)

	assert.Equal(t, StatusSucceeded, store.contracts[1].Status)
	assert.Equal(t, StatusFailed, store.contracts[2].Status)
	assert.Equal(t, StatusActive, store.contracts[3].Status)
	assert.Equal(t, StatusActive, store.contracts[5].Status)
}

func TestSummarize(t *testing.T) {
	h := Summarize([]Contract{{Status: StatusSucceeded}, {Status: StatusFailed}, {Status: StatusFailed}, {Status: StatusActive}})
	assert.Equal(t, History{Total: 4, Active: 1, Succeeded: 1, Failed: 2}, h)
	assert.InDelta(t, 2.0/3.0, h.FailureRate(), 1e-9)
	assert.Equal(t, -1.0, History{}.FailureRate())
}
