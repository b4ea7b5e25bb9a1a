package debrief

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ikpa/internal/apperr"
	"ikpa/internal/core"
)

// Store keeps the latest debrief per contract.
type Store interface {
	SaveDebrief(ctx context.Context, userID int64, d Debrief) error
	GetDebrief(ctx context.Context, userID, contractID int64) (Debrief, error)
}

// Service runs the agent and stores what it produces.
type Service struct {
	agent *Agent
	store Store
	now   func() time.Time
}

func NewService(agent *Agent, store Store) *Service {
	return &Service{agent: agent, store: store, now: time.Now}
}

// Generate debriefs the contract and replaces any stored debrief for it.
func (s *Service) Generate(ctx context.Context, userID, contractID int64) (Debrief, error) {
	d, err := s.agent.Debrief(ctx, userID, contractID)
	if err != nil {
		return Debrief{}, err
	}
	d.GeneratedAt = s.now().UTC().Truncate(time.Second)
	if err := s.store.SaveDebrief(ctx, userID, d); err != nil {
		return Debrief{}, fmt.Errorf("save debrief: %w", err)
	}
	slog.InfoContext(ctx, "Debrief stored",
		"component", "debrief",
		"user_id", userID,
		"contract_id", contractID,
		"source", d.Source)
	return d, nil
}

// Latest returns the stored debrief for the contract.
func (s *Service) Latest(ctx context.Context, userID, contractID int64) (Debrief, error) {
	d, err := s.store.GetDebrief(ctx, userID, contractID)
	if errors.Is(err, core.ErrNotFound) {
		return Debrief{}, apperr.NotFound("debrief").WithDetail("contract_id", contractID)
	}
	if err != nil {
		return Debrief{}, fmt.Errorf("get debrief: %w", err)
	}
	return d, nil
}
