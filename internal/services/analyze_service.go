package services

import (
	"context"
	"errors"
	"log/slog"

	"cinescript/internal/genai"
	"cinescript/internal/store"
)

var (
	ErrFreeQuotaExhausted = errors.New("free quota exhausted")
	ErrNoCredits          = errors.New("no paid credits remaining")
	ErrInvalidTier        = errors.New("tier must be free or paid")
)

// AnalyzeService gates model calls behind the usage ledger. The free slot or
// credit is reserved atomically before the model is invoked, so concurrent
// requests from one session can never collectively overdraw a balance.
type AnalyzeService struct {
	Store     store.Store
	Model     *genai.Client
	FreeLimit int
	Log       *slog.Logger
}

func (s *AnalyzeService) Analyze(ctx context.Context, sessionID, tier, input string) (*genai.Result, error) {
	switch tier {
	case genai.TierFree:
		ok, err := s.Store.IncrementFreeUsed(ctx, sessionID, s.FreeLimit)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrFreeQuotaExhausted
		}
	case genai.TierPaid:
		ok, err := s.Store.ConsumeCredit(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNoCredits
		}
	default:
		return nil, ErrInvalidTier
	}

	result, err := s.Model.Generate(ctx, tier, input)
	if err != nil {
		// A reserved credit goes back on model failure; the free counter is
		// monotonic and stays consumed.
		if tier == genai.TierPaid {
			if refundErr := s.Store.AddCredits(ctx, sessionID, 1); refundErr != nil {
				s.Log.Error("credit refund failed", "session_id", sessionID, "err", refundErr)
			}
		}
		s.Log.Warn("analysis failed", "session_id", sessionID, "tier", tier, "err", err)
		return nil, err
	}

	s.Log.Info("analysis served",
		"session_id", sessionID, "tier", tier, "model", result.UsedModel)
	return result, nil
}
