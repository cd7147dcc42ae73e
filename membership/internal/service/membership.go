package service

import (
	"context"
	"time"

	"github.com/cohortlabs/cohort-stack/common/errcode"
	"github.com/cohortlabs/cohort-stack/common/logging"
	"github.com/cohortlabs/cohort-stack/common/value"
	"github.com/cohortlabs/cohort-stack/membership/internal/authorizer"
	"github.com/cohortlabs/cohort-stack/membership/internal/cache"
	"github.com/cohortlabs/cohort-stack/membership/internal/metrics"
	"github.com/cohortlabs/cohort-stack/membership/internal/models"
	"github.com/cohortlabs/cohort-stack/membership/internal/telemetry"
)

// MembershipService lets callers edit their own group memberships.
type MembershipService struct {
	*base
}

func NewMembershipService(cfg Config) *MembershipService {
	return &MembershipService{base: newBase(cfg)}
}

// UpdateMembership applies the caller's membership edits. Validation and
// authorization failures abort before the repository is called; repository
// failures are returned as downstream failures.
func (s *MembershipService) UpdateMembership(ctx context.Context, req *models.Request) (*models.Response, error) {
	start := time.Now()
	userID, _ := value.String(req.Payload, "userId")
	logger := s.logger.With(logging.Operation(req.Operation))
	logger.InfoContext(ctx, "updating group membership", logging.UserID(userID))

	err := s.updateMembership(ctx, req, userID)
	if err != nil {
		logger.DebugContext(ctx, "membership update failed", "request", req.Payload)
		e := errcode.Classify(err, errcode.CodeMembershipFailed)
		logger.ErrorContext(ctx, "membership update rejected", logging.ErrorCode(e.Code), logging.Error(e))
		err = e
	}
	observe(models.OperationUpdateMembership, start, err)

	s.emitter.Emit(ctx, req, telemetry.Input{
		Path:          telemetry.PathMembership,
		Success:       err == nil,
		UserID:        userID,
		ActorID:       req.RequestedBy(),
		RequestSource: req.RequestSource(),
		Requested:     req.Payload,
	})

	if err != nil {
		return nil, err
	}
	return models.NewResponse(req.ID, map[string]any{"response": "SUCCESS"}), nil
}

func (s *MembershipService) updateMembership(ctx context.Context, req *models.Request, userID string) error {
	if err := s.validators.MembershipUpdate(ctx, req.Payload); err != nil {
		return err
	}
	mutations, err := authorizer.BuildMutations(req.RequestedBy(), userID, req.Payload)
	if err != nil {
		return err
	}
	if len(mutations) > 0 {
		if err := s.repo.EditMembers(ctx, mutations, req.Context, userID); err != nil {
			return err
		}
		metrics.MutationsApplied.Add(float64(len(mutations)))
	}
	s.invalidate(ctx, cache.MembershipKeys(mutations, userID))
	return nil
}
