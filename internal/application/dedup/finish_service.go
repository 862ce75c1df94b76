package dedup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mergedesk/backend/internal/domain/contact"
	domain "github.com/mergedesk/backend/internal/domain/dedup"
	"github.com/mergedesk/backend/internal/domain/shared"
	"github.com/mergedesk/backend/internal/infrastructure/config"
	"github.com/mergedesk/backend/internal/infrastructure/crm"
	"github.com/mergedesk/backend/internal/infrastructure/progress"
	"github.com/mergedesk/backend/internal/infrastructure/runlock"
)

// CRMGateway is the slice of the CRM client the finish executor needs
type CRMGateway interface {
	MergeContacts(ctx context.Context, tenantID uuid.UUID, primaryID, toMergeID string) (string, error)
	UpdateContact(ctx context.Context, tenantID uuid.UUID, externalID string, properties map[string]string) error
	DeleteContact(ctx context.Context, tenantID uuid.UUID, externalID string) error
	PropertyExists(ctx context.Context, tenantID uuid.UUID, name string) (bool, error)
	CreateProperty(ctx context.Context, tenantID uuid.UUID, name, label string) error
}

// FinishService executes the staged decisions of a scope against the
// CRM in five steps: drain the intent ledger, purge processed intents,
// apply field overrides, apply removals, then clean up the local
// working copy. At most one run per scope is allowed at a time, and a
// failed run can be re-entered because every step works off what is
// still persisted.
type FinishService struct {
	contacts  contact.Repository
	groups    domain.GroupRepository
	intents   domain.MergeIntentRepository
	overrides domain.FieldOverrideRepository
	marks     domain.RemovalMarkRepository
	crm       CRMGateway
	lock      runlock.RunLock
	tracker   *progress.Tracker
	cfg       config.DedupConfig
	logger    *zap.Logger

	// Pauses between CRM calls and between batches keep a large run
	// inside the CRM's burst tolerance.
	interRequestDelay time.Duration
	interBatchDelay   time.Duration
}

// NewFinishService creates a new finish service
func NewFinishService(
	contacts contact.Repository,
	groups domain.GroupRepository,
	intents domain.MergeIntentRepository,
	overrides domain.FieldOverrideRepository,
	marks domain.RemovalMarkRepository,
	gateway CRMGateway,
	lock runlock.RunLock,
	tracker *progress.Tracker,
	cfg config.DedupConfig,
	logger *zap.Logger,
) *FinishService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FinishService{
		contacts:          contacts,
		groups:            groups,
		intents:           intents,
		overrides:         overrides,
		marks:             marks,
		crm:               gateway,
		lock:              lock,
		tracker:           tracker,
		cfg:               cfg,
		logger:            logger,
		interRequestDelay: 200 * time.Millisecond,
		interBatchDelay:   2 * time.Second,
	}
}

// Finish starts a finish run for the scope in the background. A second
// call while a run is in flight is rejected.
func (s *FinishService) Finish(ctx context.Context, tenantID uuid.UUID, datasetKey string) (*FinishResult, error) {
	acquired, err := s.lock.TryAcquire(ctx, tenantID, datasetKey)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, shared.ErrRunInProgress
	}

	total, err := s.intents.CountPendingByScope(ctx, tenantID, datasetKey)
	if err != nil {
		_ = s.lock.Release(ctx, tenantID, datasetKey)
		return nil, err
	}

	s.tracker.Start(tenantID, datasetKey, int(total))
	go s.run(context.WithoutCancel(ctx), tenantID, datasetKey)

	return &FinishResult{Message: "finish run started"}, nil
}

// Progress returns the live snapshot for the scope, if a run has been
// started since the process came up.
func (s *FinishService) Progress(tenantID uuid.UUID, datasetKey string) (progress.Snapshot, bool) {
	return s.tracker.Get(tenantID, datasetKey)
}

func (s *FinishService) run(ctx context.Context, tenantID uuid.UUID, datasetKey string) {
	defer func() {
		if err := s.lock.Release(ctx, tenantID, datasetKey); err != nil {
			s.logger.Error("run lock release failed", zap.Error(err))
		}
	}()

	if err := s.execute(ctx, tenantID, datasetKey); err != nil {
		s.logger.Error("finish run failed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("dataset", datasetKey),
			zap.Error(err))
		s.tracker.Fail(tenantID, datasetKey, err.Error())
		return
	}
	s.tracker.Complete(tenantID, datasetKey)
	s.logger.Info("finish run completed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("dataset", datasetKey))
}

func (s *FinishService) execute(ctx context.Context, tenantID uuid.UUID, datasetKey string) error {
	survivors, failed, err := s.drainIntents(ctx, tenantID, datasetKey)
	if err != nil {
		return err
	}
	if err := s.purgeProcessed(ctx, tenantID, datasetKey, failed); err != nil {
		return err
	}
	if err := s.applyOverrides(ctx, tenantID, datasetKey, survivors, failed); err != nil {
		return err
	}
	if err := s.applyRemovals(ctx, tenantID, datasetKey, failed); err != nil {
		return err
	}
	return s.cleanup(ctx, tenantID, datasetKey, failed)
}

// drainIntents executes pending intents oldest first. Within a group
// each successful merge folds the CRM-returned id forward: the next
// intent for that group targets the id the CRM says now survives. One
// pair's failure never stops the rest; the returned map carries the
// final survivor id per group for the override step.
func (s *FinishService) drainIntents(ctx context.Context, tenantID uuid.UUID, datasetKey string) (map[uuid.UUID]string, int, error) {
	pending, err := s.intents.FindPendingByScope(ctx, tenantID, datasetKey)
	if err != nil {
		return nil, 0, err
	}

	survivors := make(map[uuid.UUID]string)
	mergedGroups := make(map[uuid.UUID]struct{})
	done, failed := 0, 0

	batchSize := s.cfg.FinishBatchSize
	if batchSize <= 0 {
		batchSize = len(pending)
	}

	for i := range pending {
		intent := &pending[i]

		current, ok := survivors[intent.GroupID]
		if !ok {
			// A prior run may have merged part of this group before
			// stopping; the override row remembers the id the CRM
			// assigned, so re-entry resumes the chain instead of
			// targeting the staged id the CRM no longer knows.
			current = intent.SurvivorExternalID
			if resumed, err := s.chainedSurvivor(ctx, intent.GroupID); err != nil {
				return nil, failed, err
			} else if resumed != "" {
				current = resumed
			}
			survivors[intent.GroupID] = current
		}

		mergedID, err := s.crm.MergeContacts(ctx, tenantID, current, intent.AbsorbedExternalID)
		if err != nil {
			failed++
			s.logger.Warn("merge intent failed",
				zap.String("group_id", intent.GroupID.String()),
				zap.String("survivor", current),
				zap.String("absorbed", intent.AbsorbedExternalID),
				zap.Error(err))
			if err := intent.Fail(); err != nil {
				return nil, failed, err
			}
		} else {
			done++
			survivors[intent.GroupID] = mergedID
			// The purge step deletes the completed intents that carried
			// the chain, so a re-entered run can only learn the final id
			// from the override row.
			if mergedID != current {
				if err := s.persistChainedSurvivor(ctx, intent.GroupID, mergedID); err != nil {
					return nil, failed, err
				}
			}
			if err := intent.Complete(); err != nil {
				return nil, failed, err
			}
			if _, flipped := mergedGroups[intent.GroupID]; !flipped {
				if err := s.flipGroupMerged(ctx, tenantID, intent.GroupID); err != nil {
					return nil, failed, err
				}
				mergedGroups[intent.GroupID] = struct{}{}
			}
		}

		if err := s.intents.Save(ctx, intent); err != nil {
			return nil, failed, err
		}
		s.tracker.Update(tenantID, datasetKey, progress.PhaseMerging, done, failed)

		if i+1 < len(pending) {
			if (i+1)%batchSize == 0 {
				s.pause(ctx, s.interBatchDelay)
			} else {
				s.pause(ctx, s.interRequestDelay)
			}
		}
	}
	return survivors, failed, nil
}

// chainedSurvivor returns the persisted chained id for the group, or
// empty when no chained merge has happened yet
func (s *FinishService) chainedSurvivor(ctx context.Context, groupID uuid.UUID) (string, error) {
	override, err := s.overrides.FindByGroup(ctx, groupID)
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return override.ChainedExternalID, nil
}

func (s *FinishService) persistChainedSurvivor(ctx context.Context, groupID uuid.UUID, externalID string) error {
	override, err := s.overrides.FindByGroup(ctx, groupID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	if override.Target() == externalID {
		return nil
	}
	override.RetargetSurvivor(externalID)
	return s.overrides.Save(ctx, override)
}

func (s *FinishService) flipGroupMerged(ctx context.Context, tenantID, groupID uuid.UUID) error {
	group, err := s.groups.FindByIDForTenant(ctx, tenantID, groupID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	group.MarkMerged()
	return s.groups.Save(ctx, group)
}

func (s *FinishService) purgeProcessed(ctx context.Context, tenantID uuid.UUID, datasetKey string, failed int) error {
	s.tracker.Update(tenantID, datasetKey, progress.PhaseFlagging, 0, failed)
	return s.intents.DeleteProcessedByScope(ctx, tenantID, datasetKey)
}

// applyOverrides pushes the chosen field values to the CRM and mirrors
// them locally. When the CRM rejects an update because a property does
// not exist yet, the property is provisioned once and the update
// retried once.
func (s *FinishService) applyOverrides(ctx context.Context, tenantID uuid.UUID, datasetKey string, survivors map[uuid.UUID]string, failed int) error {
	overrides, err := s.overrides.FindByScope(ctx, tenantID, datasetKey)
	if err != nil {
		return err
	}
	s.tracker.Update(tenantID, datasetKey, progress.PhaseUpdating, 0, failed)

	for i, override := range overrides {
		fields, err := override.FieldValues()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			s.tracker.Update(tenantID, datasetKey, progress.PhaseUpdating, i+1, failed)
			continue
		}

		target := override.Target()
		if chained, ok := survivors[override.GroupID]; ok {
			target = chained
		}

		if err := s.updateWithProvision(ctx, tenantID, target, fields); err != nil {
			return fmt.Errorf("apply override for group %s: %w", override.GroupID, err)
		}

		err = s.contacts.UpdateByExternalID(ctx, tenantID, datasetKey, override.SurvivorExternalID, func(c *contact.Contact) error {
			return c.ApplyFieldValues(fields)
		})
		if err != nil && !isNotFound(err) {
			return err
		}
		s.tracker.Update(tenantID, datasetKey, progress.PhaseUpdating, i+1, failed)
	}
	return nil
}

func (s *FinishService) updateWithProvision(ctx context.Context, tenantID uuid.UUID, externalID string, fields map[string]string) error {
	err := s.crm.UpdateContact(ctx, tenantID, externalID, fields)
	if err == nil {
		return nil
	}
	var remote *crm.RemoteError
	if !errors.As(err, &remote) || !remote.IsUnknownProperty() {
		return err
	}

	s.logger.Info("provisioning missing CRM properties", zap.String("external_id", externalID))
	for name := range fields {
		exists, err := s.crm.PropertyExists(ctx, tenantID, name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := s.crm.CreateProperty(ctx, tenantID, name, name); err != nil {
			return err
		}
	}
	return s.crm.UpdateContact(ctx, tenantID, externalID, fields)
}

// applyRemovals deletes marked contacts from the CRM. A contact the
// CRM no longer knows counts as removed.
func (s *FinishService) applyRemovals(ctx context.Context, tenantID uuid.UUID, datasetKey string, failed int) error {
	marks, err := s.marks.FindByScope(ctx, tenantID, datasetKey)
	if err != nil {
		return err
	}
	s.tracker.Update(tenantID, datasetKey, progress.PhaseDeleting, 0, failed)

	for i, mark := range marks {
		err := s.crm.DeleteContact(ctx, tenantID, mark.ContactExternalID)
		if err != nil {
			var remote *crm.RemoteError
			if !errors.As(err, &remote) || remote.StatusCode != http.StatusNotFound {
				return fmt.Errorf("delete contact %s: %w", mark.ContactExternalID, err)
			}
		}
		s.tracker.Update(tenantID, datasetKey, progress.PhaseDeleting, i+1, failed)
	}
	return nil
}

// cleanup drops the scope's working copy: every contact row, the member
// lists of its groups, and the override and mark side tables. Flagged
// group rows stay behind for audit.
func (s *FinishService) cleanup(ctx context.Context, tenantID uuid.UUID, datasetKey string, failed int) error {
	s.tracker.Update(tenantID, datasetKey, progress.PhaseCleanup, 0, failed)

	if err := s.contacts.DeleteByScope(ctx, tenantID, datasetKey); err != nil {
		return err
	}
	if err := s.groups.PruneMembersByScope(ctx, tenantID, datasetKey); err != nil {
		return err
	}
	if err := s.overrides.DeleteByScope(ctx, tenantID, datasetKey); err != nil {
		return err
	}
	return s.marks.DeleteByScope(ctx, tenantID, datasetKey)
}

func (s *FinishService) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
