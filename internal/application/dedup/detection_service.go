package dedup

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mergedesk/backend/internal/domain/contact"
	domain "github.com/mergedesk/backend/internal/domain/dedup"
	"github.com/mergedesk/backend/internal/domain/job"
	"github.com/mergedesk/backend/internal/domain/shared"
	"github.com/mergedesk/backend/internal/infrastructure/config"
)

// DetectionService runs condition-driven duplicate detection over a
// dataset's contact store and persists the resulting groups.
type DetectionService struct {
	contacts  contact.Repository
	groups    domain.GroupRepository
	intents   domain.MergeIntentRepository
	overrides domain.FieldOverrideRepository
	marks     domain.RemovalMarkRepository
	actions   job.ActionRepository
	cfg       config.DedupConfig
	logger    *zap.Logger
}

// NewDetectionService creates a new detection service
func NewDetectionService(
	contacts contact.Repository,
	groups domain.GroupRepository,
	intents domain.MergeIntentRepository,
	overrides domain.FieldOverrideRepository,
	marks domain.RemovalMarkRepository,
	actions job.ActionRepository,
	cfg config.DedupConfig,
	logger *zap.Logger,
) *DetectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DetectionService{
		contacts:  contacts,
		groups:    groups,
		intents:   intents,
		overrides: overrides,
		marks:     marks,
		actions:   actions,
		cfg:       cfg,
		logger:    logger,
	}
}

// StartDetection launches a detection run in the background, tracked by
// a job action. Only one action may occupy a scope at a time.
func (s *DetectionService) StartDetection(ctx context.Context, tenantID uuid.UUID, req DetectRequest) (*job.Action, error) {
	inFlight, err := s.actions.InFlightExists(ctx, tenantID, req.DatasetKey)
	if err != nil {
		return nil, err
	}
	if inFlight {
		return nil, shared.NewDomainError("ACTION_IN_FLIGHT", "Another action is already running for this dataset")
	}

	conditions := toConditions(req.Conditions)
	if _, err := domain.NormalizeConditions(conditions); err != nil {
		return nil, err
	}

	action, err := job.NewAction(tenantID, req.DatasetKey, job.ActionTypeDetect)
	if err != nil {
		return nil, err
	}
	if err := s.actions.Save(ctx, action); err != nil {
		return nil, err
	}

	go s.runDetection(context.WithoutCancel(ctx), action, conditions)
	return action, nil
}

func (s *DetectionService) runDetection(ctx context.Context, action *job.Action, conditions []domain.Condition) {
	if err := action.Start(); err != nil {
		s.logger.Error("detection action start failed", zap.Error(err))
		return
	}
	if err := s.actions.Save(ctx, action); err != nil {
		s.logger.Error("detection action save failed", zap.Error(err))
		return
	}

	result, err := s.Detect(ctx, action.TenantID, action.DatasetKey, conditions)
	if err != nil {
		s.logger.Error("detection run failed",
			zap.String("tenant_id", action.TenantID.String()),
			zap.String("dataset", action.DatasetKey),
			zap.Error(err))
		_ = action.Fail(err.Error())
		if saveErr := s.actions.Save(ctx, action); saveErr != nil {
			s.logger.Error("detection action save failed", zap.Error(saveErr))
		}
		return
	}

	_ = action.Complete(result.ContactsGrouped)
	if err := s.actions.Save(ctx, action); err != nil {
		s.logger.Error("detection action save failed", zap.Error(err))
	}
}

// Detect runs duplicate detection synchronously: the mandatory email
// condition first, then the caller's conditions in their given order.
// Prior open groups and any staged-but-unexecuted decisions for the
// scope are cleared before the run, so re-running with the same inputs
// yields the same groups.
func (s *DetectionService) Detect(ctx context.Context, tenantID uuid.UUID, datasetKey string, conditions []domain.Condition) (*DetectResult, error) {
	conds, err := domain.NormalizeConditions(conditions)
	if err != nil {
		return nil, err
	}

	if err := s.clearPriorRun(ctx, tenantID, datasetKey); err != nil {
		return nil, err
	}

	pool, err := s.candidatePool(ctx, tenantID, datasetKey)
	if err != nil {
		return nil, err
	}

	builders := buildGroups(pool, conds)

	grouped := 0
	groups := make([]*domain.DuplicateGroup, 0, len(builders))
	for _, b := range builders {
		group, err := domain.NewDuplicateGroup(tenantID, datasetKey, b.members)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
		grouped += len(b.members)
	}

	if err := s.persistBatches(ctx, groups); err != nil {
		return nil, err
	}

	s.logger.Info("duplicate detection completed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("dataset", datasetKey),
		zap.Int("conditions", len(conds)),
		zap.Int("groups", len(groups)),
		zap.Int("contacts_grouped", grouped))

	return &DetectResult{
		GroupsCreated:     len(groups),
		ContactsGrouped:   grouped,
		ConditionsApplied: len(conds),
	}, nil
}

// clearPriorRun deletes the prior open groups along with staged
// decisions that reference them. Detached removal marks survive: they
// record standalone removals still awaiting execution.
func (s *DetectionService) clearPriorRun(ctx context.Context, tenantID uuid.UUID, datasetKey string) error {
	if err := s.intents.DeletePendingByScope(ctx, tenantID, datasetKey); err != nil {
		return err
	}
	if err := s.overrides.DeleteByScope(ctx, tenantID, datasetKey); err != nil {
		return err
	}
	marks, err := s.marks.FindByScope(ctx, tenantID, datasetKey)
	if err != nil {
		return err
	}
	for _, mark := range marks {
		if mark.DetachedFromGroup {
			continue
		}
		if err := s.marks.Delete(ctx, mark.ID); err != nil {
			return err
		}
	}
	return s.groups.DeleteOpenByScope(ctx, tenantID, datasetKey)
}

// candidatePool loads the scope's contacts minus those already detached
// by a standalone removal mark.
func (s *DetectionService) candidatePool(ctx context.Context, tenantID uuid.UUID, datasetKey string) ([]contact.Contact, error) {
	contacts, err := s.contacts.FindAllByScope(ctx, tenantID, datasetKey)
	if err != nil {
		return nil, err
	}
	marks, err := s.marks.FindByScope(ctx, tenantID, datasetKey)
	if err != nil {
		return nil, err
	}
	detached := make(map[uuid.UUID]struct{})
	for _, mark := range marks {
		if mark.DetachedFromGroup {
			detached[mark.ContactID] = struct{}{}
		}
	}
	if len(detached) == 0 {
		return contacts, nil
	}
	pool := make([]contact.Contact, 0, len(contacts))
	for _, c := range contacts {
		if _, gone := detached[c.ID]; gone {
			continue
		}
		pool = append(pool, c)
	}
	return pool, nil
}

func (s *DetectionService) persistBatches(ctx context.Context, groups []*domain.DuplicateGroup) error {
	batchSize := s.cfg.GroupBatchSize
	if batchSize <= 0 {
		batchSize = len(groups)
	}
	if len(groups) == 0 {
		return nil
	}
	total := (len(groups) + batchSize - 1) / batchSize
	for i := 0; i < len(groups); i += batchSize {
		end := i + batchSize
		if end > len(groups) {
			end = len(groups)
		}
		if err := s.groups.SaveBatch(ctx, groups[i:end]); err != nil {
			batch := i/batchSize + 1
			s.logger.Error("group batch persist failed",
				zap.Int("batch", batch),
				zap.Int("total_batches", total),
				zap.Error(err))
			return shared.NewDomainError("GROUP_PERSIST_FAILED",
				fmt.Sprintf("Failed to persist group batch %d of %d", batch, total))
		}
	}
	return nil
}

// groupBuilder accumulates one group's membership during a run
type groupBuilder struct {
	members []uuid.UUID
}

// buildGroups partitions the candidate pool by each condition in turn.
// The email condition comes first, so its groups claim their contacts
// before any caller condition is considered. For later conditions each
// partition is computed over the full pool; the unclaimed subset forms
// a new group when it has two or more contacts, attaches to the
// existing group of a claimed partition-mate when it has exactly one,
// and is dropped otherwise. The result is disjoint groups of size two
// or more.
func buildGroups(pool []contact.Contact, conds []domain.Condition) []*groupBuilder {
	claimed := make(map[uuid.UUID]*groupBuilder)
	var builders []*groupBuilder

	for _, cond := range conds {
		partitions := make(map[string][]*contact.Contact)
		keys := make([]string, 0)
		for i := range pool {
			c := &pool[i]
			key, ok := cond.Key(c)
			if !ok {
				continue
			}
			if _, seen := partitions[key]; !seen {
				keys = append(keys, key)
			}
			partitions[key] = append(partitions[key], c)
		}
		sort.Strings(keys)

		for _, key := range keys {
			part := partitions[key]
			if len(part) < 2 {
				continue
			}
			var unclaimed []uuid.UUID
			for _, c := range part {
				if _, taken := claimed[c.ID]; !taken {
					unclaimed = append(unclaimed, c.ID)
				}
			}
			switch {
			case len(unclaimed) >= 2:
				b := &groupBuilder{members: unclaimed}
				builders = append(builders, b)
				for _, id := range unclaimed {
					claimed[id] = b
				}
			case len(unclaimed) == 1:
				// The rest of the partition is already grouped; pull
				// the straggler into the first group a partition-mate
				// belongs to. With no such group the singleton is
				// dropped: a group of one is not a duplicate set.
				var target *groupBuilder
				for _, c := range part {
					if b, ok := claimed[c.ID]; ok {
						target = b
						break
					}
				}
				if target != nil {
					target.members = append(target.members, unclaimed[0])
					claimed[unclaimed[0]] = target
				}
			}
		}
	}
	return builders
}
