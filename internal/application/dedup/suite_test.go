package dedup

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mergedesk/backend/internal/domain/contact"
	domain "github.com/mergedesk/backend/internal/domain/dedup"
	"github.com/mergedesk/backend/internal/domain/job"
	"github.com/mergedesk/backend/internal/infrastructure/config"
	"github.com/mergedesk/backend/internal/infrastructure/crm"
	"github.com/mergedesk/backend/internal/infrastructure/persistence"
	"github.com/mergedesk/backend/internal/infrastructure/persistence/models"
	"github.com/mergedesk/backend/internal/infrastructure/progress"
	"github.com/mergedesk/backend/internal/infrastructure/runlock"
)

const testDataset = "crm-2026"

type mergeCall struct {
	primary  string
	absorbed string
}

type updateCall struct {
	externalID string
	properties map[string]string
}

// fakeCRM is an in-memory stand-in for the CRM gateway. Behavior is
// tweaked per test through the error hooks and the missing-property
// set.
type fakeCRM struct {
	mu           sync.Mutex
	mergeCalls   []mergeCall
	updateCalls  []updateCall
	deleteCalls  []string
	createdProps []string
	mergeSeq     int

	mergeErr     func(primary, absorbed string) error
	updateErr    func(externalID string) error
	deleteErr    func(externalID string) error
	missingProps map[string]bool
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{missingProps: map[string]bool{}}
}

func (f *fakeCRM) MergeContacts(_ context.Context, _ uuid.UUID, primaryID, toMergeID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mergeCalls = append(f.mergeCalls, mergeCall{primary: primaryID, absorbed: toMergeID})
	if f.mergeErr != nil {
		if err := f.mergeErr(primaryID, toMergeID); err != nil {
			return "", err
		}
	}
	f.mergeSeq++
	return fmt.Sprintf("m-%d", f.mergeSeq), nil
}

func (f *fakeCRM) UpdateContact(_ context.Context, _ uuid.UUID, externalID string, properties map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls = append(f.updateCalls, updateCall{externalID: externalID, properties: properties})
	if f.updateErr != nil {
		if err := f.updateErr(externalID); err != nil {
			return err
		}
	}
	for name := range properties {
		if f.missingProps[name] {
			return &crm.RemoteError{
				StatusCode: http.StatusBadRequest,
				Category:   "VALIDATION_ERROR",
				Message:    "PROPERTY_DOESNT_EXIST: " + name,
			}
		}
	}
	return nil
}

func (f *fakeCRM) DeleteContact(_ context.Context, _ uuid.UUID, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls = append(f.deleteCalls, externalID)
	if f.deleteErr != nil {
		return f.deleteErr(externalID)
	}
	return nil
}

func (f *fakeCRM) PropertyExists(_ context.Context, _ uuid.UUID, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.missingProps[name], nil
}

func (f *fakeCRM) CreateProperty(_ context.Context, _ uuid.UUID, name, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdProps = append(f.createdProps, name)
	delete(f.missingProps, name)
	return nil
}

func (f *fakeCRM) merges() []mergeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]mergeCall, len(f.mergeCalls))
	copy(out, f.mergeCalls)
	return out
}

func (f *fakeCRM) updates() []updateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]updateCall, len(f.updateCalls))
	copy(out, f.updateCalls)
	return out
}

type fixture struct {
	tenantID uuid.UUID

	contacts  contact.Repository
	groups    domain.GroupRepository
	intents   domain.MergeIntentRepository
	overrides domain.FieldOverrideRepository
	marks     domain.RemovalMarkRepository
	actions   job.ActionRepository

	crm     *fakeCRM
	lock    *runlock.InMemoryRunLock
	tracker *progress.Tracker

	detection *DetectionService
	merge     *MergeService
	removal   *RemovalService
	finish    *FinishService
	query     *QueryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&contact.Contact{},
		&models.GroupModel{},
		&domain.MergeIntent{},
		&domain.FieldOverride{},
		&domain.RemovalMark{},
		&job.Action{},
	))
	require.NoError(t, db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_contact_scope_external ON contacts (tenant_id, dataset_key, external_id)",
	).Error)

	f := &fixture{
		tenantID:  uuid.New(),
		contacts:  persistence.NewGormContactRepository(db),
		groups:    persistence.NewGormGroupRepository(db),
		intents:   persistence.NewGormMergeIntentRepository(db),
		overrides: persistence.NewGormFieldOverrideRepository(db),
		marks:     persistence.NewGormRemovalMarkRepository(db),
		actions:   persistence.NewGormActionRepository(db),
		crm:       newFakeCRM(),
		lock:      runlock.NewInMemoryRunLock(),
		tracker:   progress.NewTracker(),
	}

	cfg := config.DedupConfig{GroupBatchSize: 50, FinishBatchSize: 2}
	f.detection = NewDetectionService(f.contacts, f.groups, f.intents, f.overrides, f.marks, f.actions, cfg, nil)
	f.merge = NewMergeService(f.contacts, f.groups, f.intents, f.overrides, f.marks, nil)
	f.removal = NewRemovalService(f.contacts, f.groups, f.marks, nil)
	f.finish = NewFinishService(f.contacts, f.groups, f.intents, f.overrides, f.marks, f.crm, f.lock, f.tracker, cfg, nil)
	f.finish.interRequestDelay = 0
	f.finish.interBatchDelay = 0
	f.query = NewQueryService(f.contacts, f.groups, f.marks)
	return f
}

// seedContact persists one contact and returns it
func (f *fixture) seedContact(t *testing.T, externalID, firstName, email, phone, company string) *contact.Contact {
	t.Helper()
	ct, err := contact.NewContact(f.tenantID, testDataset, externalID)
	require.NoError(t, err)
	require.NoError(t, ct.SetIdentity(firstName, "", email, phone, company))
	require.NoError(t, f.contacts.UpsertBatch(context.Background(), []*contact.Contact{ct}))
	return ct
}

// seedGroup persists an open group over the given contacts
func (f *fixture) seedGroup(t *testing.T, members ...*contact.Contact) *domain.DuplicateGroup {
	t.Helper()
	ids := make([]uuid.UUID, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	group, err := domain.NewDuplicateGroup(f.tenantID, testDataset, ids)
	require.NoError(t, err)
	require.NoError(t, f.groups.Save(context.Background(), group))
	return group
}
