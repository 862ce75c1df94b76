package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mergedesk/backend/internal/domain/contact"
	"github.com/mergedesk/backend/internal/domain/job"
	"github.com/mergedesk/backend/internal/domain/shared"
	"github.com/mergedesk/backend/internal/infrastructure/crm"
)

// Structured identity properties; everything else the CRM sends lands
// in the contact's open attribute map.
var identityProperties = map[string]struct{}{
	"firstname": {},
	"lastname":  {},
	"email":     {},
	"phone":     {},
	"company":   {},
}

// importProperties is the property set requested on every page fetch.
// Sorted so the query string stays stable across requests.
var importProperties = func() []string {
	names := make([]string, 0, len(identityProperties))
	for name := range identityProperties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}()

// ContactLister is the slice of the CRM client the importer needs
type ContactLister interface {
	ListContacts(ctx context.Context, tenantID uuid.UUID, after string, properties []string) (*crm.ContactPage, error)
}

// ImportService mirrors a tenant's CRM contacts into the local store.
// Re-importing a dataset upserts by external id, so a refresh never
// duplicates rows.
type ImportService struct {
	contacts contact.Repository
	actions  job.ActionRepository
	crm      ContactLister
	logger   *zap.Logger
}

// NewImportService creates a new import service
func NewImportService(
	contacts contact.Repository,
	actions job.ActionRepository,
	lister ContactLister,
	logger *zap.Logger,
) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{
		contacts: contacts,
		actions:  actions,
		crm:      lister,
		logger:   logger,
	}
}

// StartImport launches an import run in the background, tracked by a
// job action. Only one action may occupy a scope at a time.
func (s *ImportService) StartImport(ctx context.Context, tenantID uuid.UUID, datasetKey string) (*job.Action, error) {
	inFlight, err := s.actions.InFlightExists(ctx, tenantID, datasetKey)
	if err != nil {
		return nil, err
	}
	if inFlight {
		return nil, shared.NewDomainError("ACTION_IN_FLIGHT", "Another action is already running for this dataset")
	}

	action, err := job.NewAction(tenantID, datasetKey, job.ActionTypeImport)
	if err != nil {
		return nil, err
	}
	if err := s.actions.Save(ctx, action); err != nil {
		return nil, err
	}

	go s.runImport(context.WithoutCancel(ctx), action)
	return action, nil
}

// Dispatch re-executes a retried import action for the sweep
func (s *ImportService) Dispatch(ctx context.Context, action *job.Action) error {
	if action.Type != job.ActionTypeImport {
		return shared.NewDomainError("INVALID_ACTION_TYPE", fmt.Sprintf("Cannot re-dispatch action type: %s", action.Type))
	}
	s.runImport(ctx, action)
	return nil
}

// Status returns the most recent import action for the scope
func (s *ImportService) Status(ctx context.Context, tenantID uuid.UUID, datasetKey string) (*job.Action, error) {
	return s.actions.FindLatestByScope(ctx, tenantID, datasetKey, job.ActionTypeImport)
}

func (s *ImportService) runImport(ctx context.Context, action *job.Action) {
	if err := action.Start(); err != nil {
		s.logger.Error("import action start failed", zap.Error(err))
		return
	}
	if err := s.actions.Save(ctx, action); err != nil {
		s.logger.Error("import action save failed", zap.Error(err))
		return
	}

	total, err := s.fetchAll(ctx, action.TenantID, action.DatasetKey)
	if err != nil {
		s.logger.Error("import run failed",
			zap.String("tenant_id", action.TenantID.String()),
			zap.String("dataset", action.DatasetKey),
			zap.Error(err))
		_ = action.Fail(err.Error())
		if saveErr := s.actions.Save(ctx, action); saveErr != nil {
			s.logger.Error("import action save failed", zap.Error(saveErr))
		}
		return
	}

	_ = action.Complete(total)
	if err := s.actions.Save(ctx, action); err != nil {
		s.logger.Error("import action save failed", zap.Error(err))
		return
	}
	s.logger.Info("import completed",
		zap.String("tenant_id", action.TenantID.String()),
		zap.String("dataset", action.DatasetKey),
		zap.Int("total", total))
}

// fetchAll walks the CRM's contact pages and upserts each page as one
// batch
func (s *ImportService) fetchAll(ctx context.Context, tenantID uuid.UUID, datasetKey string) (int, error) {
	total := 0
	after := ""
	for {
		page, err := s.crm.ListContacts(ctx, tenantID, after, importProperties)
		if err != nil {
			return total, err
		}

		batch := make([]*contact.Contact, 0, len(page.Contacts))
		for _, remote := range page.Contacts {
			ct, err := s.toContact(tenantID, datasetKey, remote)
			if err != nil {
				s.logger.Warn("skipping unmappable CRM contact",
					zap.String("external_id", remote.ID),
					zap.Error(err))
				continue
			}
			batch = append(batch, ct)
		}
		if len(batch) > 0 {
			if err := s.contacts.UpsertBatch(ctx, batch); err != nil {
				return total, err
			}
			total += len(batch)
		}

		if page.After == "" {
			return total, nil
		}
		after = page.After
	}
}

func (s *ImportService) toContact(tenantID uuid.UUID, datasetKey string, remote crm.RemoteContact) (*contact.Contact, error) {
	ct, err := contact.NewContact(tenantID, datasetKey, remote.ID)
	if err != nil {
		return nil, err
	}

	err = ct.SetIdentity(
		remote.Properties["firstname"],
		remote.Properties["lastname"],
		remote.Properties["email"],
		remote.Properties["phone"],
		remote.Properties["company"],
	)
	if err != nil {
		// A malformed email must not lose the record; keep the rest of
		// the identity and let the value ride along as an attribute.
		if identErr := ct.SetIdentity(
			remote.Properties["firstname"],
			remote.Properties["lastname"],
			"",
			remote.Properties["phone"],
			remote.Properties["company"],
		); identErr != nil {
			return nil, identErr
		}
	}

	extra := make(map[string]string)
	for name, value := range remote.Properties {
		if _, structured := identityProperties[name]; structured {
			continue
		}
		extra[name] = value
	}
	if err != nil && remote.Properties["email"] != "" {
		extra["email_raw"] = remote.Properties["email"]
	}
	if len(extra) > 0 {
		data, marshalErr := json.Marshal(extra)
		if marshalErr != nil {
			return nil, marshalErr
		}
		if attrErr := ct.SetAttributes(string(data)); attrErr != nil {
			return nil, attrErr
		}
	}

	if !remote.UpdatedAt.IsZero() {
		ct.SetSourceUpdatedAt(remote.UpdatedAt)
	}
	return ct, nil
}
