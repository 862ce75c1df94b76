package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mergedesk/backend/internal/domain/contact"
	"github.com/mergedesk/backend/internal/domain/dedup"
	"github.com/mergedesk/backend/internal/domain/job"
	"github.com/mergedesk/backend/internal/infrastructure/persistence/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&contact.Contact{},
		&models.GroupModel{},
		&dedup.MergeIntent{},
		&dedup.FieldOverride{},
		&dedup.RemovalMark{},
		&job.Action{},
	)
	require.NoError(t, err)

	err = db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_contact_scope_external ON contacts (tenant_id, dataset_key, external_id)",
	).Error
	require.NoError(t, err)

	return db
}
