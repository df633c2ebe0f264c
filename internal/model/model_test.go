package model

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// The schema must migrate on the pure-Go sqlite driver as well as postgres;
// IDs are assigned application-side in BeforeCreate, not by a database
// default.
func TestSchemaMigratesOnSQLite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&User{},
		&RefreshToken{},
		&Account{},
		&Matter{},
		&ActivityLine{},
		&AuditLog{},
	))

	user := &User{Username: "mreyes", Email: "mreyes@firm.test", Password: "x", Role: RoleStaff}
	require.NoError(t, db.Create(user).Error)
	assert.NotEqual(t, uuid.Nil, user.ID)

	account := &Account{Title: "Acme", Category: AccountLitigation}
	require.NoError(t, db.Create(account).Error)
	assert.NotEqual(t, uuid.Nil, account.ID)
}
