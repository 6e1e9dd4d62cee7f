package users

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/crewboard/crewboard-backend/pkg/db/models"
)

const usersDDL = `
CREATE TABLE users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	name TEXT,
	created_at DATETIME
)`

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, conn.Exec(usersDDL).Error)
	return conn
}

func seedUser(t *testing.T, db *gorm.DB, email string, created time.Time) models.User {
	t.Helper()
	user := models.User{
		ID:        uuid.New(),
		Email:     email,
		Name:      "Crew Member",
		CreatedAt: created,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func TestFindByID(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)

	user := seedUser(t, db, "first@crewboard.io", time.Now())

	found, err := repo.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, user.Email, found.Email)

	_, err = repo.FindByID(context.Background(), uuid.New())
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestEarliestCreatedIsDeterministic(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	base := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)

	oldest := seedUser(t, db, "founder@crewboard.io", base)
	seedUser(t, db, "later@crewboard.io", base.Add(48*time.Hour))
	seedUser(t, db, "latest@crewboard.io", base.Add(96*time.Hour))

	found, err := repo.EarliestCreated(context.Background())
	require.NoError(t, err)
	require.Equal(t, oldest.ID, found.ID)
}

func TestEarliestCreatedEmptyTable(t *testing.T) {
	repo := NewRepository(newTestDB(t))

	_, err := repo.EarliestCreated(context.Background())
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
