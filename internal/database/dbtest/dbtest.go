// Package dbtest provides a migrated in-memory SQLite database for tests.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"fitrank/backend/internal/database"
	"fitrank/backend/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

// New returns a fresh, migrated database private to t. A single connection is
// kept open so the in-memory database lives as long as the test and concurrent
// transactions serialize instead of failing with SQLITE_BUSY.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=1", name, seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateUsers inserts users with the given usernames and returns them in order.
func CreateUsers(t testing.TB, db *gorm.DB, usernames ...string) []models.User {
	t.Helper()

	users := make([]models.User, 0, len(usernames))
	for _, name := range usernames {
		u := models.User{Username: name, Email: name + "@example.com", Level: 1}
		if err := db.Create(&u).Error; err != nil {
			t.Fatalf("create user %s: %v", name, err)
		}
		users = append(users, u)
	}
	return users
}

// Count returns the number of rows of model matching the optional where clause.
func Count(t testing.TB, db *gorm.DB, model any, where ...any) int64 {
	t.Helper()

	q := db.Model(model)
	if len(where) > 0 {
		q = q.Where(where[0], where[1:]...)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
