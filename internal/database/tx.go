package database

import (
	"context"

	"gorm.io/gorm"
)

// AfterCommit registers a callback to run once the surrounding transaction has
// committed. Callbacks never run if the transaction rolls back.
type AfterCommit func(fn func())

// WithTx runs fn in one transaction and, only after a successful commit, runs the
// callbacks fn registered in registration order.
func WithTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB, afterCommit AfterCommit) error) error {
	var hooks []func()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		hooks = hooks[:0]
		return fn(tx, func(h func()) { hooks = append(hooks, h) })
	})
	if err != nil {
		return err
	}
	for _, h := range hooks {
		h()
	}
	return nil
}
