package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// The per-form roster and attempt relations are LIST partitions of two
// typed parent tables (see migrations). Provisioning a form means creating
// its pair of partitions; the columns and constraints live on the parents,
// so no schema is ever assembled from request data — only the partition
// name, which is derived from the form UUID through sanitizeFormID.

// sanitizeFormID maps a form UUID onto a safe SQL identifier fragment:
// every character outside [a-z0-9] becomes an underscore. Deterministic,
// so re-provisioning (e.g. after a clone) targets the same names.
func sanitizeFormID(formID uuid.UUID) string {
	var b strings.Builder
	for _, r := range strings.ToLower(formID.String()) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// RosterPartitionName returns the roster partition name for a form.
func RosterPartitionName(formID uuid.UUID) string {
	return "form_roster_" + sanitizeFormID(formID)
}

// AttemptPartitionName returns the attempt partition name for a form.
func AttemptPartitionName(formID uuid.UUID) string {
	return "form_attempts_" + sanitizeFormID(formID)
}

// ProvisionForm creates the per-form roster and attempt partitions inside
// the caller's transaction, so a failed provision rolls back the form
// insert as well. CREATE TABLE IF NOT EXISTS makes the operation
// idempotent for clone flows that re-run it.
func ProvisionForm(ctx context.Context, tx pgx.Tx, formID uuid.UUID) error {
	stmts := []string{
		fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s PARTITION OF form_roster FOR VALUES IN ('%s')`,
			RosterPartitionName(formID), formID,
		),
		fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s PARTITION OF form_attempts FOR VALUES IN ('%s')`,
			AttemptPartitionName(formID), formID,
		),
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("provision form %s: %w", formID, err)
		}
	}
	return nil
}

// DropFormPartitions removes a form's partitions. Called in the same
// transaction as the form-definition delete so the cascade lifecycle of
// the per-form relations matches the form row itself.
func DropFormPartitions(ctx context.Context, tx pgx.Tx, formID uuid.UUID) error {
	stmts := []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, AttemptPartitionName(formID)),
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, RosterPartitionName(formID)),
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("drop partitions for form %s: %w", formID, err)
		}
	}
	return nil
}
