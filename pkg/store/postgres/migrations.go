package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all family access migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create family_accounts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS family_accounts (
					id VARCHAR(64) PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					owner_member_id VARCHAR(64) NOT NULL,
					version BIGINT NOT NULL DEFAULT 1,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     2,
			Description: "Create family_patients table",
			SQL: `
				CREATE TABLE IF NOT EXISTS family_patients (
					id VARCHAR(64) PRIMARY KEY,
					account_id VARCHAR(64) NOT NULL REFERENCES family_accounts(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					relationship VARCHAR(64) NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_family_patients_account_id ON family_patients(account_id);
			`,
		},
		{
			Version:     3,
			Description: "Create family_members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS family_members (
					id VARCHAR(64) PRIMARY KEY,
					account_id VARCHAR(64) NOT NULL REFERENCES family_accounts(id) ON DELETE CASCADE,
					user_id VARCHAR(255),
					name VARCHAR(255) NOT NULL,
					email VARCHAR(255) NOT NULL DEFAULT '',
					relationship VARCHAR(64) NOT NULL DEFAULT '',
					role VARCHAR(32) NOT NULL CHECK (role IN ('account_owner', 'co_admin', 'caregiver', 'viewer')),
					managed_by VARCHAR(64),
					patients_access TEXT[] NOT NULL DEFAULT '{}',
					permissions JSONB NOT NULL DEFAULT '{}',
					status VARCHAR(16) NOT NULL CHECK (status IN ('pending', 'accepted', 'revoked')),
					role_assigned_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_family_members_account_id ON family_members(account_id);
				CREATE INDEX IF NOT EXISTS idx_family_members_user_id ON family_members(user_id);
			`,
		},
		{
			Version:     4,
			Description: "Enforce a single owner and a single accepted membership per user",
			SQL: `
				CREATE UNIQUE INDEX IF NOT EXISTS idx_family_members_single_owner
					ON family_members(account_id) WHERE role = 'account_owner';

				CREATE UNIQUE INDEX IF NOT EXISTS idx_family_members_account_user
					ON family_members(account_id, user_id) WHERE user_id IS NOT NULL AND status = 'accepted';
			`,
		},
		{
			Version:     5,
			Description: "Create family_patient_grants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS family_patient_grants (
					member_id VARCHAR(64) NOT NULL REFERENCES family_members(id) ON DELETE CASCADE,
					patient_id VARCHAR(64) NOT NULL REFERENCES family_patients(id) ON DELETE CASCADE,
					permissions JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (member_id, patient_id)
				);

				CREATE INDEX IF NOT EXISTS idx_family_patient_grants_patient_id ON family_patient_grants(patient_id);
			`,
		},
		{
			Version:     6,
			Description: "Create family_audit_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS family_audit_events (
					id VARCHAR(64) PRIMARY KEY,
					timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
					event_type VARCHAR(100) NOT NULL,
					status VARCHAR(20) NOT NULL,
					actor_user_id VARCHAR(255),
					actor_member_id VARCHAR(64),
					account_id VARCHAR(64),
					resource_type VARCHAR(32),
					resource_id VARCHAR(64),
					request_id VARCHAR(100),
					message TEXT,
					metadata JSONB,
					changes JSONB
				);

				CREATE INDEX IF NOT EXISTS idx_family_audit_events_account ON family_audit_events(account_id, timestamp DESC);
				CREATE INDEX IF NOT EXISTS idx_family_audit_events_type ON family_audit_events(event_type);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB, logger logrus.FieldLogger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS family_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM family_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		log := logger.WithField("version", migration.Version)
		log.Infof("Running migration: %s", migration.Description)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO family_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		log.Info("Migration completed")
	}

	return nil
}
