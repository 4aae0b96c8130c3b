// Package postgres implements store.Store on PostgreSQL using lib/pq.
//
// Each UpdateAccount call runs in one transaction: the account row is locked
// with SELECT ... FOR UPDATE, the callback runs against a snapshot, and the
// write set is applied followed by a conditional version bump. A partial
// unique index guarantees at most one owner per account even against writers
// that bypass this package.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/weightlossprojectionlab/familyaccess/pkg/family"
	"github.com/weightlossprojectionlab/familyaccess/pkg/store"
)

// PoolConfig controls the database/sql connection pool
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPoolConfig returns the pool settings used when none are configured
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// Store is a PostgreSQL-backed store.Store
type Store struct {
	db     *sql.DB
	logger logrus.FieldLogger
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// New wraps an open database handle
func New(db *sql.DB, logger logrus.FieldLogger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{
		db:     db,
		logger: logger.WithField("component", "postgres_store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Open connects to PostgreSQL and verifies the connection
func Open(ctx context.Context, dsn string, pool PoolConfig, logger logrus.FieldLogger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(db, logger), nil
}

// DB returns the underlying handle for health checks and migrations
func (s *Store) DB() *sql.DB {
	return s.db
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const accountColumns = `id, name, owner_member_id, version, created_at, updated_at`

const memberColumns = `id, account_id, COALESCE(user_id, ''), name, email, relationship, role,
	COALESCE(managed_by, ''), patients_access, permissions, status, role_assigned_at, created_at, updated_at`

const patientColumns = `id, account_id, name, relationship, created_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row scanner) (*family.Account, error) {
	var a family.Account
	if err := row.Scan(&a.ID, &a.Name, &a.OwnerMemberID, &a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanPatient(row scanner) (*family.Patient, error) {
	var p family.Patient
	if err := row.Scan(&p.ID, &p.AccountID, &p.Name, &p.Relationship, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanMember(row scanner) (*family.FamilyMember, error) {
	var (
		m              family.FamilyMember
		access         []string
		permissions    []byte
		role, status   string
		roleAssignedAt sql.NullTime
	)
	err := row.Scan(
		&m.ID, &m.AccountID, &m.UserID, &m.Name, &m.Email, &m.Relationship, &role,
		&m.ManagedBy, pq.Array(&access), &permissions, &status, &roleAssignedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Role = family.Role(role)
	m.Status = family.MemberStatus(status)
	m.PatientsAccess = family.PatientScope(access)
	if m.PatientsAccess == nil {
		m.PatientsAccess = family.EveryPatient()
	}
	if roleAssignedAt.Valid {
		m.RoleAssignedAt = roleAssignedAt.Time
	}
	if len(permissions) > 0 {
		if err := json.Unmarshal(permissions, &m.Permissions); err != nil {
			return nil, fmt.Errorf("failed to decode permissions for member %s: %w", m.ID, err)
		}
	}
	return &m, nil
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (*family.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM family_accounts WHERE id = $1`, accountID)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, family.Errorf(family.ErrAccountNotFound, "account %s not found", accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (s *Store) GetPatient(ctx context.Context, patientID string) (*family.Patient, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+patientColumns+` FROM family_patients WHERE id = $1`, patientID)
	p, err := scanPatient(row)
	if err == sql.ErrNoRows {
		return nil, family.Errorf(family.ErrPatientNotFound, "patient %s not found", patientID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return p, nil
}

func (s *Store) ListPatients(ctx context.Context, accountID string) ([]*family.Patient, error) {
	if err := s.accountExists(ctx, s.db, accountID); err != nil {
		return nil, err
	}
	return listPatients(ctx, s.db, accountID)
}

func (s *Store) ListMembers(ctx context.Context, accountID string) ([]*family.FamilyMember, error) {
	if err := s.accountExists(ctx, s.db, accountID); err != nil {
		return nil, err
	}
	return listMembers(ctx, s.db, accountID)
}

func (s *Store) GetMember(ctx context.Context, accountID, memberID string) (*family.FamilyMember, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM family_members WHERE account_id = $1 AND id = $2`,
		accountID, memberID,
	)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, family.Errorf(family.ErrMemberNotFound, "member %s not found", memberID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	if err := loadGrants(ctx, s.db, []*family.FamilyMember{m},
		`SELECT member_id, patient_id, permissions FROM family_patient_grants WHERE member_id = $1`, memberID,
	); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) ListMembershipsByUser(ctx context.Context, userID string) ([]*family.FamilyMember, error) {
	if userID == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM family_members WHERE user_id = $1 ORDER BY account_id, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	members, err := collectMembers(rows)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return members, nil
	}

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	if err := loadGrants(ctx, s.db, members,
		`SELECT member_id, patient_id, permissions FROM family_patient_grants WHERE member_id = ANY($1)`, pq.Array(ids),
	); err != nil {
		return nil, err
	}
	return members, nil
}

func (s *Store) CreateAccount(ctx context.Context, account *family.Account, owner *family.FamilyMember) error {
	if account == nil || account.ID == "" {
		return family.Errorf(family.ErrInvalidInput, "account id is required")
	}
	if owner == nil || owner.ID == "" || !owner.IsOwner() {
		return family.Errorf(family.ErrSingleOwnerViolation, "account %s must be created with an owner member", account.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	account.OwnerMemberID = owner.ID
	if account.Version == 0 {
		account.Version = 1
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO family_accounts (id, name, owner_member_id, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		account.ID, account.Name, account.OwnerMemberID, account.Version, account.CreatedAt, account.UpdatedAt,
	); err != nil {
		return mapError("create account", err)
	}

	owner.AccountID = account.ID
	if err := upsertMember(ctx, tx, owner); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapError("commit account", err)
	}
	return nil
}

func (s *Store) UpdateAccount(ctx context.Context, accountID string, fn func(tx store.AccountTx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM family_accounts WHERE id = $1 FOR UPDATE`, accountID)
	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return family.Errorf(family.ErrAccountNotFound, "account %s not found", accountID)
	}
	if err != nil {
		return mapError("lock account", err)
	}

	members, err := listMembers(ctx, tx, accountID)
	if err != nil {
		return err
	}
	patients, err := listPatients(ctx, tx, accountID)
	if err != nil {
		return err
	}

	snap := store.NewSnapshot(account, members, patients)
	if err := fn(snap); err != nil {
		return err
	}
	if !snap.Changed() {
		return nil
	}
	if err := snap.Verify(); err != nil {
		return err
	}

	changes := snap.Changes()
	for _, id := range changes.DeletedMembers {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM family_members WHERE id = $1 AND account_id = $2`, id, accountID,
		); err != nil {
			return mapError("delete member", err)
		}
	}
	for _, p := range changes.SavedPatients {
		if err := upsertPatient(ctx, tx, p, s.now()); err != nil {
			return err
		}
	}
	for _, m := range changes.SavedMembers {
		if err := upsertMember(ctx, tx, m); err != nil {
			return err
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE family_accounts SET version = version + 1, owner_member_id = $2, updated_at = $3
		 WHERE id = $1 AND version = $4`,
		accountID, changes.Account.OwnerMemberID, s.now(), account.Version,
	)
	if err != nil {
		return mapError("bump account version", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return family.ErrConflict
	}

	if err := tx.Commit(); err != nil {
		return mapError("commit account update", err)
	}
	committed = true

	s.logger.WithFields(logrus.Fields{
		"account_id":      accountID,
		"version":         account.Version + 1,
		"members_saved":   len(changes.SavedMembers),
		"members_deleted": len(changes.DeletedMembers),
		"patients_saved":  len(changes.SavedPatients),
	}).Debug("Account updated")
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) accountExists(ctx context.Context, q queryer, accountID string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM family_accounts WHERE id = $1`, accountID).Scan(&one)
	if err == sql.ErrNoRows {
		return family.Errorf(family.ErrAccountNotFound, "account %s not found", accountID)
	}
	if err != nil {
		return fmt.Errorf("failed to check account: %w", err)
	}
	return nil
}

func listPatients(ctx context.Context, q queryer, accountID string) ([]*family.Patient, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+patientColumns+` FROM family_patients WHERE account_id = $1 ORDER BY id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	defer rows.Close()

	var patients []*family.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan patient: %w", err)
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

func listMembers(ctx context.Context, q queryer, accountID string) ([]*family.FamilyMember, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM family_members WHERE account_id = $1 ORDER BY id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	members, err := collectMembers(rows)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return members, nil
	}

	if err := loadGrants(ctx, q, members,
		`SELECT g.member_id, g.patient_id, g.permissions FROM family_patient_grants g
		 JOIN family_members m ON m.id = g.member_id WHERE m.account_id = $1`, accountID,
	); err != nil {
		return nil, err
	}
	return members, nil
}

func collectMembers(rows *sql.Rows) ([]*family.FamilyMember, error) {
	defer rows.Close()

	var members []*family.FamilyMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func loadGrants(ctx context.Context, q queryer, members []*family.FamilyMember, query string, args ...interface{}) error {
	byID := make(map[string]*family.FamilyMember, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to load patient grants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			memberID, patientID string
			raw                 []byte
		)
		if err := rows.Scan(&memberID, &patientID, &raw); err != nil {
			return fmt.Errorf("failed to scan patient grant: %w", err)
		}
		m, ok := byID[memberID]
		if !ok {
			continue
		}
		set := family.CapabilitySet{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &set); err != nil {
				return fmt.Errorf("failed to decode grant %s/%s: %w", memberID, patientID, err)
			}
		}
		if m.PatientPermissions == nil {
			m.PatientPermissions = make(map[string]family.CapabilitySet)
		}
		m.PatientPermissions[patientID] = set
	}
	return rows.Err()
}

func upsertPatient(ctx context.Context, q queryer, p *family.Patient, now time.Time) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO family_patients (id, account_id, name, relationship, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, relationship = EXCLUDED.relationship
		 WHERE family_patients.account_id = EXCLUDED.account_id`,
		p.ID, p.AccountID, p.Name, p.Relationship, p.CreatedAt,
	)
	if err != nil {
		return mapError("save patient", err)
	}
	// The conflict clause skips the row when the id belongs to another account
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check saved patient: %w", err)
	}
	if n == 0 {
		return family.Errorf(family.ErrConflict, "patient id %s is already in use", p.ID)
	}
	return nil
}

func upsertMember(ctx context.Context, q queryer, m *family.FamilyMember) error {
	permissions, err := json.Marshal(m.Permissions)
	if err != nil {
		return fmt.Errorf("failed to encode permissions: %w", err)
	}
	access := []string(m.PatientsAccess)
	if access == nil {
		access = []string{}
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO family_members (id, account_id, user_id, name, email, relationship, role, managed_by,
			patients_access, permissions, status, role_assigned_at, created_at, updated_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id, name = EXCLUDED.name, email = EXCLUDED.email,
			relationship = EXCLUDED.relationship, role = EXCLUDED.role, managed_by = EXCLUDED.managed_by,
			patients_access = EXCLUDED.patients_access, permissions = EXCLUDED.permissions,
			status = EXCLUDED.status, role_assigned_at = EXCLUDED.role_assigned_at,
			updated_at = EXCLUDED.updated_at`,
		m.ID, m.AccountID, m.UserID, m.Name, m.Email, m.Relationship, string(m.Role), m.ManagedBy,
		pq.Array(access), permissions, string(m.Status), nullTime(m.RoleAssignedAt), m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return mapError("save member", err)
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM family_patient_grants WHERE member_id = $1`, m.ID); err != nil {
		return mapError("clear patient grants", err)
	}
	for patientID, set := range m.PatientPermissions {
		raw, err := json.Marshal(set)
		if err != nil {
			return fmt.Errorf("failed to encode grant: %w", err)
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO family_patient_grants (member_id, patient_id, permissions) VALUES ($1, $2, $3)`,
			m.ID, patientID, raw,
		); err != nil {
			return mapError("save patient grant", err)
		}
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// PostgreSQL error codes mapped to family.ErrConflict
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
)

// mapError classifies driver errors. Serialization failures, deadlocks and
// unique violations (including the single-owner index) become conflicts so
// the caller can retry. A missing referenced patient is a validation error.
func mapError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation:
			return family.Errorf(family.ErrConflict, "%s: %s", op, pqErr.Message)
		case codeForeignKeyViolation:
			return family.Errorf(family.ErrUnknownPatient, "%s: %s", op, pqErr.Message)
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
