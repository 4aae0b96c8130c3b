//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/weightlossprojectionlab/familyaccess/pkg/family"
	"github.com/weightlossprojectionlab/familyaccess/pkg/store"
)

// setupPostgresContainer starts a disposable PostgreSQL with migrations applied
func setupPostgresContainer(t *testing.T) (*Store, func()) {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	defer provider.Close()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("familyaccess_test"),
		tcpostgres.WithUsername("familyaccess"),
		tcpostgres.WithPassword("familyaccess_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := Open(ctx, connStr, DefaultPoolConfig(), quietLogger())
	require.NoError(t, err)
	require.NoError(t, RunMigrations(ctx, s.DB(), quietLogger()))

	cleanup := func() {
		if err := s.Close(); err != nil {
			t.Logf("Warning: Failed to close database: %v", err)
		}
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	}
	return s, cleanup
}

func TestIntegration_AccountLifecycle(t *testing.T) {
	s, cleanup := setupPostgresContainer(t)
	defer cleanup()
	ctx := context.Background()

	owner := &family.FamilyMember{
		ID: "owner", UserID: "u-owner", Name: "Olivia",
		Role: family.RoleOwner, Status: family.StatusAccepted,
		PatientsAccess: family.EveryPatient(),
		Permissions:    family.DefaultCapabilities(family.RoleOwner),
		CreatedAt:      time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateAccount(ctx, &family.Account{ID: "acc-1", Name: "Smith family"}, owner))

	// Add a patient and a scoped caregiver with a per-patient grant
	require.NoError(t, s.UpdateAccount(ctx, "acc-1", func(tx store.AccountTx) error {
		if err := tx.SavePatient(&family.Patient{ID: "p1", Name: "Grandpa"}); err != nil {
			return err
		}
		return tx.SaveMember(&family.FamilyMember{
			ID: "care", UserID: "u-care", Name: "Carol",
			Role: family.RoleCaregiver, Status: family.StatusAccepted, ManagedBy: "owner",
			PatientsAccess:     family.PatientScope{"p1"},
			Permissions:        family.DefaultCapabilities(family.RoleCaregiver).Overlay(family.CapabilitySet{family.CapEditVitals: false}),
			PatientPermissions: map[string]family.CapabilitySet{"p1": {family.CapEditVitals: true}},
			CreatedAt:          time.Now().UTC(), UpdatedAt: time.Now().UTC(),
		})
	}))

	care, err := s.GetMember(ctx, "acc-1", "care")
	require.NoError(t, err)
	assert.True(t, family.Has(care, "p1", family.CapEditVitals))
	assert.Equal(t, family.PatientScope{"p1"}, care.PatientsAccess)

	// Transfer ownership atomically
	require.NoError(t, s.UpdateAccount(ctx, "acc-1", func(tx store.AccountTx) error {
		o, _ := tx.Member("owner")
		c, _ := tx.Member("care")
		o.Role = family.RoleCoAdmin
		c.Role = family.RoleOwner
		if err := tx.SaveMember(o); err != nil {
			return err
		}
		if err := tx.SaveMember(c); err != nil {
			return err
		}
		return tx.SetOwner("care")
	}))

	acc, err := s.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "care", acc.OwnerMemberID)
	assert.Equal(t, int64(3), acc.Version)

	members, err := s.ListMembers(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, family.CountOwners(members))

	// Removing a member cascades to its grants
	require.NoError(t, s.UpdateAccount(ctx, "acc-1", func(tx store.AccountTx) error {
		return tx.DeleteMember("owner")
	}))
	var grants int
	require.NoError(t, s.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM family_patient_grants WHERE member_id = $1`, "owner").Scan(&grants))
	assert.Zero(t, grants)
}

func TestIntegration_SingleOwnerIndex(t *testing.T) {
	s, cleanup := setupPostgresContainer(t)
	defer cleanup()
	ctx := context.Background()

	owner := &family.FamilyMember{ID: "owner", Name: "Olivia", Role: family.RoleOwner, Status: family.StatusAccepted}
	require.NoError(t, s.CreateAccount(ctx, &family.Account{ID: "acc-1", Name: "Smith family"}, owner))

	// A writer bypassing the store still cannot create a second owner
	_, err := s.DB().ExecContext(ctx,
		`INSERT INTO family_members (id, account_id, name, role, status) VALUES ($1, $2, $3, $4, $5)`,
		"rogue", "acc-1", "Rogue", "account_owner", "accepted")
	require.Error(t, err)
	pqErr, ok := err.(*pq.Error)
	require.True(t, ok)
	assert.Equal(t, pq.ErrorCode("23505"), pqErr.Code)
}

func TestIntegration_ConcurrentWritersSerialize(t *testing.T) {
	s, cleanup := setupPostgresContainer(t)
	defer cleanup()
	ctx := context.Background()

	owner := &family.FamilyMember{ID: "owner", Name: "Olivia", Role: family.RoleOwner, Status: family.StatusAccepted}
	require.NoError(t, s.CreateAccount(ctx, &family.Account{ID: "acc-1", Name: "Smith family"}, owner))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.UpdateAccount(ctx, "acc-1", func(tx store.AccountTx) error {
				return tx.SavePatient(&family.Patient{ID: "p" + string(rune('a'+i)), Name: "Patient"})
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	acc, err := s.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1+len(errs)), acc.Version)

	var count int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM family_patients`).Scan(&count))
	assert.Equal(t, len(errs), count)
}
