package members

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weightlossprojectionlab/familyaccess/pkg/audit"
	"github.com/weightlossprojectionlab/familyaccess/pkg/family"
	"github.com/weightlossprojectionlab/familyaccess/pkg/store"
)

// seedLegacy adds members written before per-patient records existed
func seedLegacy(t *testing.T, f *fixture) {
	t.Helper()
	require.NoError(t, f.store.UpdateAccount(context.Background(), f.account.ID, func(tx store.AccountTx) error {
		legacy := []*family.FamilyMember{
			{
				ID: "legacy-care", UserID: careP.UserID, Email: careP.Email, Name: "Carol",
				Role: family.RoleCaregiver, Status: family.StatusAccepted, ManagedBy: f.owner.ID,
				PatientsAccess: family.EveryPatient(),
			},
			{
				ID: "legacy-view", UserID: viewP.UserID, Email: viewP.Email, Name: "Victor",
				Role: family.RoleViewer, Status: family.StatusAccepted, ManagedBy: f.owner.ID,
				PatientsAccess:     family.PatientScope{f.p1.ID},
				PatientPermissions: map[string]family.CapabilitySet{f.p1.ID: {family.CapViewDocuments: false}},
			},
			{
				ID: "legacy-revoked", Name: "Rex", Email: "rex@example.com",
				Role: family.RoleViewer, Status: family.StatusRevoked, ManagedBy: f.owner.ID,
			},
		}
		for _, m := range legacy {
			if err := tx.SaveMember(m); err != nil {
				return err
			}
		}
		return nil
	}))
}

func grants(t *testing.T, f *fixture) map[string]map[string]family.CapabilitySet {
	t.Helper()
	members, err := f.store.ListMembers(context.Background(), f.account.ID)
	require.NoError(t, err)
	out := make(map[string]map[string]family.CapabilitySet, len(members))
	for _, m := range members {
		out[m.ID] = m.PatientPermissions
	}
	return out
}

func TestMigratePatientRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedLegacy(t, f)

	first, err := f.svc.MigratePatientRecords(ctx, ownerP, f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, first.RecordsCreated)
	assert.Equal(t, 3, first.RecordsSkipped)
	assert.Equal(t, 4, first.TotalFamilyMembers)
	assert.Empty(t, first.Errors)

	care := f.member(t, "legacy-care")
	assert.Equal(t, family.ResolveMemberLevel(care), care.PatientPermissions[f.p1.ID])
	assert.Equal(t, family.CapabilitySet{family.CapViewDocuments: false}, f.member(t, "legacy-view").PatientPermissions[f.p1.ID])
	assert.Empty(t, f.member(t, "legacy-revoked").PatientPermissions)

	before := grants(t, f)
	second, err := f.svc.MigratePatientRecords(ctx, ownerP, f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, second.RecordsCreated)
	assert.Equal(t, 5, second.RecordsSkipped)
	assert.Equal(t, before, grants(t, f))

	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.MigrationRecordsTotal.WithLabelValues("created")))
	assert.Len(t, f.audit.EventsOfType(audit.EventTypePatientAccessMigration), 2)
}

func TestMigratePatientRecords_ResultShape(t *testing.T) {
	f := newFixture(t)
	result, err := f.svc.MigratePatientRecords(context.Background(), ownerP, f.account.ID)
	require.NoError(t, err)

	raw, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"recordsCreated":0,"recordsSkipped":2,"totalFamilyMembers":1,"errors":[]}`, string(raw))
}

func TestMigratePatientRecords_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	f.join(t, ownerP, adminP, family.RoleCoAdmin, nil, nil)

	_, err := f.svc.MigratePatientRecords(context.Background(), adminP, f.account.ID)
	assert.ErrorIs(t, err, family.ErrNotAccountOwner)
}

func TestMigratePatientRecords_Cancelled(t *testing.T) {
	f := newFixture(t)
	seedLegacy(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.svc.MigratePatientRecords(ctx, ownerP, f.account.ID)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.RecordsCreated)
	assert.Empty(t, f.member(t, "legacy-care").PatientPermissions)

	again, err := f.svc.MigratePatientRecords(context.Background(), ownerP, f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, again.RecordsCreated)
}

// failOnceStore fails the update for one member of the migration run
type failOnceStore struct {
	store.Store
	failMember string
}

func (s *failOnceStore) UpdateAccount(ctx context.Context, accountID string, fn func(tx store.AccountTx) error) error {
	return s.Store.UpdateAccount(ctx, accountID, func(tx store.AccountTx) error {
		if err := fn(tx); err != nil {
			return err
		}
		if m, ok := tx.Member(s.failMember); ok && len(m.PatientPermissions) > 0 {
			return errors.New("write failed")
		}
		return nil
	})
}

func TestMigratePatientRecords_ContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	fs := &failOnceStore{}
	f := newFixtureWithStore(t, func(s store.Store) store.Store {
		fs.Store = s
		return fs
	})
	seedLegacy(t, f)
	fs.failMember = "legacy-care"

	result, err := f.svc.MigratePatientRecords(ctx, ownerP, f.account.ID)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "legacy-care", result.Errors[0].MemberID)
	assert.Equal(t, 0, result.RecordsCreated)
	assert.Equal(t, 3, result.RecordsSkipped)
	assert.Empty(t, f.member(t, "legacy-care").PatientPermissions)
}
