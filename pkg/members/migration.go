package members

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/weightlossprojectionlab/familyaccess/pkg/audit"
	"github.com/weightlossprojectionlab/familyaccess/pkg/authz"
	"github.com/weightlossprojectionlab/familyaccess/pkg/family"
	"github.com/weightlossprojectionlab/familyaccess/pkg/store"
)

// MigrationError reports a member the backfill could not repair
type MigrationError struct {
	MemberID string `json:"memberId"`
	Error    string `json:"error"`
}

// MigrationResult summarises a MigratePatientRecords run
type MigrationResult struct {
	RecordsCreated     int              `json:"recordsCreated"`
	RecordsSkipped     int              `json:"recordsSkipped"`
	TotalFamilyMembers int              `json:"totalFamilyMembers"`
	Errors             []MigrationError `json:"errors"`
}

// MigratePatientRecords gives every member an explicit access record for
// each patient in its scope. It only adds records; existing ones are never
// changed, so running it again creates nothing.
//
// Each member is repaired in its own transaction. A failure for one member
// is reported in the result and the run continues. Cancelling ctx stops the
// run between members and returns what was done so far together with
// ctx.Err().
func (s *Service) MigratePatientRecords(ctx context.Context, p authz.Principal, accountID string) (*MigrationResult, error) {
	actor, err := s.engine.ResolveActor(ctx, accountID, p)
	if err != nil {
		return nil, err
	}
	if !actor.Member.IsOwner() {
		return nil, family.ErrNotAccountOwner
	}

	log := s.log(ctx).WithField("account_id", accountID)
	result := &MigrationResult{
		TotalFamilyMembers: len(actor.Members),
		Errors:             []MigrationError{},
	}

	for _, m := range actor.Members {
		if err := ctx.Err(); err != nil {
			s.finishMigration(ctx, p, actor, result)
			return result, err
		}
		if m.Status == family.StatusRevoked {
			continue
		}

		created, skipped, err := s.migrateMember(ctx, p, accountID, m.ID)
		if err != nil {
			if family.KindOf(err) == family.KindAuthorization {
				s.finishMigration(ctx, p, actor, result)
				return result, err
			}
			log.WithError(err).WithField("member_id", m.ID).Warn("Failed to migrate member patient access")
			result.Errors = append(result.Errors, MigrationError{MemberID: m.ID, Error: err.Error()})
			continue
		}
		result.RecordsCreated += created
		result.RecordsSkipped += skipped
	}

	s.finishMigration(ctx, p, actor, result)
	log.WithFields(logrus.Fields{
		"created": result.RecordsCreated,
		"skipped": result.RecordsSkipped,
		"failed":  len(result.Errors),
	}).Info("Patient access migration complete")
	return result, nil
}

// migrateMember backfills one member. The caller must still own the account
// when the transaction runs.
func (s *Service) migrateMember(ctx context.Context, p authz.Principal, accountID, memberID string) (created, skipped int, err error) {
	err = s.update(ctx, "migrate_member", accountID, func(tx store.AccountTx) error {
		created, skipped = 0, 0
		owner, err := actorIn(tx, p)
		if err != nil {
			return err
		}
		if !owner.IsOwner() {
			return family.ErrNotAccountOwner
		}
		m, ok := tx.Member(memberID)
		if !ok {
			return nil
		}
		created, skipped = backfill(m, tx.Patients())
		if created == 0 {
			return nil
		}
		m.UpdatedAt = s.now()
		return tx.SaveMember(m)
	})
	return created, skipped, err
}

func (s *Service) finishMigration(ctx context.Context, p authz.Principal, actor *authz.Actor, result *MigrationResult) {
	s.metrics.RecordMigration(result.RecordsCreated, result.RecordsSkipped, len(result.Errors))

	status := audit.EventStatusSuccess
	if len(result.Errors) > 0 {
		status = audit.EventStatusFailure
	}
	s.record(ctx, p, &audit.AuditEvent{
		EventType:     audit.EventTypePatientAccessMigration,
		Status:        status,
		AccountID:     actor.Account.ID,
		ActorMemberID: actor.Member.ID,
		ResourceType:  audit.ResourceTypeAccount,
		ResourceID:    actor.Account.ID,
		Message:       "patient access records migrated",
		Metadata: map[string]interface{}{
			"recordsCreated":     result.RecordsCreated,
			"recordsSkipped":     result.RecordsSkipped,
			"totalFamilyMembers": result.TotalFamilyMembers,
			"errors":             len(result.Errors),
		},
	})
}
