// Package members implements the operations that change who belongs to a
// family account and what they may do: invitations, role assignment,
// ownership transfer, member edits and removal, and the patient access
// backfill.
//
// Every mutation resolves the caller inside the store transaction, checks it
// against the authority rules in pkg/authz, and commits through a single
// Store.UpdateAccount call. Either the whole transition is written or
// nothing is.
package members

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/weightlossprojectionlab/familyaccess/pkg/audit"
	"github.com/weightlossprojectionlab/familyaccess/pkg/authz"
	"github.com/weightlossprojectionlab/familyaccess/pkg/family"
	"github.com/weightlossprojectionlab/familyaccess/pkg/observability"
	"github.com/weightlossprojectionlab/familyaccess/pkg/store"
)

// DefaultConflictRetries is how often a mutation is re-run after losing an
// optimistic write before family.ErrConflict is returned
const DefaultConflictRetries = 3

// Options configures a Service. Zero values select defaults.
type Options struct {
	Audit           audit.Logger
	Metrics         *observability.Metrics
	ConflictRetries int
	Now             func() time.Time
	NewID           func() string
}

// Service performs membership mutations against a store
type Service struct {
	store   store.Store
	engine  *authz.Engine
	audit   audit.Logger
	logger  logrus.FieldLogger
	metrics *observability.Metrics
	tracer  trace.Tracer
	retries int
	now     func() time.Time
	newID   func() string
}

// NewService creates a membership service
func NewService(st store.Store, engine *authz.Engine, logger logrus.FieldLogger, opts Options) *Service {
	s := &Service{
		store:   st,
		engine:  engine,
		audit:   opts.Audit,
		logger:  logger,
		metrics: opts.Metrics,
		tracer:  observability.Tracer("familyaccess/members"),
		retries: opts.ConflictRetries,
		now:     opts.Now,
		newID:   opts.NewID,
	}
	if s.audit == nil {
		s.audit = audit.NoOpLogger{}
	}
	if s.retries <= 0 {
		s.retries = DefaultConflictRetries
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// update runs fn in a store transaction, re-running it when another writer
// won the race. fn must derive all of its results from tx since it may run
// more than once.
func (s *Service) update(ctx context.Context, op, accountID string, fn func(tx store.AccountTx) error) error {
	ctx, span := s.tracer.Start(ctx, "members."+op, trace.WithAttributes(
		attribute.String("account.id", accountID),
	))
	defer span.End()

	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		err = s.store.UpdateAccount(ctx, accountID, fn)
		if !errors.Is(err, family.ErrConflict) || ctx.Err() != nil {
			break
		}
		s.metrics.RecordConflict(op)
		s.log(ctx).WithFields(logrus.Fields{
			"operation":  op,
			"account_id": accountID,
			"attempt":    attempt + 1,
		}).Debug("Retrying mutation after conflict")
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, family.CodeOf(err))
		result := family.CodeOf(err)
		if result == "" {
			result = "error"
		}
		s.metrics.RecordMutation(op, result)
		return err
	}
	s.metrics.RecordMutation(op, "ok")
	return nil
}

// record writes an audit event after a committed mutation. Sink failures are
// logged only; the mutation has already been applied.
func (s *Service) record(ctx context.Context, p authz.Principal, event *audit.AuditEvent) {
	event.ActorUserID = p.UserID
	if err := s.audit.Log(ctx, event); err != nil {
		s.log(ctx).WithError(err).WithField("event_type", event.EventType).Warn("Failed to write audit event")
	}
}

func (s *Service) log(ctx context.Context) logrus.FieldLogger {
	return observability.FromContext(ctx, s.logger)
}

// actorIn resolves the caller against the transaction snapshot
func actorIn(tx store.AccountTx, p authz.Principal) (*family.FamilyMember, error) {
	return authz.ResolveMember(tx.Members(), p)
}

// requireManager admits admins that still hold manageFamily. Only managers
// set managedBy, which keeps managedBy pointing up the hierarchy.
func requireManager(actor *family.FamilyMember) error {
	if !actor.Role.IsAdmin() || !family.ResolveMemberLevel(actor).Allows(family.CapManageFamily) {
		return family.Errorf(family.ErrInsufficientAuthority, "%s may not manage family members", actor.Role)
	}
	return nil
}

// requireEditable applies the hierarchy rule to target
func requireEditable(actor, target *family.FamilyMember) error {
	if target.IsOwner() {
		return family.Errorf(family.ErrOwnershipRequiresTransfer,
			"the account owner can only change through an ownership transfer")
	}
	if !authz.CanUserEditMember(target, actor.Role) {
		return family.Errorf(family.ErrInsufficientAuthority,
			"%s may not modify a member with role %s", actor.Role, target.Role)
	}
	return nil
}

func memberOf(tx store.AccountTx, memberID string) (*family.FamilyMember, error) {
	m, ok := tx.Member(memberID)
	if !ok {
		return nil, family.Errorf(family.ErrMemberNotFound, "member %s not found", memberID)
	}
	return m, nil
}
