package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/weightlossprojectionlab/familyaccess/pkg/family"
	"github.com/weightlossprojectionlab/familyaccess/pkg/observability"
	"github.com/weightlossprojectionlab/familyaccess/pkg/store"
)

// Actor is a caller resolved against one account
type Actor struct {
	Principal Principal
	Account   *family.Account
	Member    *family.FamilyMember
	Members   []*family.FamilyMember
}

// Role returns the actor's role in the account
func (a *Actor) Role() family.Role {
	return a.Member.Role
}

// Engine evaluates access against the current store contents. Nothing is
// cached; every call reads fresh membership.
type Engine struct {
	store   store.Reader
	logger  logrus.FieldLogger
	metrics *observability.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// NewEngine creates an engine. metrics may be nil.
func NewEngine(reader store.Reader, logger logrus.FieldLogger, metrics *observability.Metrics) *Engine {
	return &Engine{
		store:   reader,
		logger:  logger,
		metrics: metrics,
		tracer:  observability.Tracer("familyaccess/authz"),
		now:     time.Now,
	}
}

// AssertPatientAccess decides whether userID may exercise capability on
// patientID. A missing patient is reported as not_a_member, the same as a
// patient of an account the caller does not belong to, so that callers
// cannot discover patient ids. The error is non-nil only when the
// store could not be read; the Decision is then a zero-value deny.
func (e *Engine) AssertPatientAccess(ctx context.Context, userID, patientID string, capability family.Capability) (Decision, error) {
	ctx, span := e.tracer.Start(ctx, "authz.AssertPatientAccess", trace.WithAttributes(
		attribute.String("patient.id", patientID),
		attribute.String("capability", string(capability)),
	))
	defer span.End()
	start := e.now()

	req := Request{UserID: userID, Capability: capability}
	if userID != "" {
		patient, members, err := e.load(ctx, patientID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "store read failed")
			return Decision{PatientID: patientID, Capability: capability, UserID: userID}, err
		}
		req.Patient = patient
		req.Members = members
	}

	d := Evaluate(req)
	if d.PatientID == "" {
		d.PatientID = patientID
	}

	span.SetAttributes(
		attribute.Bool("authz.allowed", d.Allowed),
		attribute.String("authz.reason", string(d.Reason)),
	)
	e.metrics.RecordDecision(string(capability), d.Allowed, string(d.Reason), e.now().Sub(start))

	log := observability.FromContext(ctx, e.logger).WithFields(logrus.Fields{
		"user_id":    userID,
		"patient_id": patientID,
		"capability": capability,
	})
	if d.Allowed {
		log.WithField("role", d.Role).Debug("Patient access allowed")
	} else {
		log.WithField("reason", d.Reason).Info("Patient access denied")
	}
	return d, nil
}

func (e *Engine) load(ctx context.Context, patientID string) (*family.Patient, []*family.FamilyMember, error) {
	patient, err := e.store.GetPatient(ctx, patientID)
	if errors.Is(err, family.ErrPatientNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load patient: %w", err)
	}

	members, err := e.store.ListMembers(ctx, patient.AccountID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load members: %w", err)
	}
	return patient, members, nil
}

// ResolveActor loads the account and finds the caller's accepted membership.
// An unknown account yields family.ErrNotAMember, the same as an account
// the caller does not belong to.
func (e *Engine) ResolveActor(ctx context.Context, accountID string, p Principal) (*Actor, error) {
	if p.UserID == "" {
		return nil, family.ErrUnauthenticated
	}
	account, err := e.store.GetAccount(ctx, accountID)
	if errors.Is(err, family.ErrAccountNotFound) {
		return nil, family.ErrNotAMember
	}
	if err != nil {
		return nil, err
	}
	members, err := e.store.ListMembers(ctx, accountID)
	if err != nil {
		return nil, err
	}
	m, err := ResolveMember(members, p)
	if err != nil {
		return nil, err
	}
	return &Actor{Principal: p, Account: account, Member: m, Members: members}, nil
}
