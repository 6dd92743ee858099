package onboarding

import (
	"strings"

	"openedu/client/internal/config"
	"openedu/client/internal/models"
)

// State is the machine's view of where a user sits in onboarding.
type State string

const (
	StateUnauthenticated      State = "unauthenticated"
	StateRoleUnset            State = "role_unset"
	StateStudentOnboarding    State = "student_onboarding"
	StateStudentActive        State = "student_active"
	StateTutorPaymentPending  State = "tutor_payment_pending"
	StateTutorBankMissing     State = "tutor_bank_details_missing"
	StateTutorDocsUnsubmitted State = "tutor_documents_unsubmitted"
	StateTutorDocsPending     State = "tutor_documents_pending"
	StateTutorDocsRejected    State = "tutor_documents_rejected"
	StateTutorActive          State = "tutor_active"
)

type DecisionKind string

const (
	DecisionNone     DecisionKind = "none"
	DecisionShowRole DecisionKind = "show_role_gate"
	DecisionRedirect DecisionKind = "redirect"
)

// Decision is ephemeral: recomputed from the record and current path on
// every relevant change, never persisted.
type Decision struct {
	Kind DecisionKind
	Path string
}

func none() Decision                { return Decision{Kind: DecisionNone} }
func showRole() Decision            { return Decision{Kind: DecisionShowRole} }
func redirect(path string) Decision { return Decision{Kind: DecisionRedirect, Path: path} }

// Machine maps (user record, current path) to the required gate or
// redirect. It never errors; missing data resolves to the earliest
// required step.
type Machine struct {
	routes config.RoutesConfig
	exempt map[string]bool
}

func NewMachine(routes config.RoutesConfig) *Machine {
	exempt := map[string]bool{
		routes.Login:             true,
		routes.StudentOnboarding: true,
		routes.TutorPayment:      true,
		routes.TutorDetails:      true,
		routes.TutorDocuments:    true,
		"/auth/callback":         true,
	}
	return &Machine{routes: routes, exempt: exempt}
}

// Evaluate runs the transition function. Callers skip it entirely while
// the record is still loading; the route guard handles redirects for
// unauthenticated users separately.
func (m *Machine) Evaluate(user *models.UserRecord, path string) (State, Decision) {
	if m.exemptPath(path) {
		state, _ := m.classify(user)
		return state, none()
	}
	return m.classify(user)
}

func (m *Machine) exemptPath(path string) bool {
	if m.exempt[path] {
		return true
	}
	return strings.HasPrefix(path, "/auth/callback")
}

func (m *Machine) classify(user *models.UserRecord) (State, Decision) {
	if user == nil {
		return StateUnauthenticated, none()
	}

	if user.UserType == "" {
		// A user without a role never carries onboarding-complete
		// semantics; everything reduces to role selection.
		return StateRoleUnset, showRole()
	}

	switch user.UserType {
	case models.UserTypeStudent:
		if !user.OnboardingComplete {
			return StateStudentOnboarding, redirect(m.routes.StudentOnboarding)
		}
		return StateStudentActive, none()

	case models.UserTypeTutor:
		return m.classifyTutor(user)
	}

	// Admins have no onboarding sequence.
	return StateStudentActive, none()
}

func (m *Machine) classifyTutor(user *models.UserRecord) (State, Decision) {
	details := user.TutorDetails
	feesPaid := details != nil && details.RegisterFeesPaid
	bankIncomplete := details == nil || !details.BankDetails.Complete()

	if !user.OnboardingComplete {
		// Payment gates bank details: it is the earlier, cheaper step.
		if !feesPaid {
			return StateTutorPaymentPending, redirect(m.routes.TutorPayment)
		}
		if bankIncomplete {
			return StateTutorBankMissing, redirect(m.routes.TutorDetails)
		}
		return StateTutorDocsUnsubmitted, none()
	}

	// Bank completeness is re-checked after onboarding completes: the
	// backend can flip a tutor back to incomplete bank state without
	// clearing the completion flag.
	if bankIncomplete {
		return StateTutorBankMissing, redirect(m.routes.TutorDetails)
	}

	switch user.DocumentVerification {
	case "":
		return StateTutorDocsUnsubmitted, redirect(m.routes.TutorDocuments)
	case models.DocumentStatusPending:
		// Soft-terminal: wait for out-of-band review.
		return StateTutorDocsPending, none()
	case models.DocumentStatusRejected:
		// Rejection routes back to the documents step for re-submission.
		return StateTutorDocsRejected, redirect(m.routes.TutorDocuments)
	default:
		return StateTutorActive, none()
	}
}
