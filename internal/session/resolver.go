package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"openedu/client/internal/api"
	"openedu/client/internal/models"
)

// ErrProfileFetchFailed is recoverable: the guard keeps the current view
// and the next navigation retries the fetch.
var ErrProfileFetchFailed = errors.New("profile fetch failed")

// ValidationError is a form-level failure on a mutation input, surfaced
// inline to the user.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type resolveOutcome struct {
	user *models.UserRecord
	err  error
}

// Resolver owns the normalized user record. A concurrent Resolve while
// one is already in flight joins the existing call instead of issuing a
// duplicate request.
type Resolver struct {
	client *api.Client
	log    zerolog.Logger

	mu      sync.Mutex
	user    *models.UserRecord
	loading bool
	waiters []chan resolveOutcome
	subs    []chan *models.UserRecord
}

func NewResolver(client *api.Client, log zerolog.Logger) *Resolver {
	return &Resolver{client: client, log: log}
}

// Current returns the last resolved record, nil when unauthenticated or
// not yet resolved.
func (r *Resolver) Current() *models.UserRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.user
}

func (r *Resolver) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// Subscribe returns a channel receiving the record after every replace.
// Buffered; a slow subscriber drops updates instead of blocking.
func (r *Resolver) Subscribe() <-chan *models.UserRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan *models.UserRecord, 4)
	r.subs = append(r.subs, ch)
	return ch
}

// Resolve fetches the profile and replaces the stored record wholesale.
func (r *Resolver) Resolve(ctx context.Context) (*models.UserRecord, error) {
	r.mu.Lock()
	if r.loading {
		waiter := make(chan resolveOutcome, 1)
		r.waiters = append(r.waiters, waiter)
		r.mu.Unlock()

		select {
		case outcome := <-waiter:
			return outcome.user, outcome.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.loading = true
	r.mu.Unlock()

	outcome := r.fetch(ctx)

	r.mu.Lock()
	r.loading = false
	if outcome.err == nil {
		r.user = outcome.user
	}
	waiters := r.waiters
	r.waiters = nil
	subs := r.subs
	r.mu.Unlock()

	for _, w := range waiters {
		w <- outcome
	}
	if outcome.err == nil {
		notifySubs(subs, outcome.user)
	}
	return outcome.user, outcome.err
}

func (r *Resolver) fetch(ctx context.Context) resolveOutcome {
	var raw map[string]any
	if err := r.client.Get(ctx, "/profile", &raw); err != nil {
		r.log.Warn().Err(err).Msg("profile fetch failed")
		return resolveOutcome{err: fmt.Errorf("%w: %v", ErrProfileFetchFailed, err)}
	}
	return resolveOutcome{user: Normalize(raw)}
}

// Clear drops the record, used on logout and irrecoverable auth failure.
func (r *Resolver) Clear() {
	r.mu.Lock()
	r.user = nil
	subs := r.subs
	r.mu.Unlock()

	notifySubs(subs, nil)
}

// SelectRole assigns the one-time student/tutor category.
func (r *Resolver) SelectRole(ctx context.Context, role models.UserType) (*models.UserRecord, error) {
	if role != models.UserTypeStudent && role != models.UserTypeTutor {
		return nil, &ValidationError{Field: "user_type", Reason: "must be student or tutor"}
	}
	return r.mutate(ctx, "/profile/role", map[string]any{"user_type": role})
}

type StudentDetailsInput struct {
	Grade    string
	Board    string
	Subjects []string
	Guardian string
}

func (r *Resolver) SaveStudentDetails(ctx context.Context, input StudentDetailsInput) (*models.UserRecord, error) {
	if strings.TrimSpace(input.Grade) == "" {
		return nil, &ValidationError{Field: "grade", Reason: "required"}
	}
	return r.mutate(ctx, "/profile/student-details", map[string]any{
		"grade":         input.Grade,
		"board":         input.Board,
		"subjects":      input.Subjects,
		"guardian_name": input.Guardian,
	})
}

type TutorDetailsInput struct {
	Qualification string
	Experience    string
	Subjects      []string
	Bank          models.BankDetails
}

func (r *Resolver) SaveTutorDetails(ctx context.Context, input TutorDetailsInput) (*models.UserRecord, error) {
	if err := validateBank(input.Bank); err != nil {
		return nil, err
	}
	return r.mutate(ctx, "/profile/tutor-details", map[string]any{
		"qualification": input.Qualification,
		"experience":    input.Experience,
		"subjects":      input.Subjects,
		"bank_details": map[string]any{
			"account_holder_name": input.Bank.AccountHolderName,
			"account_number":      input.Bank.AccountNumber,
			"ifsc_code":           input.Bank.IFSCCode,
			"bank_name":           input.Bank.BankName,
			"account_type":        input.Bank.AccountType,
		},
	})
}

func (r *Resolver) CompleteOnboarding(ctx context.Context) (*models.UserRecord, error) {
	return r.mutate(ctx, "/profile/onboarding-complete", map[string]any{"onboarding_complete": true})
}

// mutate performs one backend write and replaces the record with the
// server's returned representation. Fields are never patched locally.
func (r *Resolver) mutate(ctx context.Context, path string, body map[string]any) (*models.UserRecord, error) {
	var raw map[string]any
	if err := r.client.Put(ctx, path, body, &raw); err != nil {
		return nil, err
	}

	user := Normalize(raw)

	r.mu.Lock()
	r.user = user
	subs := r.subs
	r.mu.Unlock()

	notifySubs(subs, user)
	return user, nil
}

func validateBank(bank models.BankDetails) error {
	checks := []struct {
		field string
		value string
	}{
		{"account_holder_name", bank.AccountHolderName},
		{"account_number", bank.AccountNumber},
		{"ifsc_code", bank.IFSCCode},
		{"bank_name", bank.BankName},
		{"account_type", bank.AccountType},
	}
	for _, check := range checks {
		if strings.TrimSpace(check.value) == "" {
			return &ValidationError{Field: check.field, Reason: "required"}
		}
	}
	return nil
}

func notifySubs(subs []chan *models.UserRecord, user *models.UserRecord) {
	for _, ch := range subs {
		select {
		case ch <- user:
		default:
		}
	}
}
