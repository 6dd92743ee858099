package models

import "time"

type UserType string

const (
	UserTypeStudent UserType = "student"
	UserTypeTutor   UserType = "tutor"
	UserTypeAdmin   UserType = "admin"
)

type DocumentStatus string

const (
	DocumentStatusPending  DocumentStatus = "pending"
	DocumentStatusVerified DocumentStatus = "verified"
	DocumentStatusRejected DocumentStatus = "rejected"
)

type BankDetails struct {
	AccountHolderName string
	AccountNumber     string
	IFSCCode          string
	BankName          string
	AccountType       string
}

// Complete reports whether every required banking field is present and
// non-empty.
func (b *BankDetails) Complete() bool {
	if b == nil {
		return false
	}
	return b.AccountHolderName != "" &&
		b.AccountNumber != "" &&
		b.IFSCCode != "" &&
		b.BankName != "" &&
		b.AccountType != ""
}

type StudentDetails struct {
	Grade    string
	Board    string
	Subjects []string
	Guardian string
}

type TutorDetails struct {
	RegisterFeesPaid   bool
	BankDetails        *BankDetails
	VerificationStatus DocumentStatus
	Qualification      string
	Experience         string
	Subjects           []string
}

// UserRecord is the normalized client-side view of the backend profile
// document. It is replaced wholesale on every fetch or mutation, never
// patched field by field, so nested fields cannot drift from server truth.
type UserRecord struct {
	ID    string
	Email string
	Name  string

	// UserType is empty until the user picks a role.
	UserType UserType

	OnboardingComplete bool

	StudentDetails *StudentDetails
	TutorDetails   *TutorDetails

	// DocumentVerification is empty while no documents have been submitted.
	DocumentVerification DocumentStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *UserRecord) IsStudent() bool {
	return u != nil && u.UserType == UserTypeStudent
}

func (u *UserRecord) IsTutor() bool {
	return u != nil && u.UserType == UserTypeTutor
}
