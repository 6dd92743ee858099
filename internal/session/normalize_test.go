package session

import (
	"encoding/json"
	"testing"

	"openedu/client/internal/models"
)

func decodeJSON(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	return m
}

func TestNormalizeBasicFields(t *testing.T) {
	user := Normalize(decodeJSON(t, `{
		"id": "u1",
		"email": "a@b.c",
		"name": "Alice",
		"user_type": "student",
		"onboarding_complete": true,
		"student_details": {"grade": "10", "board": "CBSE", "subjects": ["math"], "guardian_name": "Bob"}
	}`))

	if user.ID != "u1" || user.Email != "a@b.c" || user.Name != "Alice" {
		t.Fatalf("identity fields wrong: %+v", user)
	}
	if user.UserType != models.UserTypeStudent || !user.OnboardingComplete {
		t.Fatalf("role fields wrong: %+v", user)
	}
	if user.StudentDetails == nil || user.StudentDetails.Grade != "10" || user.StudentDetails.Guardian != "Bob" {
		t.Fatalf("student details wrong: %+v", user.StudentDetails)
	}
}

func TestNormalizeUserEnvelope(t *testing.T) {
	user := Normalize(decodeJSON(t, `{"user": {"id": "u1", "email": "a@b.c"}}`))
	if user.ID != "u1" || user.Email != "a@b.c" {
		t.Fatalf("expected envelope unwrapped, got %+v", user)
	}
}

func TestNormalizeDoubleNestedTutorDetails(t *testing.T) {
	// Outer register_fees_paid absent, inner true: the inner value wins.
	user := Normalize(decodeJSON(t, `{
		"id": "t1",
		"user_type": "tutor",
		"tutor_details": {
			"tutor_details": {
				"register_fees_paid": true,
				"verification_status": "verified",
				"bank_details": {
					"account_holder_name": "A Tutor",
					"account_number": "12345678",
					"ifsc_code": "HDFC0001234",
					"bank_name": "HDFC",
					"account_type": "savings"
				}
			}
		}
	}`))

	td := user.TutorDetails
	if td == nil {
		t.Fatal("expected tutor details")
	}
	if !td.RegisterFeesPaid {
		t.Fatal("expected inner register_fees_paid to flatten to true")
	}
	if td.VerificationStatus != models.DocumentStatusVerified {
		t.Fatalf("expected inner verification status, got %s", td.VerificationStatus)
	}
	if !td.BankDetails.Complete() {
		t.Fatalf("expected inner bank details to flatten, got %+v", td.BankDetails)
	}
}

func TestNormalizeOuterWinsOverInner(t *testing.T) {
	user := Normalize(decodeJSON(t, `{
		"id": "t1",
		"user_type": "tutor",
		"register_fees_paid": true,
		"tutor_details": {
			"register_fees_paid": false,
			"tutor_details": {"register_fees_paid": true}
		}
	}`))

	// Precedence: outer level beats the double-wrapped inner one and the
	// top-level user field.
	if user.TutorDetails.RegisterFeesPaid {
		t.Fatal("expected outer register_fees_paid=false to win")
	}
}

func TestNormalizeTopLevelFallback(t *testing.T) {
	user := Normalize(decodeJSON(t, `{
		"id": "t1",
		"user_type": "tutor",
		"register_fees_paid": "true"
	}`))

	if user.TutorDetails == nil || !user.TutorDetails.RegisterFeesPaid {
		t.Fatal("expected top-level string boolean fallback")
	}
}

func TestNormalizeTutorDefaults(t *testing.T) {
	user := Normalize(decodeJSON(t, `{"id": "t1", "user_type": "tutor"}`))

	td := user.TutorDetails
	if td == nil {
		t.Fatal("tutor records always get a details struct")
	}
	if td.RegisterFeesPaid {
		t.Fatal("fees default to unpaid")
	}
	if td.VerificationStatus != models.DocumentStatusPending {
		t.Fatalf("verification defaults to pending, got %s", td.VerificationStatus)
	}
	if td.BankDetails != nil {
		t.Fatal("absent bank details stay nil")
	}
	if user.DocumentVerification != "" {
		t.Fatalf("unsubmitted documents stay empty, got %s", user.DocumentVerification)
	}
}

func TestNormalizeLooseBooleans(t *testing.T) {
	cases := map[string]bool{
		`{"user_type": "tutor", "tutor_details": {"register_fees_paid": 1}}`:     true,
		`{"user_type": "tutor", "tutor_details": {"register_fees_paid": 0}}`:     false,
		`{"user_type": "tutor", "tutor_details": {"register_fees_paid": "yes"}}`: true,
		`{"user_type": "tutor", "tutor_details": {"register_fees_paid": "no"}}`:  false,
		`{"user_type": "tutor", "tutor_details": {"register_fees_paid": true}}`:  true,
	}
	for raw, expect := range cases {
		user := Normalize(decodeJSON(t, raw))
		if user.TutorDetails.RegisterFeesPaid != expect {
			t.Fatalf("fixture %s: expected %v", raw, expect)
		}
	}
}

func TestNormalizeInvalidRole(t *testing.T) {
	user := Normalize(decodeJSON(t, `{"id": "u1", "user_type": "wizard"}`))
	if user.UserType != "" {
		t.Fatalf("unknown role must normalize to unset, got %s", user.UserType)
	}
	if user.TutorDetails != nil || user.StudentDetails != nil {
		t.Fatal("role-less users carry no role details")
	}
}

func TestNormalizeNilInput(t *testing.T) {
	user := Normalize(nil)
	if user == nil {
		t.Fatal("normalize is total, nil input still yields a record")
	}
	if user.ID != "" || user.UserType != "" {
		t.Fatalf("expected zero record, got %+v", user)
	}
}
