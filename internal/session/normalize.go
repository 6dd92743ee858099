package session

import (
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"openedu/client/internal/models"
)

// Normalize turns a raw backend profile document into a UserRecord. It is
// a total function: any shape the backend has been observed to produce
// (including tutor details nested inside themselves) comes out as a single
// flat record, and missing fields fall back to zero defaults instead of
// failing.
//
// Field precedence for tutor flags: outer tutor_details, then the inner
// (double-wrapped) tutor_details, then the top-level user field, then the
// default (false / "pending").
func Normalize(raw map[string]any) *models.UserRecord {
	if raw == nil {
		raw = map[string]any{}
	}

	// Some responses wrap the document in a "user" envelope.
	if inner := asMap(raw["user"]); inner != nil {
		raw = inner
	}

	user := &models.UserRecord{
		ID:                 stringAt(raw, "id", "_id"),
		Email:              stringAt(raw, "email"),
		Name:               stringAt(raw, "name", "display_name"),
		OnboardingComplete: boolAt(raw, "onboarding_complete"),
		CreatedAt:          timeAt(raw, "created_at"),
		UpdatedAt:          timeAt(raw, "updated_at"),
	}

	switch models.UserType(stringAt(raw, "user_type", "role")) {
	case models.UserTypeStudent:
		user.UserType = models.UserTypeStudent
	case models.UserTypeTutor:
		user.UserType = models.UserTypeTutor
	case models.UserTypeAdmin:
		user.UserType = models.UserTypeAdmin
	}

	switch models.DocumentStatus(stringAt(raw, "document_verification")) {
	case models.DocumentStatusPending:
		user.DocumentVerification = models.DocumentStatusPending
	case models.DocumentStatusVerified:
		user.DocumentVerification = models.DocumentStatusVerified
	case models.DocumentStatusRejected:
		user.DocumentVerification = models.DocumentStatusRejected
	}

	if user.UserType == models.UserTypeStudent {
		user.StudentDetails = decodeStudentDetails(asMap(raw["student_details"]))
	}
	if user.UserType == models.UserTypeTutor {
		user.TutorDetails = flattenTutorDetails(raw)
	}

	return user
}

func flattenTutorDetails(raw map[string]any) *models.TutorDetails {
	outer := asMap(raw["tutor_details"])
	// The backend sometimes nests tutor details inside themselves; flatten
	// to a single level.
	var inner map[string]any
	if outer != nil {
		inner = asMap(outer["tutor_details"])
	}

	td := &models.TutorDetails{
		RegisterFeesPaid: firstBool(
			lookupBool(outer, "register_fees_paid"),
			lookupBool(inner, "register_fees_paid"),
			lookupBool(raw, "register_fees_paid"),
		),
		VerificationStatus: models.DocumentStatusPending,
		Qualification: firstString(
			lookupString(outer, "qualification"),
			lookupString(inner, "qualification"),
		),
		Experience: firstString(
			lookupString(outer, "experience"),
			lookupString(inner, "experience"),
		),
	}

	status := firstString(
		lookupString(outer, "verification_status"),
		lookupString(inner, "verification_status"),
		lookupString(raw, "verification_status"),
	)
	switch models.DocumentStatus(status) {
	case models.DocumentStatusVerified:
		td.VerificationStatus = models.DocumentStatusVerified
	case models.DocumentStatusRejected:
		td.VerificationStatus = models.DocumentStatusRejected
	}

	if subjects := decodeStrings(firstAny(lookupAny(outer, "subjects"), lookupAny(inner, "subjects"))); len(subjects) > 0 {
		td.Subjects = subjects
	}

	var bank map[string]any
	if outer != nil {
		bank = asMap(outer["bank_details"])
	}
	if bank == nil && inner != nil {
		bank = asMap(inner["bank_details"])
	}
	if bank == nil {
		bank = asMap(raw["bank_details"])
	}
	td.BankDetails = decodeBankDetails(bank)

	return td
}

type wireBankDetails struct {
	AccountHolderName string `mapstructure:"account_holder_name"`
	AccountNumber     string `mapstructure:"account_number"`
	IFSCCode          string `mapstructure:"ifsc_code"`
	BankName          string `mapstructure:"bank_name"`
	AccountType       string `mapstructure:"account_type"`
}

func decodeBankDetails(raw map[string]any) *models.BankDetails {
	if raw == nil {
		return nil
	}
	var wire wireBankDetails
	if err := decodeWeak(raw, &wire); err != nil {
		return nil
	}
	return &models.BankDetails{
		AccountHolderName: wire.AccountHolderName,
		AccountNumber:     wire.AccountNumber,
		IFSCCode:          wire.IFSCCode,
		BankName:          wire.BankName,
		AccountType:       wire.AccountType,
	}
}

type wireStudentDetails struct {
	Grade    string   `mapstructure:"grade"`
	Board    string   `mapstructure:"board"`
	Subjects []string `mapstructure:"subjects"`
	Guardian string   `mapstructure:"guardian_name"`
}

func decodeStudentDetails(raw map[string]any) *models.StudentDetails {
	if raw == nil {
		return nil
	}
	var wire wireStudentDetails
	if err := decodeWeak(raw, &wire); err != nil {
		return nil
	}
	return &models.StudentDetails{
		Grade:    wire.Grade,
		Board:    wire.Board,
		Subjects: wire.Subjects,
		Guardian: wire.Guardian,
	}
}

// decodeWeak decodes loosely typed payload fragments, tolerating numbers
// and strings where the record wants other scalar types.
func decodeWeak(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func stringAt(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := lookupString(m, key); s != nil {
			return *s
		}
	}
	return ""
}

func boolAt(m map[string]any, key string) bool {
	if b := lookupBool(m, key); b != nil {
		return *b
	}
	return false
}

func timeAt(m map[string]any, key string) time.Time {
	s := stringAt(m, key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func lookupAny(m map[string]any, key string) any {
	if m == nil {
		return nil
	}
	v, ok := m[key]
	if !ok {
		return nil
	}
	return v
}

func lookupString(m map[string]any, key string) *string {
	v := lookupAny(m, key)
	if v == nil {
		return nil
	}
	switch s := v.(type) {
	case string:
		return &s
	case float64:
		str := strconv.FormatFloat(s, 'f', -1, 64)
		return &str
	}
	return nil
}

func lookupBool(m map[string]any, key string) *bool {
	v := lookupAny(m, key)
	if v == nil {
		return nil
	}
	switch b := v.(type) {
	case bool:
		return &b
	case float64:
		r := b != 0
		return &r
	case string:
		switch strings.ToLower(b) {
		case "true", "1", "yes":
			r := true
			return &r
		case "false", "0", "no":
			r := false
			return &r
		}
	}
	return nil
}

func firstBool(candidates ...*bool) bool {
	for _, c := range candidates {
		if c != nil {
			return *c
		}
	}
	return false
}

func firstString(candidates ...*string) string {
	for _, c := range candidates {
		if c != nil {
			return *c
		}
	}
	return ""
}

func firstAny(candidates ...any) any {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}

func decodeStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
