package audit

import (
	"errors"
	"testing"
)

func int64p(v int64) *int64 { return &v }

func TestValidateRequiresReference(t *testing.T) {
	e := Entry{
		UserID:  7,
		Details: PrescriptionViewed{ViewerRole: "nurse"},
	}
	if err := e.Validate(); !errors.Is(err, ErrNoReference) {
		t.Fatalf("expected ErrNoReference, got %v", err)
	}

	e.PrescriptionID = int64p(42)
	if err := e.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateDerivesAction(t *testing.T) {
	e := Entry{
		UserID:          7,
		RefillRequestID: int64p(9),
		Details:         RefillRequested{Quantity: 30, PharmacyID: 3},
	}
	if err := e.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Action != ActionRefillRequested {
		t.Fatalf("action not derived from details: %q", e.Action)
	}
}

func TestValidateRejectsMismatchedAction(t *testing.T) {
	e := Entry{
		UserID:         7,
		PrescriptionID: int64p(42),
		Action:         ActionRefillDecided,
		Details:        PrescriptionViewed{ViewerRole: "nurse"},
	}
	if err := e.Validate(); err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestParseEntry(t *testing.T) {
	data := []byte(`{
		"prescription_id": 42,
		"user_id": 7,
		"action": "consent_recorded",
		"details": {"consent_type": "treatment", "granted": true, "method": "verbal"},
		"ip_address": "10.0.0.9",
		"compliance": {"hipaa_compliant": true, "encryption_status": "at-rest"}
	}`)

	e, err := ParseEntry(data)
	if err != nil {
		t.Fatalf("ParseEntry: %v", err)
	}
	if e.Action != ActionConsentRecorded {
		t.Fatalf("action = %q", e.Action)
	}
	d, ok := e.Details.(ConsentRecorded)
	if !ok {
		t.Fatalf("details type = %T", e.Details)
	}
	if !d.Granted || d.ConsentType != "treatment" || d.Method != "verbal" {
		t.Fatalf("details = %+v", d)
	}
	if !e.Compliance.HIPAACompliant {
		t.Fatal("compliance block lost")
	}
}

func TestParseEntryUnknownAction(t *testing.T) {
	data := []byte(`{"prescription_id": 1, "user_id": 7, "action": "made_up", "details": {}}`)
	if _, err := ParseEntry(data); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestDecodeDetailsRoundsToConcreteType(t *testing.T) {
	d, err := decodeDetails(ActionRefillDecided, []byte(`{"decision":"denied","reason":"early refill"}`))
	if err != nil {
		t.Fatalf("decodeDetails: %v", err)
	}
	rd, ok := d.(RefillDecided)
	if !ok || rd.Decision != "denied" || rd.Reason != "early refill" {
		t.Fatalf("decoded %T %+v", d, d)
	}
}
