package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Action identifies what was done. Every action has exactly one details
// payload type; free-form blobs are not accepted.
type Action string

const (
	ActionPrescriptionCreated Action = "prescription_created"
	ActionPrescriptionViewed  Action = "prescription_viewed"
	ActionRefillRequested     Action = "refill_requested"
	ActionRefillDecided       Action = "refill_decided"
	ActionConsentRecorded     Action = "consent_recorded"
)

var (
	// ErrNoReference is returned when an entry names neither a
	// prescription nor a refill request.
	ErrNoReference = errors.New("audit entry must reference a prescription or refill request")

	// ErrUnknownAction is returned for an action with no registered
	// details payload.
	ErrUnknownAction = errors.New("unknown audit action")

	// ErrWriteFailed wraps storage failures on append so callers can
	// decide how to react (retry queue, alert) instead of losing the
	// record silently.
	ErrWriteFailed = errors.New("audit write failed")
)

// Details is the typed payload attached to an entry. Each implementation
// binds itself to one action.
type Details interface {
	Action() Action
}

// PrescriptionCreated records a new prescription entering the system.
type PrescriptionCreated struct {
	MedicationName string `json:"medication_name"`
	Dosage         string `json:"dosage"`
	PrescriberID   int64  `json:"prescriber_id"`
}

func (PrescriptionCreated) Action() Action { return ActionPrescriptionCreated }

// PrescriptionViewed records read access to a prescription.
type PrescriptionViewed struct {
	ViewerRole string `json:"viewer_role"`
	Reason     string `json:"reason,omitempty"`
}

func (PrescriptionViewed) Action() Action { return ActionPrescriptionViewed }

// RefillRequested records a patient-initiated refill request.
type RefillRequested struct {
	Quantity   int   `json:"quantity"`
	PharmacyID int64 `json:"pharmacy_id"`
}

func (RefillRequested) Action() Action { return ActionRefillRequested }

// RefillDecided records the outcome of a refill review.
type RefillDecided struct {
	Decision string `json:"decision"` // approved | denied
	Reason   string `json:"reason,omitempty"`
}

func (RefillDecided) Action() Action { return ActionRefillDecided }

// ConsentRecorded records a consent capture tied to a prescription.
type ConsentRecorded struct {
	ConsentType string `json:"consent_type"`
	Granted     bool   `json:"granted"`
	Method      string `json:"method"` // verbal | written | digital
}

func (ConsentRecorded) Action() Action { return ActionConsentRecorded }

// Compliance is the regulatory metadata block attached to every entry.
type Compliance struct {
	HIPAACompliant   bool   `json:"hipaa_compliant"`
	EncryptionStatus string `json:"encryption_status,omitempty"`
	AuditTrail       string `json:"audit_trail,omitempty"`
	DigitalSignature string `json:"digital_signature,omitempty"`
}

// Entry is one append-only compliance record. Entries are never mutated
// or deleted; created_at drives all ordering and range filters.
type Entry struct {
	ID              int64      `json:"id"`
	PrescriptionID  *int64     `json:"prescription_id,omitempty"`
	RefillRequestID *int64     `json:"refill_request_id,omitempty"`
	UserID          int64      `json:"user_id"`
	Action          Action     `json:"action"`
	Details         Details    `json:"details"`
	IPAddress       string     `json:"ip_address,omitempty"`
	UserAgent       string     `json:"user_agent,omitempty"`
	Signature       string     `json:"signature,omitempty"`
	Compliance      Compliance `json:"compliance"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Validate checks the traceability invariant and the action/details pairing.
func (e *Entry) Validate() error {
	if e.UserID <= 0 {
		return errors.New("audit entry requires a user id")
	}
	if e.PrescriptionID == nil && e.RefillRequestID == nil {
		return ErrNoReference
	}
	if e.Details == nil {
		return errors.New("audit entry requires details")
	}
	if e.Action == "" {
		e.Action = e.Details.Action()
	}
	if e.Action != e.Details.Action() {
		return fmt.Errorf("action %q does not match details payload for %q", e.Action, e.Details.Action())
	}
	return nil
}

// decodeDetails unmarshals a stored payload into the concrete type for its action.
func decodeDetails(action Action, raw []byte) (Details, error) {
	switch action {
	case ActionPrescriptionCreated:
		var d PrescriptionCreated
		return d, json.Unmarshal(raw, &d)
	case ActionPrescriptionViewed:
		var d PrescriptionViewed
		return d, json.Unmarshal(raw, &d)
	case ActionRefillRequested:
		var d RefillRequested
		return d, json.Unmarshal(raw, &d)
	case ActionRefillDecided:
		var d RefillDecided
		return d, json.Unmarshal(raw, &d)
	case ActionConsentRecorded:
		var d ConsentRecorded
		return d, json.Unmarshal(raw, &d)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

// ParseEntry decodes a client-submitted entry, resolving the details
// payload by action and validating the result.
func ParseEntry(data []byte) (Entry, error) {
	var wire struct {
		PrescriptionID  *int64          `json:"prescription_id"`
		RefillRequestID *int64          `json:"refill_request_id"`
		UserID          int64           `json:"user_id"`
		Action          Action          `json:"action"`
		Details         json.RawMessage `json:"details"`
		IPAddress       string          `json:"ip_address"`
		UserAgent       string          `json:"user_agent"`
		Signature       string          `json:"signature"`
		Compliance      Compliance      `json:"compliance"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return Entry{}, fmt.Errorf("decode audit entry: %w", err)
	}

	details, err := decodeDetails(wire.Action, wire.Details)
	if err != nil {
		return Entry{}, err
	}

	e := Entry{
		PrescriptionID:  wire.PrescriptionID,
		RefillRequestID: wire.RefillRequestID,
		UserID:          wire.UserID,
		Action:          wire.Action,
		Details:         details,
		IPAddress:       wire.IPAddress,
		UserAgent:       wire.UserAgent,
		Signature:       wire.Signature,
		Compliance:      wire.Compliance,
	}
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	return e, nil
}
