package engine

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/roach88/custody/internal/ledger"
)

// MaxFieldBytes bounds eventType, actor and tenantID.
const MaxFieldBytes = 256

var eventTypePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.:-]*$`)

// PayloadValidator checks a payload against the schema registered for its
// event type. Implemented by catalog.Catalog.
type PayloadValidator interface {
	Validate(eventType string, payload ledger.Object) error
}

// ValidateRequest checks req and returns it normalized: identifying fields
// trimmed and a nil payload replaced by an empty object.
//
// All failures are ValidationError or SerializationError; nothing here
// touches storage.
func ValidateRequest(req ledger.AppendRequest, catalog PayloadValidator) (ledger.AppendRequest, error) {
	var err error
	if req.EventType, err = validateField("eventType", req.EventType); err != nil {
		return ledger.AppendRequest{}, err
	}
	if !eventTypePattern.MatchString(req.EventType) {
		return ledger.AppendRequest{}, ledger.NewValidationError(
			"eventType %q must start with a letter and contain only letters, digits, '_', '.', ':' or '-'", req.EventType)
	}
	if req.Actor, err = validateField("actor", req.Actor); err != nil {
		return ledger.AppendRequest{}, err
	}
	if req.TenantID, err = validateField("tenantId", req.TenantID); err != nil {
		return ledger.AppendRequest{}, err
	}

	if req.Payload == nil {
		req.Payload = ledger.Object{}
	}
	if _, err := ledger.MarshalCanonical(req.Payload); err != nil {
		return ledger.AppendRequest{}, ledger.NewSerializationError(err)
	}

	if catalog != nil {
		if err := catalog.Validate(req.EventType, req.Payload); err != nil {
			if ledger.IsValidation(err) {
				return ledger.AppendRequest{}, err
			}
			return ledger.AppendRequest{}, ledger.NewValidationError("%s payload: %v", req.EventType, err)
		}
	}

	return req, nil
}

func validateField(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return "", ledger.NewValidationError("%s is required", name)
	case len(value) > MaxFieldBytes:
		return "", ledger.NewValidationError("%s exceeds %d bytes", name, MaxFieldBytes)
	case !utf8.ValidString(value):
		return "", ledger.NewValidationError("%s is not valid UTF-8", name)
	case strings.IndexFunc(value, unicode.IsControl) >= 0:
		return "", ledger.NewValidationError("%s contains control characters", name)
	}
	return value, nil
}
