package enums

import "fmt"

// IntentStatus tracks a gateway payment intent.
type IntentStatus string

const (
	IntentStatusCreated  IntentStatus = "created"
	IntentStatusCaptured IntentStatus = "captured"
	IntentStatusFailed   IntentStatus = "failed"
)

var validIntentStatuses = []IntentStatus{
	IntentStatusCreated,
	IntentStatusCaptured,
	IntentStatusFailed,
}

// IsValid reports whether the value is a known IntentStatus.
func (s IntentStatus) IsValid() bool {
	for _, candidate := range validIntentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseIntentStatus converts raw input into an IntentStatus.
func ParseIntentStatus(value string) (IntentStatus, error) {
	for _, candidate := range validIntentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid intent status %q", value)
}
