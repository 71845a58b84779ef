package models

// RegistrationResult captures the outcome of one registration envelope.
type RegistrationResult struct {
	RequestID string `json:"request_id"`
	DeviceID  string `json:"device_id"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
}

const (
	StatusProcessing = "processing"
	StatusRegistered = "registered"
	StatusSkipped    = "skipped"
	StatusFailed     = "failed"
)
