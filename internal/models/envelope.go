package models

import "time"

// RegistrationEnvelope asks for a device to receive pushes on a set of
// channels. It arrives over RabbitMQ or the HTTP API.
type RegistrationEnvelope struct {
	RequestID   string    `json:"request_id"`
	DeviceID    string    `json:"device_id"`
	PushType    string    `json:"push_type"`
	Channels    []string  `json:"channels"`
	Topic       string    `json:"topic,omitempty"`
	Environment string    `json:"environment,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
