package push

import (
	"fmt"
	"strings"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/endpoint"
)

// Type is the push gateway a device token belongs to.
type Type int

const (
	TypeNone Type = iota
	TypeAPNS
	TypeAPNS2
	TypeGCM
	TypeMPNS
	// TypeFCM is accepted from callers but stored and sent as TypeGCM.
	TypeFCM
)

// APNS2 environments.
const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
)

// String returns the value used on the wire.
func (t Type) String() string {
	switch t {
	case TypeAPNS:
		return "apns"
	case TypeAPNS2:
		return "apns2"
	case TypeGCM:
		return "gcm"
	case TypeMPNS:
		return "mpns"
	case TypeFCM:
		return "fcm"
	default:
		return ""
	}
}

// normalize maps legacy aliases onto the type the service understands.
func (t Type) normalize() Type {
	if t == TypeFCM {
		return TypeGCM
	}
	return t
}

// ParseType converts a case-insensitive name into a Type. An empty name
// yields TypeNone so the builder reports it as missing.
func ParseType(raw string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return TypeNone, nil
	case "apns":
		return TypeAPNS, nil
	case "apns2":
		return TypeAPNS2, nil
	case "gcm":
		return TypeGCM, nil
	case "fcm":
		return TypeFCM, nil
	case "mpns":
		return TypeMPNS, nil
	default:
		return TypeNone, endpoint.NewValidationError("push_type", fmt.Sprintf("unknown push type %q", raw))
	}
}
