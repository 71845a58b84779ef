package push

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/config"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/dispatcher"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/endpoint"
)

const (
	addChannelsPath      = "/v1/push/sub-key/%s/devices/%s"
	addChannelsPathAPNS2 = "/v2/push/sub-key/%s/devices-apns2/%s"
)

// AddChannelResult is returned when the channels were registered. The
// service answers with no useful body, so it carries no fields.
type AddChannelResult struct{}

// AddChannelsToPush enables push notifications on a set of channels for one
// device. Build one per call; it is not safe for concurrent use.
type AddChannelsToPush struct {
	cfg        config.PubNub
	dispatcher *dispatcher.Dispatcher

	channels    []string
	seen        map[string]struct{}
	deviceID    string
	pushType    Type
	topic       string
	environment string
}

// NewAddChannelsToPush returns an empty builder. d may be nil when the caller
// only needs BuildRequest.
func NewAddChannelsToPush(cfg config.PubNub, d *dispatcher.Dispatcher) *AddChannelsToPush {
	return &AddChannelsToPush{
		cfg:        cfg,
		dispatcher: d,
		seen:       make(map[string]struct{}),
	}
}

// Channels adds to the set of channels to register. Repeated calls merge.
// Comma-joined values are split and empty names are dropped.
func (b *AddChannelsToPush) Channels(channels ...string) *AddChannelsToPush {
	for _, item := range channels {
		for _, ch := range strings.Split(item, ",") {
			ch = strings.TrimSpace(ch)
			if ch == "" {
				continue
			}
			if _, ok := b.seen[ch]; ok {
				continue
			}
			b.seen[ch] = struct{}{}
			b.channels = append(b.channels, ch)
		}
	}
	return b
}

// DeviceID is the push token the channels are registered for.
func (b *AddChannelsToPush) DeviceID(id string) *AddChannelsToPush {
	b.deviceID = id
	return b
}

// PushType sets the gateway. FCM is recorded as GCM.
func (b *AddChannelsToPush) PushType(t Type) *AddChannelsToPush {
	b.pushType = t.normalize()
	return b
}

// Topic is the APNS2 bundle identifier.
func (b *AddChannelsToPush) Topic(topic string) *AddChannelsToPush {
	b.topic = topic
	return b
}

// Environment selects the APNS2 environment. Unset means development.
func (b *AddChannelsToPush) Environment(env string) *AddChannelsToPush {
	b.environment = env
	return b
}

// Name identifies the operation in logs and errors.
func (b *AddChannelsToPush) Name() string {
	return "AddChannelsToPush"
}

// OperationType reports OpAddPushNotificationsOnChannels.
func (b *AddChannelsToPush) OperationType() endpoint.OperationType {
	return endpoint.OpAddPushNotificationsOnChannels
}

// Validate reports the first missing parameter.
func (b *AddChannelsToPush) Validate() error {
	if b.cfg.SubscribeKey == "" {
		return endpoint.NewValidationError("subscribe_key", "Subscribe Key not configured")
	}
	if len(b.channels) == 0 {
		return endpoint.NewValidationError("channels", "Channel missing")
	}
	if b.deviceID == "" {
		return endpoint.NewValidationError("device_id", "Device ID is missing for push operation")
	}
	if b.pushType == TypeNone {
		return endpoint.NewValidationError("push_type", "Push Type is missing")
	}
	if b.pushType == TypeAPNS2 && b.topic == "" {
		return endpoint.NewValidationError("topic", "APNS2 topic is missing")
	}
	return nil
}

// BuildRequest returns the GET call for the current parameters. APNS2 uses
// the v2 devices-apns2 path, every other type the v1 devices path.
func (b *AddChannelsToPush) BuildRequest() (*endpoint.Request, error) {
	query := url.Values{}
	query.Set("add", strings.Join(b.channels, ","))

	var path string
	switch b.pushType {
	case TypeAPNS2:
		path = addChannelsPathAPNS2
		query.Set("topic", b.topic)
		env := b.environment
		if env == "" {
			// TODO: confirm with product whether release builds should default to production.
			env = EnvironmentDevelopment
		}
		query.Set("environment", env)
	case TypeAPNS, TypeGCM, TypeMPNS:
		path = addChannelsPath
		query.Set("type", b.pushType.String())
	default:
		return nil, fmt.Errorf("unsupported push type %d", b.pushType)
	}

	return &endpoint.Request{
		Method:         http.MethodGet,
		Path:           fmt.Sprintf(path, url.PathEscape(b.cfg.SubscribeKey), url.PathEscape(b.deviceID)),
		Query:          query,
		AuthRequired:   true,
		RequestTimeout: b.cfg.NonSubscribeRequestTimeout,
		ConnectTimeout: b.cfg.ConnectTimeout,
	}, nil
}

// ParseResponse accepts any payload the transport managed to decode.
func (b *AddChannelsToPush) ParseResponse(payload []byte) (*AddChannelResult, error) {
	return &AddChannelResult{}, nil
}

// Sync validates, sends and decodes the call through the bound dispatcher.
func (b *AddChannelsToPush) Sync(ctx context.Context) (*AddChannelResult, error) {
	if b.dispatcher == nil {
		return nil, fmt.Errorf("%s: no dispatcher configured", b.Name())
	}
	return dispatcher.Run[*AddChannelResult](ctx, b.dispatcher, b)
}
