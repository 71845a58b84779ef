package push

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/config"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/dispatcher"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/endpoint"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/pkg/logger"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/pkg/retry"
)

func testConfig() config.PubNub {
	return config.PubNub{
		SubscribeKey:               "sub-c-123",
		NonSubscribeRequestTimeout: 7 * time.Second,
		ConnectTimeout:             3 * time.Second,
	}
}

func requireValidationError(t *testing.T, err error, field string) *endpoint.ValidationError {
	t.Helper()
	var verr *endpoint.ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	assert.Equal(t, field, verr.Field)
	return verr
}

func TestValidateSucceedsForCompleteRequest(t *testing.T) {
	for _, pt := range []Type{TypeAPNS, TypeGCM, TypeMPNS, TypeFCM} {
		b := NewAddChannelsToPush(testConfig(), nil).
			Channels("a", "b").
			DeviceID("dev1").
			PushType(pt)
		assert.NoError(t, b.Validate(), pt.String())
	}

	b := NewAddChannelsToPush(testConfig(), nil).
		Channels("a").
		DeviceID("dev1").
		PushType(TypeAPNS2).
		Topic("com.example.app")
	assert.NoError(t, b.Validate())
}

func TestValidateOrder(t *testing.T) {
	// Nothing set at all: the subscribe key wins.
	err := NewAddChannelsToPush(config.PubNub{}, nil).Validate()
	verr := requireValidationError(t, err, "subscribe_key")
	assert.Equal(t, "Subscribe Key not configured", verr.Message)

	err = NewAddChannelsToPush(testConfig(), nil).Validate()
	verr = requireValidationError(t, err, "channels")
	assert.Equal(t, "Channel missing", verr.Message)

	err = NewAddChannelsToPush(testConfig(), nil).Channels("a").Validate()
	verr = requireValidationError(t, err, "device_id")
	assert.Equal(t, "Device ID is missing for push operation", verr.Message)

	err = NewAddChannelsToPush(testConfig(), nil).Channels("a").DeviceID("dev1").Validate()
	verr = requireValidationError(t, err, "push_type")
	assert.Equal(t, "Push Type is missing", verr.Message)

	err = NewAddChannelsToPush(testConfig(), nil).Channels("a").DeviceID("dev1").PushType(TypeAPNS2).Validate()
	verr = requireValidationError(t, err, "topic")
	assert.Contains(t, verr.Error(), "topic")
}

func TestTopicOnlyRequiredForAPNS2(t *testing.T) {
	b := NewAddChannelsToPush(testConfig(), nil).Channels("a").DeviceID("dev1").PushType(TypeAPNS)
	assert.NoError(t, b.Validate())
}

func TestChannelsMerge(t *testing.T) {
	b := NewAddChannelsToPush(testConfig(), nil).
		Channels("a").
		Channels([]string{"b", "c"}...).
		Channels("a", "c")
	assert.ElementsMatch(t, []string{"a", "b", "c"}, b.channels)
}

func TestChannelsSkipsEmptyNames(t *testing.T) {
	b := NewAddChannelsToPush(testConfig(), nil).
		Channels("").
		Channels(" , ").
		DeviceID("dev1").
		PushType(TypeGCM)
	verr := requireValidationError(t, b.Validate(), "channels")
	assert.Equal(t, "Channel missing", verr.Message)
}

func TestChannelsSplitsCommaJoinedNames(t *testing.T) {
	req, err := NewAddChannelsToPush(testConfig(), nil).
		Channels("a,b").
		Channels("a", "b, c").
		DeviceID("dev1").
		PushType(TypeGCM).
		BuildRequest()
	require.NoError(t, err)
	assert.Equal(t, "a,b,c", req.Query.Get("add"))
}

func TestBuildRequestV1(t *testing.T) {
	req, err := NewAddChannelsToPush(testConfig(), nil).
		Channels("x").
		DeviceID("dev1").
		PushType(TypeGCM).
		BuildRequest()
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/v1/push/sub-key/sub-c-123/devices/dev1", req.Path)
	assert.Equal(t, "x", req.Query.Get("add"))
	assert.Equal(t, "gcm", req.Query.Get("type"))
	assert.False(t, req.Query.Has("topic"))
	assert.False(t, req.Query.Has("environment"))
	assert.Nil(t, req.Body)
	assert.True(t, req.AuthRequired)
	assert.Equal(t, 7*time.Second, req.RequestTimeout)
	assert.Equal(t, 3*time.Second, req.ConnectTimeout)
}

func TestBuildRequestNormalizesFCM(t *testing.T) {
	req, err := NewAddChannelsToPush(testConfig(), nil).
		Channels("x").
		DeviceID("dev1").
		PushType(TypeFCM).
		BuildRequest()
	require.NoError(t, err)
	assert.Equal(t, "gcm", req.Query.Get("type"))
	assert.NotEqual(t, "fcm", req.Query.Get("type"))
}

func TestBuildRequestAPNS2(t *testing.T) {
	req, err := NewAddChannelsToPush(testConfig(), nil).
		Channels("a", "b").
		DeviceID("token-1").
		PushType(TypeAPNS2).
		Topic("t1").
		BuildRequest()
	require.NoError(t, err)

	assert.Equal(t, "/v2/push/sub-key/sub-c-123/devices-apns2/token-1", req.Path)
	assert.Equal(t, "a,b", req.Query.Get("add"))
	assert.Equal(t, "t1", req.Query.Get("topic"))
	assert.Equal(t, EnvironmentDevelopment, req.Query.Get("environment"))
	assert.False(t, req.Query.Has("type"))
}

func TestBuildRequestAPNS2Environment(t *testing.T) {
	req, err := NewAddChannelsToPush(testConfig(), nil).
		Channels("a").
		DeviceID("token-1").
		PushType(TypeAPNS2).
		Topic("t1").
		Environment(EnvironmentProduction).
		BuildRequest()
	require.NoError(t, err)
	assert.Equal(t, "production", req.Query.Get("environment"))
}

func TestEnvironmentIgnoredOutsideAPNS2(t *testing.T) {
	req, err := NewAddChannelsToPush(testConfig(), nil).
		Channels("a").
		DeviceID("dev1").
		PushType(TypeAPNS).
		Environment(EnvironmentProduction).
		Topic("ignored").
		BuildRequest()
	require.NoError(t, err)
	assert.Equal(t, "apns", req.Query.Get("type"))
	assert.False(t, req.Query.Has("environment"))
	assert.False(t, req.Query.Has("topic"))
}

func TestParseResponseAcceptsAnyPayload(t *testing.T) {
	b := NewAddChannelsToPush(testConfig(), nil)
	for _, payload := range [][]byte{nil, []byte("1"), []byte(`[1,"Modified Channels"]`)} {
		res, err := b.ParseResponse(payload)
		require.NoError(t, err)
		assert.NotNil(t, res)
	}
}

func TestOperationMetadata(t *testing.T) {
	b := NewAddChannelsToPush(testConfig(), nil)
	assert.Equal(t, "AddChannelsToPush", b.Name())
	assert.Equal(t, endpoint.OpAddPushNotificationsOnChannels, b.OperationType())
}

type recordingExecutor struct {
	requests []*endpoint.Request
}

func (r *recordingExecutor) Execute(_ context.Context, req *endpoint.Request) (*endpoint.Response, error) {
	r.requests = append(r.requests, req)
	return &endpoint.Response{StatusCode: http.StatusOK, Body: []byte(`[1,"Modified Channels"]`)}, nil
}

func TestSync(t *testing.T) {
	exec := &recordingExecutor{}
	d := dispatcher.New(exec, nil, logger.Discard(), retry.Config{MaxAttempts: 1})

	res, err := NewAddChannelsToPush(testConfig(), d).
		Channels("x").
		DeviceID("dev1").
		PushType(TypeMPNS).
		Sync(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, res)
	require.Len(t, exec.requests, 1)
	assert.Equal(t, "mpns", exec.requests[0].Query.Get("type"))
}

func TestSyncDoesNotSendInvalidRequest(t *testing.T) {
	exec := &recordingExecutor{}
	d := dispatcher.New(exec, nil, logger.Discard(), retry.Config{MaxAttempts: 1})

	_, err := NewAddChannelsToPush(testConfig(), d).
		Channels("x").
		PushType(TypeGCM).
		Sync(context.Background())
	requireValidationError(t, err, "device_id")
	assert.Empty(t, exec.requests)
}

func TestSyncWithoutDispatcher(t *testing.T) {
	_, err := NewAddChannelsToPush(testConfig(), nil).Sync(context.Background())
	assert.Error(t, err)
}
