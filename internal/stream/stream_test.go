package stream

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-service/internal/logging"
	"notification-service/internal/models"
)

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestDecodePayload(t *testing.T) {
	t.Run("decodes base64 fields and skips bookkeeping keys", func(t *testing.T) {
		p, err := DecodePayload(map[string]any{
			"userId":    b64("123"),
			"email":     b64("a@b.com"),
			"init":      "1",
			"_internal": b64("x"),
		})
		require.NoError(t, err)
		assert.Equal(t, "a@b.com", p.Get("email"))
		assert.False(t, p.Has("init"))
		assert.False(t, p.Has("_internal"))

		id, err := p.Int("userId")
		require.NoError(t, err)
		assert.Equal(t, 123, id)
	})

	t.Run("invalid base64 is a decode error", func(t *testing.T) {
		_, err := DecodePayload(map[string]any{"userId": "not base64!!"})
		assert.Error(t, err)
	})

	t.Run("non-string value is a decode error", func(t *testing.T) {
		_, err := DecodePayload(map[string]any{"userId": 42})
		assert.Error(t, err)
	})
}

func TestPayloadParsing(t *testing.T) {
	p := Payload{
		"score":      "97.5",
		"proctorIds": "[4,8]",
		"assignedUsers": `[{"userId":1,"username":"u1","email":"u1@x.com"},
			{"userId":2,"username":"u2","email":"u2@x.com"}]`,
	}

	score, err := p.Float("score")
	require.NoError(t, err)
	assert.Equal(t, 97.5, score)

	ids, err := p.IntSlice("proctorIds")
	require.NoError(t, err)
	assert.Equal(t, []int{4, 8}, ids)

	users, err := p.AssignedUsers("assignedUsers")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u2@x.com", users[1].Email)
}

type processedCall struct {
	EventType string
	Recipient int
	Email     string
	Data      map[string]any
	Channels  []models.Channel
}

type fakeProcessor struct {
	calls []processedCall
	err   error
}

func (f *fakeProcessor) ProcessNotification(_ context.Context, eventType string, recipientID int,
	recipientEmail string, data map[string]any, requested []models.Channel) error {
	f.calls = append(f.calls, processedCall{
		EventType: eventType, Recipient: recipientID, Email: recipientEmail,
		Data: data, Channels: requested,
	})
	return f.err
}

func newTestConsumer(svc Processor) *Consumer {
	return NewConsumer(nil, Config{
		UserEventsStream:       "user-events",
		AssessmentEventsStream: "assessment-events",
		ProctoringEventsStream: "proctoring-events",
		Group:                  "notification-service",
		Consumer:               "test-1",
	}, svc, logging.NewNop())
}

func TestHandleUserEvent(t *testing.T) {
	t.Run("registered user goes to email channel", func(t *testing.T) {
		svc := &fakeProcessor{}
		c := newTestConsumer(svc)

		err := c.handleUserEvent(context.Background(), Payload{
			"userId": "123", "username": "jdoe", "email": "a@b.com",
			"firstName": "John", "lastName": "Doe",
		})
		require.NoError(t, err)
		require.Len(t, svc.calls, 1)

		call := svc.calls[0]
		assert.Equal(t, models.EventUserRegistered, call.EventType)
		assert.Equal(t, 123, call.Recipient)
		assert.Equal(t, "a@b.com", call.Email)
		assert.Equal(t, "John", call.Data["firstName"])
		assert.Equal(t, []models.Channel{models.ChannelEmail}, call.Channels)
	})

	t.Run("missing userId drops the event without error", func(t *testing.T) {
		svc := &fakeProcessor{}
		c := newTestConsumer(svc)
		err := c.handleUserEvent(context.Background(), Payload{"email": "a@b.com"})
		require.NoError(t, err)
		assert.Empty(t, svc.calls)
	})

	t.Run("processor error propagates for redelivery", func(t *testing.T) {
		svc := &fakeProcessor{err: errors.New("store down")}
		c := newTestConsumer(svc)
		err := c.handleUserEvent(context.Background(), Payload{"userId": "1"})
		assert.Error(t, err)
	})
}

func TestHandleAssessmentEvent(t *testing.T) {
	t.Run("sessionId shape routes to session completion", func(t *testing.T) {
		svc := &fakeProcessor{}
		c := newTestConsumer(svc)

		err := c.handleAssessmentEvent(context.Background(), Payload{
			"sessionId": "s-9", "userId": "4", "username": "u4",
			"email": "u4@x.com", "assessmentName": "Algebra", "score": "88",
		})
		require.NoError(t, err)
		require.Len(t, svc.calls, 1)
		assert.Equal(t, models.EventSessionCompleted, svc.calls[0].EventType)
		assert.Equal(t, []models.Channel{models.ChannelEmail}, svc.calls[0].Channels)
	})

	t.Run("assignedUsers shape fans out to every user on SSE and email", func(t *testing.T) {
		svc := &fakeProcessor{}
		c := newTestConsumer(svc)

		err := c.handleAssessmentEvent(context.Background(), Payload{
			"assessmentId":   "a-1",
			"assessmentName": "Finals",
			"dueDate":        "2025-06-01",
			"assignedUsers":  `[{"userId":1,"username":"u1","email":"u1@x.com"},{"userId":2,"username":"u2","email":"u2@x.com"}]`,
		})
		require.NoError(t, err)
		require.Len(t, svc.calls, 2)

		for i, call := range svc.calls {
			assert.Equal(t, models.EventAssessmentPublished, call.EventType)
			assert.Equal(t, i+1, call.Recipient)
			assert.Equal(t, []models.Channel{models.ChannelRealtime, models.ChannelEmail}, call.Channels)
		}
		assert.Equal(t, "u1", svc.calls[0].Data["username"])
		assert.Equal(t, "u2", svc.calls[1].Data["username"])
	})

	t.Run("unknown shape is dropped", func(t *testing.T) {
		svc := &fakeProcessor{}
		c := newTestConsumer(svc)
		err := c.handleAssessmentEvent(context.Background(), Payload{"mystery": "x"})
		require.NoError(t, err)
		assert.Empty(t, svc.calls)
	})
}

func TestHandleProctoringEvent(t *testing.T) {
	t.Run("notifies every proctor over SSE and email", func(t *testing.T) {
		svc := &fakeProcessor{}
		c := newTestConsumer(svc)

		err := c.handleProctoringEvent(context.Background(), Payload{
			"sessionId": "s-1", "username": "student7",
			"violationType": "tab_switch", "severity": "HIGH",
			"proctorIds": "[10,11]",
		})
		require.NoError(t, err)
		require.Len(t, svc.calls, 2)
		assert.Equal(t, 10, svc.calls[0].Recipient)
		assert.Equal(t, 11, svc.calls[1].Recipient)
		assert.Empty(t, svc.calls[0].Email)
		assert.NotEmpty(t, svc.calls[0].Data["timestamp"])
	})

	t.Run("no proctor ids drops the event", func(t *testing.T) {
		svc := &fakeProcessor{}
		c := newTestConsumer(svc)
		err := c.handleProctoringEvent(context.Background(), Payload{"sessionId": "s-1"})
		require.NoError(t, err)
		assert.Empty(t, svc.calls)
	})
}
