package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_messageFrame(t *testing.T) {
	ts := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	frame := messageFrame("hello", "stu1", ts)

	assert.Equal(t, "hello", frame.Message)
	assert.Equal(t, "stu1", frame.Username)
	assert.Equal(t, "2026-03-14 15:09:26", frame.Timestamp)
	assert.Empty(t, frame.Error)

	t.Run("timestamp is normalized to UTC", func(t *testing.T) {
		loc := time.FixedZone("UTC+2", 2*60*60)
		frame := messageFrame("hello", "stu1", ts.In(loc))
		assert.Equal(t, "2026-03-14 15:09:26", frame.Timestamp)
	})
}

func Test_errorFrames(t *testing.T) {
	tcases := []struct {
		name     string
		frame    *ServerFrame
		expected string
	}{
		{"empty message", errEmptyMessage(), "message cannot be empty"},
		{"invalid frame", errInvalidFrame(), "invalid message format"},
		{"internal error", errInternalError(), "internal server error"},
		{"service unavailable", errServiceUnavailable(), "service unavailable"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.frame.Error)
			assert.Empty(t, tc.frame.Message)
			assert.Empty(t, tc.frame.Username)
			assert.Empty(t, tc.frame.Timestamp)

			// error frames serialize to just the error field
			data, err := json.Marshal(tc.frame)
			assert.NoError(t, err)
			assert.JSONEq(t, `{"error":"`+tc.expected+`"}`, string(data))
		})
	}
}
