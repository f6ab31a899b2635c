package cqrs

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/learnerstore/pkg/domain"
)

func TestNewResponse(t *testing.T) {
	resp := NewResponse("agg-1", []*domain.Event{
		{ID: "e1", EventType: "LearnerCreated", SchemaVersion: "1.0", Version: 1, Data: []byte(`{"name":"Ada"}`)},
		{ID: "e2", EventType: "LessonStarted", SchemaVersion: "1.0", Version: 2, Data: []byte(`{}`)},
	})

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"success": true,
		"aggregate_id": "agg-1",
		"version": 2,
		"events": [
			{"event_id": "e1", "event_type": "LearnerCreated", "schema_version": "1.0", "version": 1, "payload": {"name": "Ada"}},
			{"event_id": "e2", "event_type": "LessonStarted", "schema_version": "1.0", "version": 2, "payload": {}}
		]
	}`, string(data))
	assert.NoError(t, resp.Err())
}

func TestErrorResponse(t *testing.T) {
	resp := ErrorResponse("agg-1", fmt.Errorf("append: %w", domain.ErrConcurrencyConflict))

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"success": false,
		"aggregate_id": "agg-1",
		"error": {"code": "CONFLICT", "message": "append: concurrency conflict: aggregate version mismatch"}
	}`, string(data))

	err = resp.Err()
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
	assert.ErrorIs(t, err, &Error{Code: "CONFLICT"})
	assert.NotErrorIs(t, err, domain.ErrInvalidCommand)
}

func TestResponse_ErrWithoutDetails(t *testing.T) {
	err := (&Response{}).Err()
	var wireErr *Error
	require.True(t, errors.As(err, &wireErr))
	assert.Equal(t, "UNKNOWN", wireErr.Code)
}
