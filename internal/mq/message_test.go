package mq

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParsePayload(t *testing.T) {
	execID := uuid.New()
	raw, _ := json.Marshal(ExecutionPendingPayload{ExecutionID: execID})
	msg := Message{
		Type:      MessageTypeExecutionPending,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}

	payload, err := ParsePayload[ExecutionPendingPayload](msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.ExecutionID != execID {
		t.Errorf("execution_id = %s, want %s", payload.ExecutionID, execID)
	}
}

func TestParsePayload_Invalid(t *testing.T) {
	msg := Message{Type: MessageTypeExecutionPending, Payload: json.RawMessage(`not json`)}
	if _, err := ParsePayload[ExecutionPendingPayload](msg); err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestMessage_RoundTrip(t *testing.T) {
	execID := uuid.New()
	raw, _ := json.Marshal(ExecutionCompletedPayload{
		ExecutionID: execID,
		FlowID:      uuid.New(),
		Status:      "error",
		Error:       "backend rate limited",
	})
	msg := Message{Type: MessageTypeExecutionCompleted, Timestamp: time.Now().UTC(), Payload: raw}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back Message
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Type != MessageTypeExecutionCompleted {
		t.Errorf("type = %s", back.Type)
	}

	payload, err := ParsePayload[ExecutionCompletedPayload](back)
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if payload.ExecutionID != execID || payload.Error != "backend rate limited" {
		t.Errorf("payload = %+v", payload)
	}
}
