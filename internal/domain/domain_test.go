package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestPropertyValue_JSON(t *testing.T) {
	v := TextValue("hello")

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// Сериализуется как тегированный envelope
	var env map[string]any
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env["type"] != "text" || env["value"] != "hello" {
		t.Errorf("envelope = %v", env)
	}

	var back PropertyValue
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Type != PropertyTypeText || back.Text != "hello" {
		t.Errorf("round trip = %+v", back)
	}
}

func TestPropertyValue_JSONRange(t *testing.T) {
	v := RangeValue(1.5, 10)

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back PropertyValue
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.RangeMin != 1.5 || back.RangeMax != 10 {
		t.Errorf("round trip = %+v", back)
	}
}

func TestPropertyValue_JSONDate(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	v := DateValue(ts)

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back PropertyValue
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Date.Equal(ts) {
		t.Errorf("date = %v, want %v", back.Date, ts)
	}
}

func TestPropertyValue_JSONUnknownType(t *testing.T) {
	var v PropertyValue
	err := json.Unmarshal([]byte(`{"type":"hologram","value":"x"}`), &v)
	if err == nil {
		t.Error("expected error for unknown property type")
	}
}

func TestPropertyValue_Plain(t *testing.T) {
	tests := []struct {
		name string
		v    PropertyValue
		want any
	}{
		{"text", TextValue("x"), "x"},
		{"number", NumberValue(3.5), 3.5},
		{"bool", BoolValue(true), true},
		{"select", SelectValue("draft"), "draft"},
		{"media", MediaValue("https://cdn/x.png"), "https://cdn/x.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.Plain(); got != tt.want {
				t.Errorf("Plain() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	if ExecutionStatusPending.IsTerminal() || ExecutionStatusRunning.IsTerminal() {
		t.Error("pending/running must not be terminal")
	}
	if !ExecutionStatusSuccess.IsTerminal() || !ExecutionStatusError.IsTerminal() {
		t.Error("success/error must be terminal")
	}
	if StepStatusPending.IsTerminal() {
		t.Error("pending step must not be terminal")
	}
	if !StepStatusError.IsTerminal() {
		t.Error("error step must be terminal")
	}
}

func TestExecution_Lifecycle(t *testing.T) {
	exec := &Execution{Status: ExecutionStatusPending}

	exec.MarkRunning()
	if exec.Status != ExecutionStatusRunning || exec.StartedAt == nil {
		t.Fatalf("after MarkRunning: %+v", exec)
	}

	exec.MarkSuccess()
	if exec.Status != ExecutionStatusSuccess {
		t.Errorf("status = %s", exec.Status)
	}
	if exec.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}
	if !exec.IsFinished() {
		t.Error("IsFinished should be true")
	}
	if exec.DurationMs < 0 {
		t.Errorf("duration = %d", exec.DurationMs)
	}
}

func TestExecution_MarkError(t *testing.T) {
	exec := &Execution{Status: ExecutionStatusRunning}
	exec.MarkError("boom")

	if exec.Status != ExecutionStatusError {
		t.Errorf("status = %s", exec.Status)
	}
	if exec.Error != "boom" {
		t.Errorf("error = %q", exec.Error)
	}
}

func TestStepResult_ResultText(t *testing.T) {
	step := &StepResult{Response: "text"}
	if step.ResultText() != "text" {
		t.Errorf("ResultText = %q", step.ResultText())
	}

	// Ошибка имеет приоритет над response
	step.Error = "failed"
	if step.ResultText() != "failed" {
		t.Errorf("ResultText = %q", step.ResultText())
	}

	empty := &StepResult{}
	if empty.ResultText() != "" {
		t.Errorf("ResultText = %q", empty.ResultText())
	}
}

func TestFlow_SortedTemplates(t *testing.T) {
	flow := &Flow{
		Templates: []PromptTemplate{
			{ID: uuid.New(), Order: 2},
			{ID: uuid.New(), Order: 0},
			{ID: uuid.New(), Order: 1},
		},
	}

	sorted := flow.SortedTemplates()
	for i, tpl := range sorted {
		if tpl.Order != i {
			t.Errorf("sorted[%d].Order = %d", i, tpl.Order)
		}
	}

	// Исходный срез не изменён
	if flow.Templates[0].Order != 2 {
		t.Error("SortedTemplates must not mutate the flow")
	}
}
