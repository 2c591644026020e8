package engine

import (
	"strings"
	"testing"
)

func TestNewContext(t *testing.T) {
	// С nil-аргументами
	ctx := NewContext(nil, nil, nil)
	if ctx.Session == nil {
		t.Error("Session should not be nil")
	}
	if ctx.Row == nil {
		t.Error("Row should not be nil")
	}
	if ctx.Variable == nil {
		t.Error("Variable should not be nil")
	}

	// С данными
	ctx = NewContext(
		map[string]any{"user": map[string]any{"email": "a@b.c"}},
		map[string]any{"name": "Widget"},
		map[string]string{"tone": "formal"},
	)
	if ctx.Row["name"] != "Widget" {
		t.Error("Row should contain provided values")
	}
	if ctx.Variable["tone"] != "formal" {
		t.Error("Variable should contain provided values")
	}
}

func TestContext_Results(t *testing.T) {
	ctx := NewContext(nil, nil, nil)

	if _, ok := ctx.Result(0); ok {
		t.Error("empty context should have no results")
	}

	// Запись не по порядку: пропущенные позиции — пустые строки
	ctx.SetResult(2, "third")
	if got, ok := ctx.Result(2); !ok || got != "third" {
		t.Errorf("Result(2) = %q, %v", got, ok)
	}
	if got, ok := ctx.Result(0); !ok || got != "" {
		t.Errorf("Result(0) = %q, %v; want empty placeholder", got, ok)
	}

	ctx.SetResult(0, "first")
	if got, _ := ctx.Result(0); got != "first" {
		t.Errorf("Result(0) = %q", got)
	}

	// Отрицательный order игнорируется
	ctx.SetResult(-1, "nope")
	if _, ok := ctx.Result(-1); ok {
		t.Error("Result(-1) should report absence")
	}
}

func TestContext_Snapshot(t *testing.T) {
	ctx := NewContext(nil, map[string]any{"name": "Widget"}, nil)
	ctx.SetResult(0, "hello")

	snap := ctx.Snapshot()

	pf, ok := snap["promptFlow"].(map[string]any)
	if !ok {
		t.Fatal("snapshot should contain promptFlow")
	}
	results, ok := pf["results"].([]string)
	if !ok || len(results) != 1 || results[0] != "hello" {
		t.Fatalf("promptFlow.results = %v", pf["results"])
	}

	// Snapshot — копия: последующий SetResult её не меняет
	ctx.SetResult(0, "changed")
	if results[0] != "hello" {
		t.Error("snapshot results should not alias live state")
	}
}

func TestCompile_Paths(t *testing.T) {
	ctx := NewContext(
		map[string]any{
			"user":   map[string]any{"email": "dev@example.com"},
			"tenant": map[string]any{"name": "Acme"},
		},
		map[string]any{
			"name":  "Widget",
			"specs": map[string]any{"weight": "2kg"},
		},
		map[string]string{"tone": "formal"},
	)
	ctx.SetResult(0, "a catchy slogan")

	c := NewCompiler()

	tests := []struct {
		name     string
		source   string
		expected string
	}{
		{
			name:     "row property",
			source:   "Product: {{row.name}}",
			expected: "Product: Widget",
		},
		{
			name:     "nested row property",
			source:   "Weight: {{row.specs.weight}}",
			expected: "Weight: 2kg",
		},
		{
			name:     "session",
			source:   "{{session.user.email}} / {{session.tenant.name}}",
			expected: "dev@example.com / Acme",
		},
		{
			name:     "variable",
			source:   "Tone: {{variable.tone}}",
			expected: "Tone: formal",
		},
		{
			name:     "prior step result by index",
			source:   "Based on: {{promptFlow.results.[0]}}",
			expected: "Based on: a catchy slogan",
		},
		{
			name:     "missing path renders empty",
			source:   "[{{row.nosuch.field}}]",
			expected: "[]",
		},
		{
			name:     "plain text",
			source:   "No placeholders here.",
			expected: "No placeholders here.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Compile("tpl", tt.source, ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestCompile_ParseError(t *testing.T) {
	c := NewCompiler()
	ctx := NewContext(nil, nil, nil)

	_, err := c.Compile("Broken template", "{{#if}}", ctx)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsCompileError(err) {
		t.Fatalf("expected CompileError, got %T", err)
	}
	if !strings.Contains(err.Error(), "Broken template") {
		t.Errorf("error should name the template: %v", err)
	}
}

func TestCompile_Switch(t *testing.T) {
	c := NewCompiler()
	source := `{{#switch variable.tone}}{{#case "formal"}}Dear customer{{/case}}{{#case "casual"}}Hey{{/case}}{{#default}}Hello{{/default}}{{/switch}}`

	tests := []struct {
		tone     string
		expected string
	}{
		{"formal", "Dear customer"},
		{"casual", "Hey"},
		{"pirate", "Hello"},
	}

	for _, tt := range tests {
		t.Run(tt.tone, func(t *testing.T) {
			ctx := NewContext(nil, nil, map[string]string{"tone": tt.tone})
			got, err := c.Compile("tpl", source, ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestCompile_SwitchFirstMatchWins(t *testing.T) {
	c := NewCompiler()
	source := `{{#switch variable.v}}{{#case "x"}}one{{/case}}{{#case "x"}}two{{/case}}{{/switch}}`

	ctx := NewContext(nil, nil, map[string]string{"v": "x"})
	got, err := c.Compile("tpl", source, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "one" {
		t.Errorf("expected %q, got %q", "one", got)
	}
}

func TestCompile_Block(t *testing.T) {
	c := NewCompiler()

	tests := []struct {
		name     string
		source   string
		row      map[string]any
		expected string
	}{
		{
			name:     "body present",
			source:   `{{#block title="Context:" footer="---"}}{{row.name}}{{/block}}`,
			row:      map[string]any{"name": "Widget"},
			expected: "Context:\nWidget\n---",
		},
		{
			name:     "empty body drops title and footer",
			source:   `{{#block title="Context:" footer="---"}}{{row.nosuch}}{{/block}}`,
			row:      map[string]any{},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := NewContext(nil, tt.row, nil)
			got, err := c.Compile("tpl", tt.source, ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
