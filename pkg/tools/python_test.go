package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rhuss/codechat/pkg/api"
)

// runnerFunc adapts a function to CodeRunner.
type runnerFunc func(ctx context.Context, code string) api.ExecutionResult

func (f runnerFunc) Execute(ctx context.Context, code string) api.ExecutionResult {
	return f(ctx, code)
}

func TestPythonTool_Definition(t *testing.T) {
	tool := NewPythonTool(nil)
	def := tool.Definition()

	if def.Type != "function" {
		t.Errorf("type = %q, want function", def.Type)
	}
	if def.Function.Name != api.ToolNameExecutePython {
		t.Errorf("name = %q", def.Function.Name)
	}
	if def.Function.Description != PythonDescription {
		t.Errorf("description = %q", def.Function.Description)
	}

	var schema struct {
		Type       string `json:"type"`
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required             []string `json:"required"`
		AdditionalProperties *bool    `json:"additionalProperties"`
	}
	if err := json.Unmarshal(def.Function.Parameters, &schema); err != nil {
		t.Fatalf("parameters are not JSON: %v", err)
	}
	if schema.Type != "object" {
		t.Errorf("schema type = %q, want object", schema.Type)
	}
	if p, ok := schema.Properties["code"]; !ok || p.Type != "string" {
		t.Errorf("code property = %+v", schema.Properties)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "code" {
		t.Errorf("required = %v, want [code]", schema.Required)
	}
	if schema.AdditionalProperties == nil || *schema.AdditionalProperties {
		t.Error("expected additionalProperties false")
	}
	if strings.Contains(string(def.Function.Parameters), "$schema") {
		t.Error("schema should not carry $schema")
	}
}

func TestPythonTool_Execute(t *testing.T) {
	var gotCode string
	tool := NewPythonTool(runnerFunc(func(_ context.Context, code string) api.ExecutionResult {
		gotCode = code
		return api.NewSuccess("391\n", "", nil)
	}))

	res := tool.Execute(context.Background(), ToolCall{ID: "call_1", Name: api.ToolNameExecutePython, Arguments: `{"code":"print(17*23)"}`})

	if gotCode != "print(17*23)" {
		t.Errorf("runner got %q", gotCode)
	}
	if res.IsError() {
		t.Fatalf("unexpected failure: %+v", res.Result.Failure)
	}
	if res.Code != "print(17*23)" {
		t.Errorf("Code = %q", res.Code)
	}
	if res.Result.Success.Stdout != "391\n" {
		t.Errorf("stdout = %q", res.Result.Success.Stdout)
	}
}

func TestPythonTool_InvalidArguments(t *testing.T) {
	called := false
	tool := NewPythonTool(runnerFunc(func(context.Context, string) api.ExecutionResult {
		called = true
		return api.NewSuccess("", "", nil)
	}))

	tests := []struct {
		name string
		args string
	}{
		{"not json", `print(1)`},
		{"missing code", `{}`},
		{"blank code", `{"code":"   "}`},
		{"wrong type", `{"code":42}`},
		{"empty", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tool.Execute(context.Background(), ToolCall{ID: "c", Name: api.ToolNameExecutePython, Arguments: tt.args})
			if !res.IsError() {
				t.Fatal("expected failure")
			}
			if res.Result.Failure.ErrorKind != ErrorKindInvalidArguments {
				t.Errorf("kind = %q, want %q", res.Result.Failure.ErrorKind, ErrorKindInvalidArguments)
			}
		})
	}
	if called {
		t.Error("runner must not be called for invalid arguments")
	}
}
