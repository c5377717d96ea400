package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/rhuss/codechat/pkg/api"
	"github.com/rhuss/codechat/pkg/provider"
)

// PythonDescription is the tool description shown to the model.
const PythonDescription = "Execute Python code in a secure sandbox environment."

// CodeRunner runs one code string to a normalized result. The sandbox
// executor satisfies it.
type CodeRunner interface {
	Execute(ctx context.Context, code string) api.ExecutionResult
}

// PythonArgs are the arguments of execute_python.
type PythonArgs struct {
	Code string `json:"code" jsonschema:"required,description=The Python code to execute"`
}

// PythonTool implements execute_python on top of a CodeRunner.
type PythonTool struct {
	runner CodeRunner
	def    provider.ProviderTool
}

var _ ToolExecutor = (*PythonTool)(nil)

// NewPythonTool creates the execute_python tool.
func NewPythonTool(runner CodeRunner) *PythonTool {
	return &PythonTool{
		runner: runner,
		def: provider.ProviderTool{
			Type: "function",
			Function: provider.ProviderFunctionDef{
				Name:        api.ToolNameExecutePython,
				Description: PythonDescription,
				Parameters:  GenerateSchema[PythonArgs](),
			},
		},
	}
}

// GenerateSchema reflects T into an inline JSON schema object.
func GenerateSchema[T any]() json.RawMessage {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	schema.Version = ""
	data, err := json.Marshal(schema)
	if err != nil {
		panic("tools: cannot marshal schema: " + err.Error())
	}
	return data
}

// Definition returns the execute_python declaration.
func (t *PythonTool) Definition() provider.ProviderTool {
	return t.def
}

// CanExecute reports whether name is execute_python.
func (t *PythonTool) CanExecute(name string) bool {
	return name == api.ToolNameExecutePython
}

// Execute decodes the arguments and runs the code. Arguments that are not
// a JSON object with a non-empty string "code" yield InvalidArguments.
func (t *PythonTool) Execute(ctx context.Context, call ToolCall) ToolResult {
	code, err := ParsePythonArgs(call.Arguments)
	if err != nil {
		return ToolResult{
			CallID: call.ID,
			Result: api.NewFailure(ErrorKindInvalidArguments, err.Error(), ""),
		}
	}
	return ToolResult{
		CallID: call.ID,
		Code:   code,
		Result: t.runner.Execute(ctx, code),
	}
}

// ParsePythonArgs extracts the code from an execute_python argument string.
func ParsePythonArgs(arguments string) (string, error) {
	var args PythonArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", &argumentError{msg: "arguments must be a JSON object with a string field \"code\": " + err.Error()}
	}
	if strings.TrimSpace(args.Code) == "" {
		return "", &argumentError{msg: "argument \"code\" is required"}
	}
	return args.Code, nil
}

type argumentError struct{ msg string }

func (e *argumentError) Error() string { return e.msg }
