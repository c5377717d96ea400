package tools

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/rhuss/codechat/pkg/api"
)

type modelResult struct {
	Success   bool                  `json:"success"`
	Stdout    *string               `json:"stdout,omitempty"`
	Stderr    *string               `json:"stderr,omitempty"`
	Artifacts []api.Artifact        `json:"artifacts,omitempty"`
	Error     *api.ExecutionFailure `json:"error,omitempty"`
}

// ModelContent renders a result as the content of a model-facing tool
// message: the wire JSON with image payloads replaced by a short
// "<mime, N bytes>" marker.
func ModelContent(result api.ExecutionResult) string {
	var out modelResult
	switch {
	case result.Success != nil:
		out.Success = true
		out.Stdout = &result.Success.Stdout
		out.Stderr = &result.Success.Stderr
		out.Artifacts = make([]api.Artifact, len(result.Success.Artifacts))
		for i, a := range result.Success.Artifacts {
			if a.Kind == api.ArtifactImage {
				a.Data = fmt.Sprintf("<%s, %d bytes>", a.MIMEType, DecodedSize(a.Data))
			}
			out.Artifacts[i] = a
		}
	case result.Failure != nil:
		out.Error = result.Failure
	default:
		out.Error = &api.ExecutionFailure{ErrorKind: ErrorKindInternal, Message: "empty execution result"}
	}

	// The model reads this as text, so keep <, > and & unescaped.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return fmt.Sprintf(`{"success":false,"error":{"name":%q,"message":%q}}`, ErrorKindInternal, err.Error())
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}

// DecodedSize returns the byte length of a base64 payload, or the encoded
// length when it does not decode.
func DecodedSize(b64 string) int {
	if n, err := base64.StdEncoding.DecodeString(b64); err == nil {
		return len(n)
	}
	return len(b64)
}
