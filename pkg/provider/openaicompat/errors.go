package openaicompat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rhuss/codechat/pkg/api"
)

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 4096

// MapHTTPError converts a non-2xx backend response into an APIError.
//
// Only two types come out of here. A backend that refused this particular
// request (bad payload, unknown model, throttling) yields a model error;
// anything the operator has to fix (credentials, outages, unexpected
// statuses) yields a server error. The upstream status is kept in Code as
// "upstream_<status>" and the backend's own message is kept in Message.
// Both are for the server log: the chat route never shows them to clients.
func MapHTTPError(resp *http.Response) *api.APIError {
	detail := ExtractErrorMessage(resp.Body)
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}

	apiErr := api.NewServerError(fmt.Sprintf("chat completions backend returned HTTP %d: %s", resp.StatusCode, detail))
	if rejectedByModel(resp.StatusCode) {
		apiErr = api.NewModelError(apiErr.Message)
	}
	apiErr.Code = "upstream_" + strconv.Itoa(resp.StatusCode)
	return apiErr
}

func rejectedByModel(status int) bool {
	switch status {
	case http.StatusBadRequest,
		http.StatusNotFound,
		http.StatusRequestEntityTooLarge,
		http.StatusUnprocessableEntity,
		http.StatusTooManyRequests:
		return true
	}
	return false
}

// MapNetworkError converts a transport failure (refused connection, DNS,
// header timeout) into a server error.
func MapNetworkError(err error) *api.APIError {
	return api.NewServerError("chat completions backend unreachable: " + err.Error())
}

// ExtractErrorMessage reads the message from a backend error body. It
// understands {"error":{"message":...}}, {"error":"..."} and Mistral's flat
// {"message":...}; anything else yields "".
func ExtractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}

	var envelope errorEnvelope
	if json.Unmarshal(data, &envelope) != nil {
		return ""
	}
	if len(envelope.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(envelope.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var flat string
		if json.Unmarshal(envelope.Error, &flat) == nil && flat != "" {
			return flat
		}
	}
	return envelope.Message
}
