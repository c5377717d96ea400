package api

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	idLength = 24
	charset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	toolCallIDPrefix  = "call_"
	executionIDPrefix = "exec_"
)

var (
	toolCallIDPattern  = regexp.MustCompile(`^call_[a-zA-Z0-9]{24}$`)
	executionIDPattern = regexp.MustCompile(`^exec_[a-zA-Z0-9]{24}$`)
)

// NewToolCallID generates an identifier for a tool invocation. Providers that
// do not assign call IDs themselves get one of these.
func NewToolCallID() string {
	return toolCallIDPrefix + randomAlphanumeric(idLength)
}

// NewExecutionID generates an identifier for an audit record.
func NewExecutionID() string {
	return executionIDPrefix + randomAlphanumeric(idLength)
}

// ValidateToolCallID reports whether id has the "call_" + 24 alphanumerics shape.
func ValidateToolCallID(id string) bool {
	return toolCallIDPattern.MatchString(id)
}

// ValidateExecutionID reports whether id has the "exec_" + 24 alphanumerics shape.
func ValidateExecutionID(id string) bool {
	return executionIDPattern.MatchString(id)
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
