package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rhuss/codechat/pkg/api"
)

// Sentinel errors for recorder operations.
var (
	// ErrConflict is returned when a record with the given ID already exists.
	ErrConflict = errors.New("execution record already exists")
)

// DefaultListLimit and MaxListLimit bound List results.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Outcome summarizes a result for filtering and indexing.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Record is one audited tool invocation.
type Record struct {
	ID        string              `json:"id"`
	RequestID string              `json:"requestId,omitempty"`
	CallID    string              `json:"callId"`
	Tenant    string              `json:"tenant,omitempty"`
	Code      string              `json:"code"`
	Result    api.ExecutionResult `json:"result"`
	Outcome   Outcome             `json:"outcome"`
	ErrorKind string              `json:"errorKind,omitempty"`
	Duration  time.Duration       `json:"-"`
	CreatedAt time.Time           `json:"createdAt"`
}

// MarshalJSON adds the duration in milliseconds.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	return json.Marshal(struct {
		plain
		DurationMS int64 `json:"durationMs"`
	}{plain(r), r.Duration.Milliseconds()})
}

// NewRecord builds a Record with a fresh ID, the tenant from ctx, and the
// outcome derived from result.
func NewRecord(ctx context.Context, requestID, callID, code string, result api.ExecutionResult, duration time.Duration) Record {
	r := Record{
		ID:        api.NewExecutionID(),
		RequestID: requestID,
		CallID:    callID,
		Tenant:    GetTenant(ctx),
		Code:      code,
		Result:    result,
		Outcome:   OutcomeSuccess,
		Duration:  duration,
		CreatedAt: time.Now().UTC(),
	}
	if result.Failure != nil {
		r.Outcome = OutcomeFailure
		r.ErrorKind = result.Failure.ErrorKind
	}
	return r
}

// Recorder persists and lists execution records.
type Recorder interface {
	// Record stores rec. Returns ErrConflict if rec.ID is taken.
	Record(ctx context.Context, rec Record) error

	// List returns up to limit records, newest first, restricted to the
	// tenant in ctx when one is set.
	List(ctx context.Context, limit int) ([]Record, error)

	// HealthCheck verifies the backend is usable.
	HealthCheck(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// ClampLimit applies the default and maximum to a requested list size.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}
