// Package audit defines the execution audit record and the Recorder
// interface implemented by the memory and postgres backends.
//
// Every completed tool invocation is recorded with its code, its
// normalized result, and how long the sandbox took. Records are scoped by
// tenant when authentication attaches one to the request context.
package audit
