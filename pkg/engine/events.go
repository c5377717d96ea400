package engine

import "github.com/rhuss/codechat/pkg/api"

// streamState holds the running sequence number of one chat stream.
type streamState struct {
	seq int
}

// nextSeq returns the current sequence number and increments it.
func (s *streamState) nextSeq() int {
	n := s.seq
	s.seq++
	return n
}

func (s *streamState) textDelta(delta string) api.StreamEvent {
	return api.StreamEvent{Type: api.EventTextDelta, SequenceNumber: s.nextSeq(), Delta: delta}
}

// toolCall snapshots inv, so later completion does not alter the event.
func (s *streamState) toolCall(inv api.ToolInvocation) api.StreamEvent {
	return api.StreamEvent{Type: api.EventToolCall, SequenceNumber: s.nextSeq(), Invocation: &inv}
}

func (s *streamState) toolResult(inv api.ToolInvocation) api.StreamEvent {
	return api.StreamEvent{Type: api.EventToolResult, SequenceNumber: s.nextSeq(), Invocation: &inv}
}

func (s *streamState) done(finishReason string, steps int, usage api.Usage) api.StreamEvent {
	return api.StreamEvent{
		Type:           api.EventDone,
		SequenceNumber: s.nextSeq(),
		FinishReason:   finishReason,
		Steps:          steps,
		Usage:          &usage,
	}
}
