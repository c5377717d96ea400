package chatview

import (
	"errors"
	"strings"

	"github.com/rhuss/codechat/pkg/api"
)

// ErrTurnInFlight is returned by Submit while a turn is still streaming.
var ErrTurnInFlight = errors.New("a turn is already in flight")

// Part is one block of a message: either prose or a tool invocation.
type Part struct {
	Text       string
	Invocation *api.ToolInvocation
}

// Message is one chat bubble.
type Message struct {
	Role  api.Role
	Parts []Part
}

// Conversation holds the rendered state of a chat.
type Conversation struct {
	Messages []Message

	// InFlight is true from Submit until the turn's terminal event.
	InFlight bool

	// Usage is the token usage reported by the last completed turn.
	Usage *api.Usage

	// Err is the failure of the last turn, if any.
	Err error
}

// Submit appends a user message and marks a turn as in flight.
func (c *Conversation) Submit(text string) error {
	if c.InFlight {
		return ErrTurnInFlight
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("message is empty")
	}
	c.Messages = append(c.Messages, Message{
		Role:  api.RoleUser,
		Parts: []Part{{Text: text}},
	})
	c.InFlight = true
	c.Err = nil
	return nil
}

// Apply folds one stream event into the conversation.
func (c *Conversation) Apply(ev api.StreamEvent) {
	switch ev.Type {
	case api.EventTextDelta:
		msg := c.assistant()
		if n := len(msg.Parts); n > 0 && msg.Parts[n-1].Invocation == nil {
			msg.Parts[n-1].Text += ev.Delta
			return
		}
		msg.Parts = append(msg.Parts, Part{Text: ev.Delta})

	case api.EventToolCall:
		if ev.Invocation == nil {
			return
		}
		inv := *ev.Invocation
		msg := c.assistant()
		msg.Parts = append(msg.Parts, Part{Invocation: &inv})

	case api.EventToolResult:
		if ev.Invocation == nil {
			return
		}
		inv := *ev.Invocation
		msg := c.assistant()
		for i := range msg.Parts {
			if p := msg.Parts[i].Invocation; p != nil && p.ID == inv.ID {
				msg.Parts[i].Invocation = &inv
				return
			}
		}
		msg.Parts = append(msg.Parts, Part{Invocation: &inv})

	case api.EventDone:
		c.InFlight = false
		c.Usage = ev.Usage

	case api.EventError:
		c.InFlight = false
		if ev.Error != nil {
			c.Err = ev.Error
		} else {
			c.Err = errors.New("the turn failed")
		}
	}
}

// Fail ends an in-flight turn that broke off without a terminal event.
func (c *Conversation) Fail(err error) {
	if !c.InFlight {
		return
	}
	c.InFlight = false
	c.Err = err
}

// assistant returns the message the current turn streams into, starting one
// when the last message belongs to the user.
func (c *Conversation) assistant() *Message {
	if n := len(c.Messages); n > 0 && c.Messages[n-1].Role == api.RoleAssistant {
		return &c.Messages[n-1]
	}
	c.Messages = append(c.Messages, Message{Role: api.RoleAssistant})
	return &c.Messages[len(c.Messages)-1]
}

// History converts the conversation to the request history.
//
// An assistant message is split at every point where prose follows a tool
// invocation, so each history entry is one model step: its text, then the
// invocations it made. Replaying the entries in order gives the model its
// text, calls and results in the sequence they happened.
func (c *Conversation) History() []api.Message {
	history := make([]api.Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		if m.Role != api.RoleAssistant {
			history = append(history, api.Message{Role: m.Role, Content: joinText(m.Parts)})
			continue
		}
		history = append(history, assistantSteps(m.Parts)...)
	}
	return history
}

func assistantSteps(parts []Part) []api.Message {
	var steps []api.Message
	var text []Part
	var invocations []api.ToolInvocation

	flush := func() {
		if len(text) == 0 && len(invocations) == 0 {
			return
		}
		steps = append(steps, api.Message{
			Role:            api.RoleAssistant,
			Content:         joinText(text),
			ToolInvocations: invocations,
		})
		text, invocations = nil, nil
	}

	for _, p := range parts {
		if p.Invocation != nil {
			invocations = append(invocations, *p.Invocation)
			continue
		}
		if len(invocations) > 0 {
			flush()
		}
		text = append(text, p)
	}
	flush()
	return steps
}

// joinText joins the text parts of a message, one per line.
func joinText(parts []Part) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Invocation == nil && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}
