package remote

import (
	"context"
	"net/url"

	"github.com/rhuss/codechat/pkg/sandbox"
)

// session is a server-side sandbox session used as one Environment.
type session struct {
	client *Client
	id     string
}

func (s *session) ID() string { return s.id }

func (s *session) Run(ctx context.Context, code string) (*sandbox.Execution, error) {
	return s.client.execute(ctx, "/sandboxes/"+url.PathEscape(s.id)+"/execute", code)
}

func (s *session) Destroy(ctx context.Context) error {
	return s.client.deleteSession(ctx, s.id)
}

// Dedicated wraps a sandbox server that belongs to a single environment, such
// as a container or a claimed pod. Runs go to the stateless execute endpoint
// and Destroy calls release.
func (c *Client) Dedicated(id string, release func(ctx context.Context) error) sandbox.Environment {
	return &dedicated{client: c, id: id, release: release}
}

type dedicated struct {
	client  *Client
	id      string
	release func(ctx context.Context) error
}

func (d *dedicated) ID() string { return d.id }

func (d *dedicated) Run(ctx context.Context, code string) (*sandbox.Execution, error) {
	return d.client.Execute(ctx, code)
}

func (d *dedicated) Destroy(ctx context.Context) error {
	return d.release(ctx)
}
