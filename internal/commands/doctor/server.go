package doctor

import (
	"context"
	"fmt"
	"time"

	"github.com/hay-kot/parley/internal/core/chat"
)

// Lister is the REST call used to probe the API.
type Lister interface {
	ListConversations(ctx context.Context) ([]chat.Conversation, error)
}

// ServerCheck verifies the chat server is reachable and accepts the
// configured credentials over both the REST API and the realtime
// connection.
type ServerCheck struct {
	api     Lister
	dial    func(ctx context.Context) error
	timeout time.Duration
}

// NewServerCheck creates a server check. dial opens and closes one realtime
// connection.
func NewServerCheck(api Lister, dial func(ctx context.Context) error, timeout time.Duration) *ServerCheck {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ServerCheck{api: api, dial: dial, timeout: timeout}
}

func (c *ServerCheck) Name() string {
	return "Server"
}

func (c *ServerCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	apiCtx, cancel := context.WithTimeout(ctx, c.timeout)
	convs, err := c.api.ListConversations(apiCtx)
	cancel()

	if err != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "REST API",
			Status: StatusFail,
			Detail: err.Error(),
		})
	} else {
		result.Items = append(result.Items, CheckItem{
			Label:  "REST API",
			Status: StatusPass,
			Detail: fmt.Sprintf("%d conversation(s)", len(convs)),
		})
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err = c.dial(dialCtx)
	cancel()

	if err != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "Realtime connection",
			Status: StatusFail,
			Detail: err.Error(),
		})
	} else {
		result.Items = append(result.Items, CheckItem{
			Label:  "Realtime connection",
			Status: StatusPass,
		})
	}

	return result
}
