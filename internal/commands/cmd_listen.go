package commands

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/parley"
	"github.com/hay-kot/parley/internal/printer"
)

type ListenCmd struct {
	flags  *Flags
	format string
}

// NewListenCmd creates a new listen command
func NewListenCmd(flags *Flags) *ListenCmd {
	return &ListenCmd{flags: flags}
}

// Register adds the listen command to the application
func (cmd *ListenCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "listen",
		Usage:     "Stream incoming messages from every conversation",
		UsageText: "parley listen [--format json]",
		Description: `Joins every conversation and prints messages as they arrive until
interrupted. With --format json each message is one JSON object per line.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
		},
		Action: cmd.run,
	})
	return app
}

// incoming is one line of listen output.
type incoming struct {
	ConversationID string    `json:"conversationId"`
	Conversation   string    `json:"conversation"`
	MessageID      string    `json:"messageId"`
	Sender         string    `json:"sender"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (cmd *ListenCmd) run(ctx context.Context, c *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := cmd.flags.Connect(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	var (
		p    = printer.Ctx(ctx)
		out  = printer.New(c.Root().Writer)
		enc  = json.NewEncoder(c.Root().Writer)
		seen = lastSeen(svc.Directory.Ordered())
	)

	p.Infof("Listening on %d conversation(s), Ctrl+C to stop", svc.Directory.Len())

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-svc.Updates():
			if !ok {
				return nil
			}

			switch u.Kind {
			case parley.UpdateConnectivity:
				if u.Connected {
					p.Successf("Connected")
				} else {
					p.Warnf("Connection lost, reconnecting…")
				}
			case parley.UpdateConversations:
				conv, ok := svc.Directory.Get(u.ConversationID)
				if !ok {
					continue
				}
				msg, fresh := newArrival(conv, svc.SelfID(), seen)
				if !fresh {
					continue
				}
				if cmd.format == "json" {
					if err := enc.Encode(msg); err != nil {
						return err
					}
					continue
				}
				out.Message(msg.CreatedAt, msg.Conversation+" "+printer.Dot+" "+msg.Sender, msg.Content)
			}
		}
	}
}

// lastSeen records the newest message ID of every conversation.
func lastSeen(convs []chat.Conversation) map[string]string {
	seen := make(map[string]string, len(convs))
	for _, c := range convs {
		if c.LastMessage != nil {
			seen[c.ID] = c.LastMessage.MessageID
		}
	}
	return seen
}

// newArrival reports the conversation's last message when it differs from
// the one recorded in seen, and records it. Own messages are skipped.
func newArrival(conv chat.Conversation, selfID string, seen map[string]string) (incoming, bool) {
	last := conv.LastMessage
	if last == nil || seen[conv.ID] == last.MessageID {
		return incoming{}, false
	}
	seen[conv.ID] = last.MessageID

	if last.SenderID == selfID {
		return incoming{}, false
	}

	sender := last.SenderID
	if m, ok := conv.Member(last.SenderID); ok {
		sender = m.DisplayName()
	}

	return incoming{
		ConversationID: conv.ID,
		Conversation:   conv.DisplayName(selfID),
		MessageID:      last.MessageID,
		Sender:         sender,
		Content:        last.Content,
		CreatedAt:      last.CreatedAt,
	}, true
}
