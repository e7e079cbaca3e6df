package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/printer"
	"github.com/hay-kot/parley/internal/timeline"
)

type HistoryCmd struct {
	flags *Flags
	pages int
}

// NewHistoryCmd creates a new history command
func NewHistoryCmd(flags *Flags) *HistoryCmd {
	return &HistoryCmd{flags: flags}
}

// Register adds the history command to the application
func (cmd *HistoryCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "history",
		Usage:     "Print the message history of a conversation",
		UsageText: "parley history [options] <conversation>",
		Description: `Prints messages oldest first, grouped by day.

The conversation is given by ID or by name. By default only the newest page
is printed; use --pages to page further back.`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "pages",
				Aliases:     []string{"n"},
				Usage:       "number of pages to load (0 for all)",
				Value:       1,
				Destination: &cmd.pages,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *HistoryCmd) run(ctx context.Context, c *cli.Command) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one conversation")
	}

	dir, client, err := cmd.flags.Directory(ctx)
	if err != nil {
		return err
	}

	selfID := cmd.flags.Config.Auth.UserID
	conv, err := findConversation(dir.Ordered(), selfID, c.Args().First())
	if err != nil {
		return err
	}

	active := &chat.Active{}
	active.Set(conv.ID)

	tl := timeline.New(client, active, cmd.flags.Config.Messages.PageSize, log.With().Str("component", "timeline").Logger())
	if _, err := tl.Load(ctx, conv.ID); err != nil {
		return err
	}

	for page := 1; tl.HasMore() && (cmd.pages <= 0 || page < cmd.pages); page++ {
		n, err := tl.LoadOlder(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
	}

	msgs := tl.Messages()
	p := printer.New(c.Root().Writer)
	if len(msgs) == 0 {
		p.Infof("No messages in %s", conv.DisplayName(selfID))
		return nil
	}

	printTimeline(p, msgs, dir.Pinned(conv.ID))

	if tl.HasMore() {
		printer.Ctx(ctx).Infof("%s messages shown, older history available with --pages", humanize.Comma(int64(len(msgs))))
	}
	return nil
}

// printTimeline writes msgs grouped under day headers.
func printTimeline(p *printer.Printer, msgs []chat.Message, pinned *chat.Message) {
	for i, day := range timeline.Group(msgs, time.Now(), time.Local) {
		if i > 0 {
			p.Printf("")
		}
		p.Section(day.Label)

		for _, item := range day.Items {
			printMessage(p, item.Message, pinned)
		}
	}
}

func printMessage(p *printer.Printer, msg chat.Message, pinned *chat.Message) {
	text := msg.Content
	if msg.Media != nil {
		label := "[" + chat.MediaLabel(msg.Media.MimeType)
		if msg.Media.Name != "" {
			label += " " + msg.Media.Name
		}
		label += "]"
		if text != "" {
			label += " "
		}
		text = label + text
	}
	if pinned != nil && pinned.ID == msg.ID {
		text = printer.Pin + " " + text
	}

	p.Message(msg.CreatedAt, msg.Sender.DisplayName(), text)
	if msg.ReplyTo != nil {
		p.Quote(msg.ReplyTo.Sender.DisplayName(), preview(msg.ReplyTo.Label(), 60))
	}
}
