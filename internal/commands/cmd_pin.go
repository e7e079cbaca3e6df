package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/parley/internal/pin"
	"github.com/hay-kot/parley/internal/printer"
)

type PinCmd struct {
	flags *Flags
}

// NewPinCmd creates the pin and unpin commands
func NewPinCmd(flags *Flags) *PinCmd {
	return &PinCmd{flags: flags}
}

// Register adds the pin and unpin commands to the application
func (cmd *PinCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands,
		&cli.Command{
			Name:        "pin",
			Usage:       "Pin a message in a conversation",
			UsageText:   "parley pin <conversation> <message-id>",
			Description: "A conversation has one pinned message. Pinning replaces the current one.",
			Action:      cmd.runPin,
		},
		&cli.Command{
			Name:      "unpin",
			Usage:     "Clear the pinned message of a conversation",
			UsageText: "parley unpin <conversation>",
			Action:    cmd.runUnpin,
		},
	)
	return app
}

func (cmd *PinCmd) runPin(ctx context.Context, c *cli.Command) error {
	if c.NArg() != 2 {
		return fmt.Errorf("expected a conversation and a message ID")
	}

	dir, client, err := cmd.flags.Directory(ctx)
	if err != nil {
		return err
	}

	selfID := cmd.flags.Config.Auth.UserID
	conv, err := findConversation(dir.Ordered(), selfID, c.Args().Get(0))
	if err != nil {
		return err
	}

	messageID := c.Args().Get(1)
	pinned, err := pin.New(client, dir).SetPinned(ctx, conv.ID, &messageID)
	if err != nil {
		return fmt.Errorf("pin message: %w", err)
	}

	p := printer.Ctx(ctx)
	if summary := pinned.Summary(); summary != "" {
		p.Success(fmt.Sprintf("Pinned in %s", conv.DisplayName(selfID)), preview(summary, 60))
	} else {
		p.Successf("Pinned %s in %s", messageID, conv.DisplayName(selfID))
	}
	return nil
}

func (cmd *PinCmd) runUnpin(ctx context.Context, c *cli.Command) error {
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

	p := printer.Ctx(ctx)
	if dir.Pinned(conv.ID) == nil {
		p.Infof("Nothing pinned in %s", conv.DisplayName(selfID))
		return nil
	}

	if err := pin.New(client, dir).Unpin(ctx, conv.ID); err != nil {
		return fmt.Errorf("unpin message: %w", err)
	}

	p.Successf("Unpinned message in %s", conv.DisplayName(selfID))
	return nil
}
