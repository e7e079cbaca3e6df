package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/parley/internal/printer"
)

type FaveCmd struct {
	flags *Flags
}

// NewFaveCmd creates a new fave command
func NewFaveCmd(flags *Flags) *FaveCmd {
	return &FaveCmd{flags: flags}
}

// Register adds the fave command to the application
func (cmd *FaveCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "fave",
		Usage:       "Toggle a conversation's favorite flag",
		UsageText:   "parley fave <conversation>",
		Description: "Favorites are listed first in the sidebar. The list is stored locally per user.",
		Action:      cmd.run,
	})
	return app
}

func (cmd *FaveCmd) run(ctx context.Context, c *cli.Command) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one conversation")
	}

	dir, _, err := cmd.flags.Directory(ctx)
	if err != nil {
		return err
	}

	selfID := cmd.flags.Config.Auth.UserID
	conv, err := findConversation(dir.Ordered(), selfID, c.Args().First())
	if err != nil {
		return err
	}

	fav, err := dir.ToggleFavorite(ctx, conv.ID)
	if err != nil {
		return err
	}

	p := printer.Ctx(ctx)
	if fav {
		p.Successf("%s %s added to favorites", printer.Star, conv.DisplayName(selfID))
	} else {
		p.Successf("%s removed from favorites", conv.DisplayName(selfID))
	}
	return nil
}
