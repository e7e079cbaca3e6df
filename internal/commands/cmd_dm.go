package commands

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/printer"
	"github.com/hay-kot/parley/internal/styles"
)

type DmCmd struct {
	flags *Flags
}

// NewDmCmd creates a new dm command
func NewDmCmd(flags *Flags) *DmCmd {
	return &DmCmd{flags: flags}
}

// Register adds the dm command to the application
func (cmd *DmCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "dm",
		Usage:     "Open a direct conversation with a user",
		UsageText: "parley dm [user]",
		Description: `Opens the direct conversation with a user, creating it if needed.

Without an argument a picker lists the people you share a conversation with.`,
		Action: cmd.run,
	})
	return app
}

func (cmd *DmCmd) run(ctx context.Context, c *cli.Command) error {
	dir, client, err := cmd.flags.Directory(ctx)
	if err != nil {
		return err
	}

	selfID := cmd.flags.Config.Auth.UserID
	target := c.Args().First()
	if target == "" {
		target, err = pickContact(contacts(dir.Ordered(), selfID))
		if err != nil {
			return err
		}
	}

	conv, err := client.CreateDirect(ctx, target)
	if err != nil {
		return fmt.Errorf("start conversation: %w", err)
	}

	printer.Ctx(ctx).Success(fmt.Sprintf("Direct conversation with %s", conv.DisplayName(selfID)), conv.ID)
	return nil
}

// contacts returns the distinct members of convs other than selfID, sorted
// by display name.
func contacts(convs []chat.Conversation, selfID string) []chat.Member {
	seen := map[string]bool{selfID: true}
	var out []chat.Member
	for _, c := range convs {
		for _, m := range c.Members {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			out = append(out, m)
		}
	}

	slices.SortFunc(out, func(a, b chat.Member) int {
		return strings.Compare(strings.ToLower(a.DisplayName()), strings.ToLower(b.DisplayName()))
	})
	return out
}

func pickContact(members []chat.Member) (string, error) {
	if len(members) == 0 {
		return "", errors.New("no known users, pass a username")
	}

	options := make([]huh.Option[string], 0, len(members))
	for _, m := range members {
		label := m.DisplayName()
		if m.Username != "" && m.Username != label {
			label += " (@" + m.Username + ")"
		}
		options = append(options, huh.NewOption(label, m.ID))
	}

	var value string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Start a conversation with").
			Options(options...).
			Value(&value),
	)).WithTheme(styles.FormTheme())

	if err := form.Run(); err != nil {
		return "", err
	}
	return value, nil
}
