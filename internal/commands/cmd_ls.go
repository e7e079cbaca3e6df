package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/printer"
)

type LsCmd struct {
	flags  *Flags
	filter string
	format string
}

// NewLsCmd creates a new ls command
func NewLsCmd(flags *Flags) *LsCmd {
	return &LsCmd{flags: flags}
}

// Register adds the ls command to the application
func (cmd *LsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "ls",
		Usage:       "List conversations",
		UsageText:   "parley ls [--filter <glob>]",
		Description: "Displays a table of conversations in sidebar order, favorites first.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "filter",
				Aliases:     []string{"f"},
				Usage:       "glob matched against conversation names (e.g. 'team-*')",
				Destination: &cmd.filter,
			},
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

func (cmd *LsCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	dir, _, err := cmd.flags.Directory(ctx)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}

	selfID := cmd.flags.Config.Auth.UserID
	convs, err := filterConversations(dir.Ordered(), selfID, cmd.filter)
	if err != nil {
		return err
	}

	if cmd.format == "json" {
		return cmd.outputJSON(c, convs, dir.IsFavorite)
	}

	if len(convs) == 0 {
		p.Infof("No conversations found")
		return nil
	}

	now := time.Now()
	w := tabwriter.NewWriter(c.Root().Writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, " \tNAME\tTYPE\tMEMBERS\tACTIVE\tLAST MESSAGE\tID")

	for _, conv := range convs {
		mark := " "
		if dir.IsFavorite(conv.ID) {
			mark = printer.Star
		}
		if conv.PinnedMessage != nil {
			mark += printer.Pin
		}

		active := "-"
		if last := conv.LastActivity(); !last.IsZero() {
			active = humanize.RelTime(last, now, "ago", "from now")
		}

		last := ""
		if conv.LastMessage != nil {
			last = preview(conv.LastMessage.Content, 40)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			mark, conv.DisplayName(selfID), conv.Type, len(conv.Members), active, last, conv.ID)
	}

	return w.Flush()
}

func (cmd *LsCmd) outputJSON(c *cli.Command, convs []chat.Conversation, isFavorite func(string) bool) error {
	type row struct {
		chat.Conversation
		DisplayName string `json:"displayName"`
		Favorite    bool   `json:"favorite"`
	}

	rows := make([]row, 0, len(convs))
	for _, conv := range convs {
		rows = append(rows, row{
			Conversation: conv,
			DisplayName:  conv.DisplayName(cmd.flags.Config.Auth.UserID),
			Favorite:     isFavorite(conv.ID),
		})
	}

	enc := json.NewEncoder(c.Root().Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// preview flattens text to one line of at most width runes.
func preview(text string, width int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= width {
		return text
	}
	return string(r[:width-1]) + "…"
}
