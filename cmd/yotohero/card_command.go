package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danwrong/yotohero/internal/card"
	"github.com/danwrong/yotohero/internal/model"
)

func newCardCommand(ctx *commandContext) *cobra.Command {
	cardCmd := &cobra.Command{
		Use:   "card",
		Short: "Inspect the story card",
	}
	cardCmd.AddCommand(newCardShowCommand(ctx))
	return cardCmd
}

type cardView struct {
	CardID   string               `json:"cardId"`
	Title    string               `json:"title"`
	Media    model.AggregateMedia `json:"media"`
	Chapters []chapterView        `json:"chapters"`
}

type chapterView struct {
	Key      string  `json:"key"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
	FileSize int64   `json:"fileSize"`
	Icon     string  `json:"icon,omitempty"`
}

func newCardView(c *model.Card) cardView {
	view := cardView{CardID: c.CardID, Title: c.Title, Media: c.Metadata.Media}
	for _, ch := range c.Content.Chapters {
		cv := chapterView{Key: ch.Key, Title: ch.Title, Icon: ch.Display.Icon16x16}
		for _, tr := range ch.Tracks {
			cv.Duration += tr.Duration
			cv.FileSize += tr.FileSize
		}
		view.Chapters = append(view.Chapters, cv)
	}
	return view
}

func newCardShowCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the chapters on the story card",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(output)
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			manager, err := ctx.authManager()
			if err != nil {
				return err
			}
			client, err := ctx.platformClient()
			if err != nil {
				return err
			}
			pair, err := ctx.validTokens(cmd.Context(), manager)
			if err != nil {
				return err
			}

			sync := card.NewSynchronizer(client, card.WithTitle(cfg.Platform.CardTitle), card.WithLogger(ctx.loggerFor()))
			found := sync.FindExistingCard(cmd.Context(), pair.AccessToken)
			if found == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "No %q card yet.\n", sync.Title())
				return nil
			}
			view := newCardView(found)
			if format != outputText {
				return writeStructured(cmd, format, view)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", view.Title, view.CardID)
			rows := make([][]string, 0, len(view.Chapters))
			for _, ch := range view.Chapters {
				rows = append(rows, []string{ch.Key, ch.Title, formatSeconds(ch.Duration), humanBytes(ch.FileSize)})
			}
			fmt.Fprintln(out, renderTable([]string{"#", "Title", "Duration", "Size"}, rows, []columnAlignment{alignRight, alignLeft, alignRight, alignRight}))
			fmt.Fprintf(out, "Total: %s, %s\n", formatSeconds(view.Media.Duration), humanBytes(view.Media.FileSize))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json or yaml")
	return cmd
}
