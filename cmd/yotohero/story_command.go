package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danwrong/yotohero/internal/model"
	"github.com/danwrong/yotohero/internal/textprep"
	"github.com/danwrong/yotohero/internal/workflow"
)

func newStoryCommand(ctx *commandContext) *cobra.Command {
	storyCmd := &cobra.Command{
		Use:   "story",
		Short: "Submit stories",
	}
	storyCmd.AddCommand(newStoryUploadCommand(ctx))
	return storyCmd
}

func newStoryUploadCommand(ctx *commandContext) *cobra.Command {
	var meta model.StoryMetadata
	var output string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Narrate a markdown or text file and add it to the story card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(output)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read story: %w", err)
			}
			text := string(data)
			if strings.TrimSpace(meta.Title) == "" {
				meta.Title = textprep.Title(text)
			}

			svc, err := ctx.services(cmd.Context())
			if err != nil {
				return err
			}
			pair, err := ctx.validTokens(cmd.Context(), svc.Auth)
			if err != nil {
				return err
			}

			result := svc.Orchestrator.Run(cmd.Context(), text, meta, pair)
			if result.TokensRefreshed {
				ctx.keepRefreshed(cmd.ErrOrStderr(), result.Tokens)
			}

			if format != outputText {
				if err := writeStructured(cmd, format, result); err != nil {
					return err
				}
			} else {
				printResult(cmd, result)
			}
			if !result.Success {
				return errors.New(result.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&meta.Title, "title", "", "Chapter title (defaults to the first heading)")
	cmd.Flags().StringVar(&meta.IconID, "icon", "", "Chapter icon id")
	cmd.Flags().StringVar(&meta.Voice, "voice", "", "Voice id (defaults to tts.default_voice)")
	cmd.Flags().StringVar(&meta.Author, "author", "", "Story author")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json or yaml")
	return cmd
}

func printResult(cmd *cobra.Command, result workflow.Result) {
	out := cmd.OutOrStdout()
	if !result.Success {
		return
	}
	fmt.Fprintf(out, "Added to card %s\n", result.CardID)
	if result.TranscodeInfo != nil {
		fmt.Fprintf(out, "Duration: %s  Size: %s  Cached: %s\n",
			formatSeconds(result.TranscodeInfo.Duration),
			humanBytes(result.TranscodeInfo.FileSizeBytes),
			yesNo(result.Cached),
		)
	}
}
