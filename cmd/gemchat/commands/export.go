package commands

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pliu/gemchat/internal/export"
	"github.com/pliu/gemchat/internal/store"
	"github.com/spf13/cobra"
)

// NewExportCmd creates the export command
func NewExportCmd() *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export <conversation-id>",
		Short: "Export a conversation to a file",
		Long: `Export one conversation as json, markdown or pdf.

Without --output the file is written to the current directory under a name
derived from the conversation title. Use --output - to write to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid conversation id %q", args[0])
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			cfg, _, err := setup(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			return exportConversation(cmd, s, id, f, output, time.Now())
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json, markdown or pdf")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path, or - for stdout")

	return cmd
}

func exportConversation(cmd *cobra.Command, s store.Store, id int64, f export.Format, output string, now time.Time) error {
	conv, err := s.GetConversation(id)
	if err != nil {
		return fmt.Errorf("conversation %d: %w", id, err)
	}
	messages, err := s.GetConversationMessages(id)
	if err != nil {
		return fmt.Errorf("messages for conversation %d: %w", id, err)
	}
	data, err := export.Render(conv, messages, f, now)
	if err != nil {
		return err
	}

	if output == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if output == "" {
		output = export.Filename(conv.Title, f, now)
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d messages to %s\n", len(messages), output)
	return nil
}
