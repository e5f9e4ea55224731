package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yoockh/vaihub/internal/models"
)

func (a *app) askCmd() *cobra.Command {
	var (
		conversationID string
		stateless      bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the AI assistant",
		Long:  `Ask the AI assistant. By default the exchange is stored as a conversation; pass --conversation to continue one, or --stateless to store nothing.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return errors.New("question is empty")
			}
			out := cmd.OutOrStdout()

			if stateless {
				turn, err := a.api.Ask(cmd.Context(), []models.ChatTurn{{Role: models.TurnUser, Content: question}})
				if err != nil {
					return err
				}
				fmt.Fprintln(out, turn.Content)
				return nil
			}

			res, err := a.api.SendAssistantMessage(cmd.Context(), conversationID, question)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, res.AssistantMessage.Content)
			fmt.Fprintf(cmd.ErrOrStderr(), "conversation: %s\n", res.Conversation.ConversationID)
			return nil
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "Continue this conversation")
	cmd.Flags().BoolVar(&stateless, "stateless", false, "Do not store the exchange")
	return cmd
}
