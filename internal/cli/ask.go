package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"enterprise-kb/internal/app"
)

var (
	askUserID         uint
	askConversationID string
	askTopK           int
	askThreshold      float32
	askNoRerank       bool
	askStream         bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question with the permissions of an existing user",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().UintVarP(&askUserID, "user", "u", 0, "id of the user to ask as (required)")
	askCmd.Flags().StringVarP(&askConversationID, "conversation", "c", "", "continue this conversation")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of chunks to retrieve (default from config)")
	askCmd.Flags().Float32Var(&askThreshold, "threshold", 0, "minimum similarity score (default from config)")
	askCmd.Flags().BoolVar(&askNoRerank, "no-rerank", false, "skip the rerank stage")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "print the answer as it is generated")
	_ = askCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	user, err := a.Services.Auth.GetUserByID(ctx, askUserID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("user %d: %w", askUserID, app.ErrUserNotFound)
	}

	in := app.AskInput{
		Query:          strings.Join(args, " "),
		Principal:      user.Principal(),
		ConversationID: askConversationID,
		TopK:           askTopK,
	}
	if cmd.Flags().Changed("threshold") {
		in.ScoreThreshold = &askThreshold
	}
	if askNoRerank {
		useRerank := false
		in.UseRerank = &useRerank
	}

	out := cmd.OutOrStdout()
	var result *app.AskResult
	if askStream {
		result, err = a.Services.Answerer.AskStream(ctx, in, func(chunk string) error {
			_, err := fmt.Fprint(out, chunk)
			return err
		})
		fmt.Fprintln(out)
	} else {
		result, err = a.Services.Answerer.Ask(ctx, in)
		if err == nil {
			fmt.Fprintln(out, result.Answer)
		}
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\nconversation: %s\n", result.ConversationID)
	for i, src := range result.Sources {
		fmt.Fprintf(out, "[%d] %s (%.3f) %s\n", i+1, src.Title, src.Score, src.DocumentID)
	}
	return nil
}
