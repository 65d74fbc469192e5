package main

import (
	"encoding/json"
	"strings"

	"github.com/mohammad-safakhou/docchat/internal/pipeline"
	"github.com/spf13/cobra"
)

func askCMD(load loader) *cobra.Command {
	var userID, documentID string
	var level int
	ask := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about a document, or a general question without --document",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			question := strings.Join(args, " ")
			var resp pipeline.Response
			if documentID == "" {
				resp, err = a.pipeline.AskGeneral(cmd.Context(), pipeline.GeneralQuery{Question: question, UserID: userID, Level: level})
			} else {
				resp, err = a.pipeline.Ask(cmd.Context(), pipeline.Query{Question: question, DocumentID: documentID, UserID: userID, Level: level})
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
	ask.Flags().StringVar(&userID, "user", "", "asking user id (UUID)")
	ask.Flags().StringVar(&documentID, "document", "", "document UUID to ask about")
	ask.Flags().IntVar(&level, "level", 0, "expertise level 1-5 (0 adds no prefix)")
	_ = ask.MarkFlagRequired("user")
	return ask
}
