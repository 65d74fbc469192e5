package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/mohammad-safakhou/docchat/internal/pipeline"
	"github.com/spf13/cobra"
)

func ingestCMD(load loader) *cobra.Command {
	var userID, title, documentID, contentType string
	ingest := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Store a document and index its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, report, err := a.pipeline.AddDocument(cmd.Context(), pipeline.NewDocument{
				ID:          documentID,
				UserID:      userID,
				Title:       title,
				Filename:    filepath.Base(args[0]),
				ContentType: contentType,
				Data:        data,
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"document": doc, "ingest": report})
		},
	}
	ingest.Flags().StringVar(&userID, "user", "", "owning user id (UUID)")
	ingest.Flags().StringVar(&title, "title", "", "document title (default is the file name)")
	ingest.Flags().StringVar(&documentID, "document-id", "", "explicit document UUID")
	ingest.Flags().StringVar(&contentType, "content-type", "", "override content type detection")
	_ = ingest.MarkFlagRequired("user")
	return ingest
}
