package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"enterprise-kb/internal/app"
	"enterprise-kb/internal/model"
)

var reindexAll bool

var indexCmd = &cobra.Command{
	Use:   "index <document-id>...",
	Short: "Index pending documents in this process",
	Long: `Index runs extraction, chunking and embedding for the given documents
without going through the queue. Failures are recorded on the document.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex(cmd, args, false)
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex [document-id]...",
	Short: "Drop and rebuild the chunks of documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		if reindexAll == (len(args) > 0) {
			return errors.New("pass document ids or --all")
		}
		return runIndex(cmd, args, true)
	},
}

func init() {
	reindexCmd.Flags().BoolVar(&reindexAll, "all", false, "reindex every document")
	rootCmd.AddCommand(indexCmd, reindexCmd)
}

func runIndex(cmd *cobra.Command, ids []string, reindex bool) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if len(ids) == 0 {
		ids, err = allDocumentIDs(ctx, a.Services.Documents)
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, id := range ids {
		if reindex {
			err = a.Services.Ingestor.Reindex(ctx, id)
		} else {
			err = a.Services.Ingestor.Index(ctx, id)
		}
		if err != nil {
			failed++
			fmt.Fprintf(out, "%s\tfailed\t%v\n", id, err)
			continue
		}
		report(ctx, out, a.Services.Documents, id)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(ids))
	}
	return nil
}

var operator = model.Principal{IsSuperuser: true}

func allDocumentIDs(ctx context.Context, documents *app.DocumentService) ([]string, error) {
	var ids []string
	for page := 1; ; page++ {
		result, err := documents.List(ctx, app.ListDocumentsInput{Viewer: operator, Page: page, PageSize: 100})
		if err != nil {
			return nil, err
		}
		for _, doc := range result.Items {
			ids = append(ids, doc.ID)
		}
		if len(result.Items) < result.PageSize {
			return ids, nil
		}
	}
}

func report(ctx context.Context, out io.Writer, documents *app.DocumentService, id string) {
	doc, err := documents.Get(ctx, operator, id)
	if err != nil {
		fmt.Fprintf(out, "%s\tunknown\t%v\n", id, err)
		return
	}
	fmt.Fprintf(out, "%s\t%s\t%d chunks\t%s\n", doc.ID, doc.Status, doc.ChunkCount, doc.Title)
}
