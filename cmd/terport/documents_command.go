package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"terport/internal/config"
	"terport/internal/services"
	"terport/internal/store"
)

func newDocumentsCommand(ctx *commandContext) *cobra.Command {
	var category string
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List generated documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				docs, err := st.ListDocuments(cmd.Context(), category, limit)
				if err != nil {
					return err
				}
				total, err := st.DocumentCount(cmd.Context(), category)
				if err != nil {
					return err
				}
				if jsonOut {
					if docs == nil {
						docs = []store.Document{}
					}
					return writeJSON(cmd, docs)
				}

				out := cmd.OutOrStdout()
				if len(docs) == 0 {
					fmt.Fprintln(out, "No documents")
					return nil
				}
				rows := make([][]string, 0, len(docs))
				for _, doc := range docs {
					rows = append(rows, []string{
						strconv.FormatInt(doc.ID, 10),
						doc.Title,
						orDash(doc.Category()),
						orDash(doc.Meta[store.MetaModel]),
						orDash(doc.Meta[store.MetaPluginVersion]),
						formatTime(doc.CreatedAt),
					})
				}
				printTable(out,
					[]string{"ID", "Title", "Category", "Model", "Version", "Created"},
					rows,
					[]columnAlignment{alignRight},
				)
				fmt.Fprintf(out, "Showing %d of %d documents\n", len(docs), total)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Only documents in this category")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of documents to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.AddCommand(newDocumentShowCommand(ctx))
	return cmd
}

func newDocumentShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one document's markdown body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid document id %q", args[0])
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				doc, err := st.GetDocument(cmd.Context(), id)
				if err != nil {
					return err
				}
				if doc == nil {
					return services.Wrap(services.ErrNotFound, "documents", "show", fmt.Sprintf("document %d", id), nil)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "# %s\n\n", doc.Title)
				fmt.Fprintln(out, doc.Body)
				return nil
			})
		},
	}
}
