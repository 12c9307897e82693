package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dman-os/townframe-sub000/crdtjson/crdtstorage"
	"github.com/dman-os/townframe-sub000/crdtjson/reconcile"
)

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <doc> <key> [json]",
		Short: "Reconcile a JSON value into a document key",
		Long: `Reconcile a JSON value into a key of a document, creating the document if needed.
The value is read from stdin when it is omitted or "-".`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			if len(args) == 3 && args[2] != "-" {
				data = []byte(args[2])
			} else {
				var err error
				if data, err = io.ReadAll(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
			}

			v, err := reconcile.Parse(data)
			if err != nil {
				return fmt.Errorf("invalid JSON: %w", err)
			}
			return rootOpts.withStorage(cmd.Context(), func(storage crdtstorage.Storage) error {
				return runPut(cmd, storage, args[0], args[1], v)
			})
		},
	}
	return cmd
}

func runPut(cmd *cobra.Command, storage crdtstorage.Storage, id, key string, v reconcile.Value) error {
	ctx := cmd.Context()
	doc, err := storage.GetDocument(ctx, id)
	if errors.Is(err, crdtstorage.ErrDocumentNotFound) {
		doc, err = storage.CreateDocument(ctx, id)
	}
	if err != nil {
		return err
	}

	result := doc.Reconcile(ctx, key, v)
	if result.Error != nil {
		return result.Error
	}
	// Persist even when SaveAfterEdit is off; the process exits next.
	if err := doc.Save(ctx); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}

	if result.Patch == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s/%s unchanged\n", id, key)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s/%s updated (%d ops)\n", id, key, len(result.Patch.Operations()))
	return nil
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	var pretty bool

	cmd := &cobra.Command{
		Use:   "get <doc> [key]",
		Short: "Print a document or one of its keys as JSON",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withStorage(cmd.Context(), func(storage crdtstorage.Storage) error {
				doc, err := storage.GetDocument(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				var v reconcile.Value
				if len(args) == 2 {
					has, err := doc.Has(args[1])
					if err != nil {
						return err
					}
					if !has {
						return fmt.Errorf("key not found: %s", args[1])
					}
					v, err = doc.Hydrate(args[1])
					if err != nil {
						return err
					}
				} else {
					if v, err = doc.GetContent(); err != nil {
						return err
					}
				}
				return printJSON(cmd.OutOrStdout(), v, pretty)
			})
		},
	}

	cmd.Flags().BoolVarP(&pretty, "pretty", "p", false, "indent the output")
	return cmd
}

func printJSON(w io.Writer, v reconcile.Value, pretty bool) error {
	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = reconcile.Marshal(v)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the stored documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withStorage(cmd.Context(), func(storage crdtstorage.Storage) error {
				ids, err := storage.ListDocuments(cmd.Context())
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <doc> [key]",
		Short: "Delete a document or one of its keys",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return rootOpts.withStorage(ctx, func(storage crdtstorage.Storage) error {
				if len(args) == 1 {
					return storage.DeleteDocument(ctx, args[0])
				}

				doc, err := storage.GetDocument(ctx, args[0])
				if err != nil {
					return err
				}
				if result := doc.DeleteKey(ctx, args[1]); result.Error != nil {
					return result.Error
				}
				return doc.Save(ctx)
			})
		},
	}
}
