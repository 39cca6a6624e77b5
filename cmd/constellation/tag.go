package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"constellation"
	"constellation/record"
)

type tagView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Color       string    `json:"color"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Clients     *int64    `json:"clients,omitempty"`
}

func newTagView(t *record.Tag, withCount bool) tagView {
	v := tagView{
		ID:          t.ID,
		Name:        t.Name,
		Slug:        t.Slug,
		Color:       t.Color,
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
	}
	if withCount {
		count := t.ClientCount
		v.Clients = &count
	}
	return v
}

func newTagCmd() *cobra.Command {
	tagCmd := &cobra.Command{
		Use:   "tag",
		Short: "Manage tags",
	}

	createCmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a tag",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(runTagCreate),
	}
	addTagFlags(createCmd)
	tagCmd.AddCommand(createCmd)

	updateCmd := &cobra.Command{
		Use:   "update [id]",
		Short: "Update a tag",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(runTagUpdate),
	}
	updateCmd.Flags().String("name", "", "Tag name")
	addTagFlags(updateCmd)
	tagCmd.AddCommand(updateCmd)

	tagCmd.AddCommand(&cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a tag and unlink it from every client",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			removed, err := a.services.Tags.Delete(ctx, args[0])
			if err != nil {
				return err
			}
			if !removed {
				return constellation.NewNotFoundError("tag", "id", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		}),
	})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tags with their client counts",
		RunE:  withApp(runTagList),
	}
	listCmd.Flags().String("order", "name", "Order, e.g. name or created_at:desc")
	tagCmd.AddCommand(listCmd)

	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search tags by name, slug and description",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			tags, err := a.services.Tags.Search(ctx, args[0], limit, 0)
			if err != nil {
				return err
			}
			return writeTags(cmd.OutOrStdout(), tags, false)
		}),
	}
	searchCmd.Flags().Int("limit", 0, "Maximum number of tags")
	tagCmd.AddCommand(searchCmd)

	tagCmd.AddCommand(&cobra.Command{
		Use:   "merge [from-id] [into-id]",
		Short: "Move every client of one tag onto another and delete the first",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			merged, err := a.services.Tags.Merge(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if merged {
				fmt.Fprintf(cmd.OutOrStdout(), "merged %s into %s\n", args[0], args[1])
			}
			return nil
		}),
	})

	return tagCmd
}

func addTagFlags(cmd *cobra.Command) {
	cmd.Flags().String("slug", "", "Tag slug")
	cmd.Flags().String("color", "", "Hex color, e.g. #3b82f6")
	cmd.Flags().String("description", "", "Description")
}

func tagAttributes(cmd *cobra.Command) record.Attributes {
	attrs := record.Attributes{}
	for _, key := range []string{"name", "slug", "color", "description"} {
		if f := cmd.Flags().Lookup(key); f != nil && f.Changed {
			attrs[key] = f.Value.String()
		}
	}
	return attrs
}

func runTagCreate(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	attrs := tagAttributes(cmd)
	attrs["name"] = args[0]
	tag, err := a.services.Tags.Create(ctx, attrs)
	if err != nil {
		return err
	}
	return writeTag(cmd.OutOrStdout(), tag)
}

func runTagUpdate(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	tag, err := a.services.Tags.Update(ctx, args[0], tagAttributes(cmd))
	if err != nil {
		return err
	}
	return writeTag(cmd.OutOrStdout(), tag)
}

func runTagList(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	order, _ := cmd.Flags().GetString("order")
	tags, err := a.services.Tags.ListWithCounts(ctx, parseOrderFlag(order))
	if err != nil {
		return err
	}
	return writeTags(cmd.OutOrStdout(), tags, true)
}

func writeTag(w io.Writer, t *record.Tag) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(newTagView(t, false))
}

func writeTags(w io.Writer, tags []*record.Tag, withCounts bool) error {
	views := make([]tagView, len(tags))
	for i, t := range tags {
		views[i] = newTagView(t, withCounts)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(views)
}
