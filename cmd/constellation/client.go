package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"constellation"
	"constellation/export"
	"constellation/record"
	"constellation/service"
)

// clientFields maps attribute flags to client attribute keys.
var clientFields = []struct{ flag, key, usage string }{
	{"name", "name", "Client name"},
	{"slug", "slug", "Client slug"},
	{"status", "status", "Status (active, inactive, prospect, archived)"},
	{"email", record.KeyEmail, "Email address"},
	{"phone", record.KeyPhone, "Phone number"},
	{"website", record.KeyWebsite, "Website URL"},
	{"industry", record.KeyIndustry, "Industry"},
	{"notes", record.KeyNotes, "Notes"},
	{"description", record.KeyDescription, "Description"},
}

func newClientCmd() *cobra.Command {
	clientCmd := &cobra.Command{
		Use:   "client",
		Short: "Manage clients",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a client",
		RunE:  withApp(runClientCreate),
	}
	addAttributeFlags(createCmd)
	clientCmd.AddCommand(createCmd)

	updateCmd := &cobra.Command{
		Use:   "update [id]",
		Short: "Update a client",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(runClientUpdate),
	}
	addAttributeFlags(updateCmd)
	clientCmd.AddCommand(updateCmd)

	getCmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Show a client",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(runClientGet),
	}
	getCmd.Flags().Bool("slug", false, "Look the client up by slug")
	clientCmd.AddCommand(getCmd)

	clientCmd.AddCommand(&cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a client and its tag links",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(runClientDelete),
	})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List clients",
		RunE:  withApp(runClientList),
	}
	listCmd.Flags().String("status", "", "Only clients in this status")
	listCmd.Flags().String("order", "name", "Order, e.g. name or created_at:desc")
	listCmd.Flags().Int("limit", 0, "Maximum number of clients")
	listCmd.Flags().Int("offset", 0, "Number of clients to skip")
	listCmd.Flags().Bool("tags", true, "Load each client's tags")
	clientCmd.AddCommand(listCmd)

	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search clients by name, slug, document and tag names",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(runClientSearch),
	}
	searchCmd.Flags().StringSlice("field", nil, "Indexed fields to match (default name, slug)")
	searchCmd.Flags().Int("limit", 0, "Maximum number of clients")
	searchCmd.Flags().Int("offset", 0, "Number of clients to skip")
	clientCmd.AddCommand(searchCmd)

	clientCmd.AddCommand(&cobra.Command{
		Use:   "counts",
		Short: "Count clients per status",
		RunE:  withApp(runClientCounts),
	})

	clientCmd.AddCommand(&cobra.Command{
		Use:   "archive [id]",
		Short: "Archive a client",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			c, err := a.services.Clients.Archive(ctx, args[0])
			if err != nil {
				return err
			}
			return writeClient(cmd.OutOrStdout(), c)
		}),
	})

	clientCmd.AddCommand(&cobra.Command{
		Use:   "activate [id]",
		Short: "Activate a client",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			c, err := a.services.Clients.Activate(ctx, args[0])
			if err != nil {
				return err
			}
			return writeClient(cmd.OutOrStdout(), c)
		}),
	})

	clientCmd.AddCommand(&cobra.Command{
		Use:   "tag [client-id] [tag-id-or-name]...",
		Short: "Add tags to a client, creating named tags when missing",
		Args:  cobra.MinimumNArgs(2),
		RunE:  withApp(runClientTag),
	})

	clientCmd.AddCommand(&cobra.Command{
		Use:   "untag [client-id] [tag-id]...",
		Short: "Remove tags from a client",
		Args:  cobra.MinimumNArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			for _, tagID := range args[1:] {
				if err := a.services.Clients.RemoveTag(ctx, args[0], tagID); err != nil {
					return err
				}
			}
			return nil
		}),
	})

	return clientCmd
}

func addAttributeFlags(cmd *cobra.Command) {
	for _, f := range clientFields {
		cmd.Flags().String(f.flag, "", f.usage)
	}
	cmd.Flags().StringSlice("tag", nil, "Tag ids or names; replaces the tag set")
	cmd.Flags().StringArray("set", nil, "Document attribute as key=value")
	cmd.Flags().String("attrs", "", "Attributes as a JSON object")
}

// attributes collects the attributes given on the command line. --attrs is
// applied first, so the other flags win.
func attributes(cmd *cobra.Command) (record.Attributes, error) {
	flags := cmd.Flags()
	attrs := record.Attributes{}

	if raw, _ := flags.GetString("attrs"); raw != "" {
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&attrs); err != nil {
			return nil, fmt.Errorf("parsing --attrs: %w", err)
		}
	}
	for _, f := range clientFields {
		if flags.Changed(f.flag) {
			v, _ := flags.GetString(f.flag)
			attrs[f.key] = v
		}
	}
	sets, _ := flags.GetStringArray("set")
	for _, kv := range sets {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("--set %q: expected key=value", kv)
		}
		attrs[key] = value
	}
	if flags.Changed("tag") {
		tags, _ := flags.GetStringSlice("tag")
		attrs["tags"] = tags
	}
	return attrs, nil
}

func runClientCreate(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	attrs, err := attributes(cmd)
	if err != nil {
		return err
	}
	c, err := a.services.Clients.Create(ctx, attrs)
	if err != nil {
		return err
	}
	return writeClient(cmd.OutOrStdout(), c)
}

func runClientUpdate(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	attrs, err := attributes(cmd)
	if err != nil {
		return err
	}
	c, err := a.services.Clients.Update(ctx, args[0], attrs)
	if err != nil {
		return err
	}
	if c.Tags == nil {
		if c.Tags, err = a.services.Clients.Tags(ctx, c.ID); err != nil {
			return err
		}
	}
	return writeClient(cmd.OutOrStdout(), c)
}

func runClientGet(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	var (
		c   *record.Client
		err error
	)
	if bySlug, _ := cmd.Flags().GetBool("slug"); bySlug {
		c, err = a.services.Clients.GetBySlug(ctx, args[0])
	} else {
		c, err = a.services.Clients.Get(ctx, args[0])
	}
	if err != nil {
		return err
	}
	if c.Tags, err = a.services.Clients.Tags(ctx, c.ID); err != nil {
		return err
	}
	return writeClient(cmd.OutOrStdout(), c)
}

func runClientDelete(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	removed, err := a.services.Clients.Delete(ctx, args[0])
	if err != nil {
		return err
	}
	if !removed {
		return constellation.NewNotFoundError("client", "id", args[0])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
	return nil
}

func runClientList(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	status, _ := flags.GetString("status")
	order, _ := flags.GetString("order")
	limit, _ := flags.GetInt("limit")
	offset, _ := flags.GetInt("offset")
	withTags, _ := flags.GetBool("tags")

	clients, err := a.services.Clients.List(ctx, service.ListOptions{
		Status:   status,
		OrderBy:  parseOrderFlag(order),
		Limit:    limit,
		Offset:   offset,
		WithTags: withTags,
	})
	if err != nil {
		return err
	}
	return writeClients(cmd.OutOrStdout(), clients)
}

func runClientSearch(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	fields, _ := flags.GetStringSlice("field")
	limit, _ := flags.GetInt("limit")
	offset, _ := flags.GetInt("offset")

	clients, err := a.services.Clients.Search(ctx, args[0], service.SearchOptions{
		Fields: fields,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return err
	}
	return writeClients(cmd.OutOrStdout(), clients)
}

func runClientCounts(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	counts, err := a.services.Clients.CountsByStatus(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, status := range record.Statuses() {
		fmt.Fprintf(out, "%-10s %d\n", record.StatusLabel(status), counts[status])
	}
	fmt.Fprintf(out, "%-10s %d\n", "All", counts["all"])
	return nil
}

func runClientTag(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	ids, err := a.services.Clients.ResolveTags(ctx, args[1:])
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := a.services.Clients.AddTag(ctx, args[0], id); err != nil {
			return err
		}
	}
	tags, err := a.services.Clients.Tags(ctx, args[0])
	if err != nil {
		return err
	}
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	sort.Strings(names)
	fmt.Fprintln(cmd.OutOrStdout(), strings.Join(names, ", "))
	return nil
}

// parseOrderFlag reads "field[:dir],field[:dir]".
func parseOrderFlag(s string) []constellation.Order {
	var orders []constellation.Order
	for _, part := range strings.Split(s, ",") {
		field, dir, _ := strings.Cut(strings.TrimSpace(part), ":")
		if field != "" {
			orders = append(orders, constellation.ParseOrder(field, dir))
		}
	}
	return orders
}

func writeClient(w io.Writer, c *record.Client) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(export.FromClient(c))
}

func writeClients(w io.Writer, clients []*record.Client) error {
	rows := make([]export.Row, len(clients))
	for i, c := range clients {
		rows[i] = export.FromClient(c)
	}
	return export.Write(w, export.FormatJSON, rows)
}
