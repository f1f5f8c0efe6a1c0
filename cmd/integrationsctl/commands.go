package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/theexperiencecompany/gaia-sub002/internal/connection"
	"github.com/theexperiencecompany/gaia-sub002/internal/integration"
	"github.com/theexperiencecompany/gaia-sub002/internal/reconcile"
	"github.com/theexperiencecompany/gaia-sub002/internal/search"
)

func newListCommand(cli *cliContext) *cobra.Command {
	var query, category, order string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List integrations with their connection status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := cli.session(cmd)
			list, degraded, err := s.load()
			if err != nil {
				return err
			}
			if degraded {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: connection status unavailable, showing everything as not connected")
			}
			list = reconcile.Sort(list, reconcile.ParseOrder(order))
			if strings.TrimSpace(category) == "" {
				category = integration.CategoryAll
			}
			visible := s.searchService().Visible(list, search.State{Query: query, Category: category}, s.userID)
			if cli.jsonOutput() {
				return writeJSON(s.out, visible)
			}
			return writeTable(s.out, visible)
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "search query")
	cmd.Flags().StringVarP(&category, "category", "c", "", "category filter (all, created_by_you or a category)")
	cmd.Flags().StringVar(&order, "order", "", "sort order (priority|connected)")
	return cmd
}

func newSearchCommand(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Fuzzy-search the reconciled list and print match scores",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := cli.session(cmd)
			list, _, err := s.load()
			if err != nil {
				return err
			}
			hits := search.NewIndex(list).Search(args[0])
			if cli.jsonOutput() {
				return writeJSON(s.out, hits)
			}
			tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSCORE")
			for _, hit := range hits {
				fmt.Fprintf(tw, "%s\t%s\t%.3f\n", hit.Item.ID, hit.Item.Name, hit.Score)
			}
			return tw.Flush()
		},
	}
}

func newCategoriesCommand(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List categories with integration counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := cli.session(cmd)
			list, _, err := s.load()
			if err != nil {
				return err
			}
			options := search.SelectCategoryOptions(list, s.userID)
			if cli.jsonOutput() {
				return writeJSON(s.out, options)
			}
			tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tLABEL\tCOUNT")
			for _, option := range options {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", option.Value, option.Label, option.Count)
			}
			return tw.Flush()
		},
	}
}

func newShowCommand(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one integration, including bundle members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := cli.session(cmd)
			list, _, err := s.load()
			if err != nil {
				return err
			}
			item, ok := integration.Find(list, args[0])
			if !ok {
				return fmt.Errorf("integration %q not found", args[0])
			}
			if cli.jsonOutput() {
				return writeJSON(s.out, item)
			}
			rows := []integration.Reconciled{item}
			if item.IsBundle() {
				rows = append(rows, integration.BundleChildren(item.Descriptor, list)...)
			}
			return writeTable(s.out, rows)
		},
	}
}

func newConnectCommand(cli *cliContext) *cobra.Command {
	var bearer, returnPath string
	cmd := &cobra.Command{
		Use:   "connect <id>",
		Short: "Connect an integration; OAuth integrations print the login address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := cli.session(cmd)
			result, err := s.orchestrator(cmd.ErrOrStderr()).Connect(s.ctx, connection.ConnectRequest{
				ID:          args[0],
				BearerToken: bearer,
				ReturnPath:  returnPath,
			})
			if err != nil {
				return err
			}
			if cli.jsonOutput() {
				return writeJSON(s.out, result)
			}
			if result.Status == connection.ResultConnected {
				_, err = fmt.Fprintf(s.out, "%s connected\n", result.ID)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&bearer, "bearer-token", "", "bearer token for MCP servers that require one")
	cmd.Flags().StringVar(&returnPath, "return-path", "/", "path to return to after OAuth")
	return cmd
}

func newConnectAllCommand(cli *cliContext) *cobra.Command {
	var returnPath string
	cmd := &cobra.Command{
		Use:   "connect-all <bundle-id>",
		Short: "Connect every member of a bundle, stopping at the first OAuth redirect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := cli.session(cmd)
			result, err := s.orchestrator(cmd.ErrOrStderr()).ConnectBundle(s.ctx, args[0], returnPath)
			if err != nil {
				return err
			}
			if cli.jsonOutput() {
				return writeJSON(s.out, result)
			}
			for _, id := range result.Connected {
				fmt.Fprintf(s.out, "%s connected\n", id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&returnPath, "return-path", "/", "path to return to after OAuth")
	return cmd
}

func newDisconnectCommand(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <id>",
		Short: "Disconnect an integration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := cli.session(cmd)
			return s.orchestrator(cmd.ErrOrStderr()).Disconnect(s.ctx, args[0])
		},
	}
}

func newCreateCommand(cli *cliContext) *cobra.Command {
	var (
		req                  connection.CreateRequest
		authType             string
		requiresAuth, public bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a custom MCP integration and probe its connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := cli.session(cmd)
			req.AuthType = integration.AuthType(authType)
			if cmd.Flags().Changed("requires-auth") {
				req.RequiresAuth = &requiresAuth
			}
			if cmd.Flags().Changed("public") {
				req.IsPublic = &public
			}
			result, err := s.orchestrator(cmd.ErrOrStderr()).CreateCustom(s.ctx, req)
			if err != nil {
				return err
			}
			if cli.jsonOutput() {
				return writeJSON(s.out, result)
			}
			_, err = fmt.Fprintf(s.out, "%s\t%s\t%s\n", result.ID, result.Name, result.State)
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&req.Name, "name", "", "display name")
	flags.StringVar(&req.Description, "description", "", "description")
	flags.StringVar(&req.ServerURL, "server-url", "", "MCP server URL")
	flags.StringVar(&authType, "auth-type", "", "auth type (none|bearer|oauth)")
	flags.BoolVar(&requiresAuth, "requires-auth", false, "server requires authentication")
	flags.BoolVar(&public, "public", false, "publish to the community catalog")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("server-url")
	return cmd
}

func newDeleteCommand(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a custom integration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := cli.session(cmd)
			return s.orchestrator(cmd.ErrOrStderr()).DeleteCustom(s.ctx, args[0])
		},
	}
}

func newPublishCommand(cli *cliContext, publish bool) *cobra.Command {
	use, short := "publish <id>", "Publish a custom integration"
	if !publish {
		use, short = "unpublish <id>", "Withdraw a custom integration from the community catalog"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := cli.session(cmd)
			o := s.orchestrator(cmd.ErrOrStderr())
			if publish {
				return o.Publish(s.ctx, args[0])
			}
			return o.Unpublish(s.ctx, args[0])
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTable(w io.Writer, list []integration.Reconciled) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tSTATUS\tAUTH")
	for _, item := range list {
		category := item.Category
		if category == "" {
			category = integration.CategoryOther
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", item.ID, item.Name, category, item.Status, item.AuthType)
	}
	return tw.Flush()
}
