package app

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/stacklok/catalog-cache/internal/query"
	"github.com/stacklok/catalog-cache/internal/service"
)

var searchCmd = &cobra.Command{
	Use:   "search PROFILE TYPE [TEXT]",
	Short: "Query the local cache",
	Long: `List or search cached items of one content type. With TEXT the results
are ranked full-text matches; without it the filters and sort apply.

Examples:
  catalog-cache search home movies "dark knight" --config config.yaml
  catalog-cache search home series --genre drama --sort rating --desc`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().String("category", "", "Category id")
	searchCmd.Flags().String("genre", "", "Genre substring")
	searchCmd.Flags().Int("year", 0, "Release year")
	searchCmd.Flags().Float64("min-rating", 0, "Minimum rating")
	searchCmd.Flags().String("sort", "", "Sort field (name, added, rating, year)")
	searchCmd.Flags().Bool("desc", false, "Sort descending")
	searchCmd.Flags().Int("limit", 0, "Page size")
	searchCmd.Flags().Int("offset", 0, "Page offset")
	searchCmd.Flags().Bool("explain", false, "Print the query plan instead of results")
}

func searchOptions(cmd *cobra.Command, args []string) []service.Option {
	flags := cmd.Flags()
	opts := []service.Option{
		service.WithProfile(args[0]),
		service.WithContentType(args[1]),
	}
	if len(args) == 3 {
		opts = append(opts, service.WithText(args[2]))
	}
	if v, _ := flags.GetString("category"); v != "" {
		opts = append(opts, service.WithCategory(v))
	}
	if v, _ := flags.GetString("genre"); v != "" {
		opts = append(opts, service.WithGenre(v))
	}
	if flags.Changed("year") {
		v, _ := flags.GetInt("year")
		opts = append(opts, service.WithYear(v))
	}
	if flags.Changed("min-rating") {
		v, _ := flags.GetFloat64("min-rating")
		opts = append(opts, service.WithMinRating(v))
	}
	if v, _ := flags.GetString("sort"); v != "" {
		desc, _ := flags.GetBool("desc")
		opts = append(opts, service.WithSort(v, desc))
	}
	if v, _ := flags.GetInt("limit"); v > 0 {
		opts = append(opts, service.WithLimit(v))
	}
	if v, _ := flags.GetInt("offset"); v > 0 {
		opts = append(opts, service.WithOffset(v))
	}
	return opts
}

func runSearch(cmd *cobra.Command, args []string) error {
	components, err := openComponents(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = components.Close(context.Background()) }()

	ctx := cmd.Context()
	svc := components.Service
	opts := searchOptions(cmd, args)
	out := cmd.OutOrStdout()

	if explain, _ := cmd.Flags().GetBool("explain"); explain {
		plan, err := svc.ExplainQuery(ctx, opts...)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, plan.SQL)
		for _, step := range plan.Steps {
			fmt.Fprintf(out, "%3d %3d  %s\n", step.ID, step.Parent, step.Detail)
		}
		return nil
	}

	var page *query.Page
	if len(args) == 3 {
		page, err = svc.SearchItems(ctx, opts...)
	} else {
		page, err = svc.ListItems(ctx, opts...)
	}
	if err != nil {
		return err
	}
	return renderPage(out, page)
}

func renderPage(out io.Writer, page *query.Page) error {
	table := tablewriter.NewWriter(out)
	table.Header("ID", "Name", "Year", "Rating", "Genre", "Category")
	for _, item := range page.Items {
		year := ""
		if item.Year > 0 {
			year = strconv.Itoa(item.Year)
		}
		rating := ""
		if item.Rating > 0 {
			rating = strconv.FormatFloat(item.Rating, 'f', 1, 64)
		}
		if err := table.Append([]string{item.ExternalID, item.Name, year, rating, item.Genre, item.CategoryID}); err != nil {
			return fmt.Errorf("failed to render item: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintf(out, "%d-%d of %d", page.Offset+min(1, len(page.Items)), page.Offset+len(page.Items), page.Total)
	if page.HasMore {
		fmt.Fprint(out, " (more available)")
	}
	fmt.Fprintln(out)
	return nil
}
