package cli

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentregistry-dev/mcpindex/internal/client"
	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
)

var (
	searchCategory string
	searchTags     []string
	searchSource   string
	searchVerified string
	searchSort     string
	searchLimit    int
	searchOffset   int
	searchOutput   string
)

var SearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search registered MCP servers",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSearch,
}

var ShowCmd = &cobra.Command{
	Use:   "show <name|id>",
	Short: "Show a server and its ranking breakdown",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	SearchCmd.Flags().StringVar(&searchCategory, "category", "", "Only servers in this category")
	SearchCmd.Flags().StringSliceVar(&searchTags, "tag", nil, "Match servers carrying any of these tags")
	SearchCmd.Flags().StringVar(&searchSource, "source", "", "Only servers from this source")
	SearchCmd.Flags().StringVar(&searchVerified, "verified", "", "Only verified (true) or unverified (false) servers")
	SearchCmd.Flags().StringVar(&searchSort, "sort", string(models.SortRelevance), "Sort by relevance, stars, downloads, rating or updated")
	SearchCmd.Flags().IntVar(&searchLimit, "limit", models.DefaultSearchLimit, "Maximum results")
	SearchCmd.Flags().IntVar(&searchOffset, "offset", 0, "Results to skip")
	SearchCmd.Flags().StringVarP(&searchOutput, "output", "o", "table", "Output format (table, json)")
	ShowCmd.Flags().StringVarP(&searchOutput, "output", "o", "table", "Output format (table, json)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	c, err := registryClient()
	if err != nil {
		return err
	}
	req := models.SearchRequest{
		Category: searchCategory,
		Tags:     searchTags,
		Source:   models.Source(searchSource),
		Sort:     models.SortKey(searchSort),
		Limit:    searchLimit,
		Offset:   searchOffset,
	}
	if len(args) == 1 {
		req.Query = args[0]
	}
	if searchVerified != "" {
		v, err := strconv.ParseBool(searchVerified)
		if err != nil {
			return fmt.Errorf("invalid --verified value %q", searchVerified)
		}
		req.Verified = &v
	}

	resp, err := c.Search(cmd.Context(), req)
	if err != nil {
		return err
	}
	if searchOutput == "json" {
		return printJSON(cmd.OutOrStdout(), resp)
	}

	out := cmd.OutOrStdout()
	if resp.Degraded {
		fmt.Fprintln(out, "warning: search backend unavailable, results come from the record store without ranking")
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVERSION\tSOURCE\tSTARS\tVERIFIED\tDESCRIPTION")
	for _, r := range resp.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\t%s\n", r.Name, r.LatestVersion, r.Source,
			r.Metadata.GitHubStars, r.Metadata.Verified, truncate(r.Description, 60))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d of %d servers\n", len(resp.Results), resp.Total)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	c, err := registryClient()
	if err != nil {
		return err
	}
	srv, err := c.GetServerByName(cmd.Context(), args[0])
	var apiErr *client.Error
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		srv, err = c.GetServer(cmd.Context(), args[0])
	}
	if err != nil {
		return err
	}
	if searchOutput == "json" {
		return printJSON(cmd.OutOrStdout(), srv)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Name:\t%s\n", srv.Name)
	fmt.Fprintf(tw, "ID:\t%s\n", srv.ID)
	fmt.Fprintf(tw, "Source:\t%s (%s)\n", srv.Source, srv.ExternalID)
	fmt.Fprintf(tw, "Description:\t%s\n", srv.Description)
	if latest := srv.LatestVersion(); latest != nil {
		fmt.Fprintf(tw, "Latest version:\t%s\n", latest.Version)
	}
	versions := make([]string, 0, len(srv.Versions))
	for _, v := range srv.Versions {
		versions = append(versions, v.Version)
	}
	fmt.Fprintf(tw, "Versions:\t%s\n", strings.Join(versions, ", "))
	fmt.Fprintf(tw, "Capabilities:\t%s\n", strings.Join(srv.Capabilities.Present(), ", "))
	fmt.Fprintf(tw, "Category:\t%s\n", srv.Metadata.Category)
	fmt.Fprintf(tw, "Tags:\t%s\n", strings.Join(srv.Metadata.Tags, ", "))
	fmt.Fprintf(tw, "Claimed:\t%t\n", srv.IsClaimed)
	fmt.Fprintf(tw, "Stars:\t%d\n", srv.Metadata.GitHubStars)
	fmt.Fprintf(tw, "Rating:\t%.2f (%d)\n", srv.Metadata.Rating, srv.Metadata.RatingCount)
	fmt.Fprintf(tw, "Score:\t%.3f (quality %.2f, popularity %.2f, maintenance %.2f, trust %.2f)\n",
		srv.Score.Composite, srv.Score.Quality, srv.Score.Popularity, srv.Score.Maintenance, srv.Score.Trust)
	return tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
