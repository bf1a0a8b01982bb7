package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
	"github.com/custodia-labs/docdex/internal/core/ports/driving"
)

// newScrapeCommand indexes a documentation source.
func newScrapeCommand(get func() *app) *cobra.Command {
	var opts domain.ScraperOptions
	var scope string
	var wait bool

	cmd := &cobra.Command{
		Use:   "scrape <library> <url>",
		Short: "Index documentation from a URL, directory, registry or repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			opts.Library = args[0]
			opts.URL = args[1]
			opts.Scope = domain.ScopeMode(scope)

			jobID, err := a.manager.EnqueueScrape(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s queued\n", jobID)

			if !wait {
				return nil
			}
			job, err := a.manager.WaitForJob(cmd.Context(), jobID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s %s (%d/%d pages)\n",
				job.ID, job.Status, job.Progress.PagesDone, job.Progress.PagesMax)
			if job.Status == domain.JobFailed {
				return fmt.Errorf("scrape failed: %s", job.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Version, "version", "", "version to index (empty for unversioned)")
	cmd.Flags().IntVar(&opts.MaxPages, "max-pages", 0, "page budget (0 for configured default)")
	cmd.Flags().IntVar(&opts.MaxDepth, "max-depth", 0, "crawl depth (0 for configured default)")
	cmd.Flags().IntVar(&opts.MaxConcurrency, "concurrency", 0, "concurrent fetches (0 for configured default)")
	cmd.Flags().StringVar(&scope, "scope", "subpages", "crawl scope: subpages, hostname, domain, any")
	cmd.Flags().StringSliceVar(&opts.IncludePatterns, "include", nil, "include patterns (glob, or /regex/)")
	cmd.Flags().StringSliceVar(&opts.ExcludePatterns, "exclude", nil, "exclude patterns, replacing the defaults")
	cmd.Flags().BoolVar(&opts.IgnoreErrors, "ignore-errors", true, "continue past per-page failures")
	cmd.Flags().BoolVar(&wait, "wait", true, "wait for the job to finish")
	return cmd
}

// newRefreshCommand re-indexes a version using its stored snapshot.
func newRefreshCommand(get func() *app) *cobra.Command {
	var onlyIncomplete bool

	cmd := &cobra.Command{
		Use:   "refresh <library> [version]",
		Short: "Refresh an indexed version with conditional fetches",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			version := ""
			if len(args) > 1 {
				version = args[1]
			}
			jobID, err := a.manager.EnqueueRefresh(cmd.Context(), args[0], version,
				driving.RefreshOptions{OnlyIncomplete: onlyIncomplete})
			if err != nil {
				return err
			}
			job, err := a.manager.WaitForJob(cmd.Context(), jobID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "refresh %s (%d/%d pages)\n",
				job.Status, job.Progress.PagesDone, job.Progress.PagesMax)
			return nil
		},
	}
	cmd.Flags().BoolVar(&onlyIncomplete, "only-incomplete", false, "skip versions already completed")
	return cmd
}

// newRemoveCommand deletes a version and, if empty, its library.
func newRemoveCommand(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <library> [version]",
		Short: "Remove an indexed version",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			version := ""
			if len(args) > 1 {
				version = args[1]
			}
			jobID, err := a.manager.EnqueueRemoveVersion(cmd.Context(), args[0], version)
			if err != nil {
				return err
			}
			job, err := a.manager.WaitForJob(cmd.Context(), jobID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "remove %s\n", job.Status)
			return nil
		},
	}
}

// newSearchCommand runs a hybrid query.
func newSearchCommand(get func() *app) *cobra.Command {
	var version string
	var limit int

	cmd := &cobra.Command{
		Use:   "search <library> <query>",
		Short: "Search indexed documentation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			query := strings.Join(args[1:], " ")

			results, err := a.search.Search(cmd.Context(), args[0], version, query, limit)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no results")
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s (%.4f)\n   %s\n", i+1, r.Title, r.Score, r.URL)
				if len(r.Section.Path) > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "   %s\n", strings.Join(r.Section.Path, " > "))
				}
				fmt.Fprintln(cmd.OutOrStdout(), indent(r.Content, "   "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "version to search (empty for unversioned)")
	cmd.Flags().IntVar(&limit, "limit", 5, "maximum results")
	return cmd
}

// newListCommand lists libraries and versions.
func newListCommand(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list [library]",
		Short: "List indexed libraries and versions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			library := ""
			if len(args) > 0 {
				library = args[0]
			}
			summaries, err := a.search.ListVersions(cmd.Context(), library)
			if err != nil {
				return err
			}
			for _, sum := range summaries {
				name := sum.Version.Name
				if name == "" {
					name = "(latest)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\t%s\t%d pages\t%d chunks\n",
					sum.Library, name, sum.Version.Status, sum.PageCount, sum.DocumentCount)
			}
			return nil
		},
	}
}

// newJobsCommand lists pipeline jobs.
func newJobsCommand(get func() *app) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List pipeline jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			filter := driven.JobFilter{}
			if status != "" {
				filter.Statuses = []domain.JobStatus{domain.JobStatus(status)}
			}
			jobs, err := a.manager.ListJobs(cmd.Context(), filter)
			if err != nil {
				return err
			}
			for _, job := range jobs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s@%s\t%s\t%d/%d\n",
					job.ID, job.Kind, job.Library, job.Version, job.Status,
					job.Progress.PagesDone, job.Progress.PagesMax)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}

// indent prefixes every line of s.
func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
