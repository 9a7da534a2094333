package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zfogg/sidechain/feedengine/internal/apiclient"
	"github.com/zfogg/sidechain/feedengine/internal/feed"
)

var (
	feedCursor         string
	feedLimit          int
	feedPages          int
	feedNoReposts      bool
	feedWithReputation bool
	sinceScope         string
	sinceDuration      time.Duration
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Feed commands",
	Long:  "Page through the global and home feeds",
}

var feedGlobalCmd = &cobra.Command{
	Use:   "global",
	Short: "View the global feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return pageFeed(cmd, client.GlobalFeed)
	},
}

var feedHomeCmd = &cobra.Command{
	Use:   "home",
	Short: "View your home feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return pageFeed(cmd, client.HomeFeed)
	},
}

var feedSinceCmd = &cobra.Command{
	Use:   "since [RFC3339 time]",
	Short: "Show items newer than a time (default: --last ago)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		since := time.Now().Add(-sinceDuration)
		if len(args) == 1 {
			parsed, err := time.Parse(time.RFC3339, args[0])
			if err != nil {
				return fmt.Errorf("invalid time %q: %w", args[0], err)
			}
			since = parsed
		}
		includeReposts := !feedNoReposts
		page, err := client.FeedSince(cmd.Context(), apiclient.SinceParams{
			Since:          since,
			Limit:          feedLimit,
			IncludeReposts: &includeReposts,
			WithReputation: feedWithReputation,
			Scope:          sinceScope,
			Cursor:         feedCursor,
		})
		if err != nil {
			return err
		}
		return printPage(page)
	},
}

type fetchFunc func(ctx context.Context, p apiclient.FeedParams) (*feed.Page, error)

// pageFeed fetches up to --pages pages, following next_cursor.
func pageFeed(cmd *cobra.Command, fetch fetchFunc) error {
	params := apiclient.FeedParams{
		Cursor:         feedCursor,
		Limit:          feedLimit,
		IncludeReposts: !feedNoReposts,
		WithReputation: feedWithReputation,
	}
	for i := 0; i < max(feedPages, 1); i++ {
		page, err := fetch(cmd.Context(), params)
		if err != nil {
			if apiclient.IsRetryable(err) {
				printWarning("the server asked to retry: %v", err)
			}
			return err
		}
		logger.Debug("Fetched page", "items", len(page.Items), "has_more", page.HasMore)
		if err := printPage(page); err != nil {
			return err
		}
		if !page.HasMore || page.NextCursor == "" {
			break
		}
		params.Cursor = page.NextCursor
	}
	return nil
}

func init() {
	for _, c := range []*cobra.Command{feedGlobalCmd, feedHomeCmd, feedSinceCmd} {
		c.Flags().StringVar(&feedCursor, "cursor", "", "Resume from a next_cursor")
		c.Flags().IntVar(&feedLimit, "limit", 0, "Items per page (server default when 0)")
		c.Flags().BoolVar(&feedNoReposts, "no-reposts", false, "Hide repost events")
		c.Flags().BoolVar(&feedWithReputation, "with-reputation", false, "Attach author reputation")
	}
	for _, c := range []*cobra.Command{feedGlobalCmd, feedHomeCmd} {
		c.Flags().IntVar(&feedPages, "pages", 1, "Pages to fetch, following next_cursor")
	}
	feedSinceCmd.Flags().StringVar(&sinceScope, "scope", "global", "Feed to poll: global or home")
	feedSinceCmd.Flags().DurationVar(&sinceDuration, "last", time.Hour, "Look back this far when no time is given")

	feedCmd.AddCommand(feedGlobalCmd)
	feedCmd.AddCommand(feedHomeCmd)
	feedCmd.AddCommand(feedSinceCmd)
}
