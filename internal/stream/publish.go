package stream

import (
	"context"
	"fmt"

	"github.com/zfogg/sidechain/feedengine/internal/models"
)

// audience addresses the global feed of a group plus the home timeline of
// the author and every follower.
func audience(global, timeline, authorID string, followerIDs []string) []string {
	to := make([]string, 0, len(followerIDs)+2)
	to = append(to, FeedRef(global, globalFeedID), FeedRef(timeline, authorID))
	for _, id := range followerIDs {
		if id != authorID {
			to = append(to, FeedRef(timeline, id))
		}
	}
	return to
}

// PublishPost adds an original post to the author's user feed, fanning out
// to global:main and the timelines of the author and followers.
func PublishPost(ctx context.Context, pub ActivityPublisher, post models.Post, followerIDs []string) (string, error) {
	act := PostActivity(post)
	act.To = audience(FeedGroupGlobal, FeedGroupTimeline, post.UserID, followerIDs)
	id, err := pub.Publish(ctx, "user", post.UserID, act)
	if err != nil {
		return "", fmt.Errorf("failed to publish post %s: %w", post.ID, err)
	}
	return id, nil
}

// PublishRepost adds a repost event to the resharer's user feed, fanning out
// to reposts:main and the repost timelines of the resharer and followers.
func PublishRepost(ctx context.Context, pub ActivityPublisher, repost models.Repost, followerIDs []string) (string, error) {
	act := RepostActivity(repost)
	act.To = audience(FeedGroupReposts, FeedGroupTimelineReposts, repost.UserID, followerIDs)
	id, err := pub.Publish(ctx, "user", repost.UserID, act)
	if err != nil {
		return "", fmt.Errorf("failed to publish repost %s: %w", repost.ID, err)
	}
	return id, nil
}
