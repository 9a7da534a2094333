package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	apierrors "github.com/zfogg/sidechain/feedengine/internal/errors"
	"github.com/zfogg/sidechain/feedengine/internal/feed"
	"github.com/zfogg/sidechain/feedengine/internal/repository"
	"github.com/zfogg/sidechain/feedengine/internal/reputation"
	"github.com/zfogg/sidechain/feedengine/internal/util"
)

// respondError maps a domain error onto its API error and writes it.
func respondError(c *gin.Context, err error) {
	util.RespondWithAPIError(c, toAPIError(err))
}

func toAPIError(err error) *apierrors.APIError {
	var apiErr *apierrors.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, feed.ErrInvalidCursor):
		return apierrors.InvalidCursor().WithCause(err)
	case errors.Is(err, feed.ErrFeedUnavailable):
		return apierrors.FeedUnavailable().WithCause(err)
	case errors.Is(err, repository.ErrUserNotFound):
		return apierrors.NotFound("user").WithCause(err)
	case errors.Is(err, reputation.ErrScoreUnavailable), errors.Is(err, reputation.ErrCoalescerClosed):
		return apierrors.ScoreUnavailable("user").WithCause(err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apierrors.Timeout("request").WithCause(err)
	default:
		return apierrors.InternalError("internal server error").WithCause(err)
	}
}
