package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apierrors "github.com/zfogg/sidechain/feedengine/internal/errors"
	"github.com/zfogg/sidechain/feedengine/internal/reputation"
	"github.com/zfogg/sidechain/feedengine/internal/util"
)

// ReputationResponse is the body of the reputation routes
type ReputationResponse struct {
	UserID string            `json:"user_id"`
	Score  int               `json:"score"`
	Bucket reputation.Bucket `json:"bucket"`
}

// GetUserReputation returns a user's current score and bucket
// GET /api/v1/users/:id/reputation
func (h *Handlers) GetUserReputation(c *gin.Context) {
	h.serveReputation(c, false)
}

// RefreshUserReputation drops the cached score and recomputes it
// POST /api/v1/users/:id/reputation/refresh
func (h *Handlers) RefreshUserReputation(c *gin.Context) {
	h.serveReputation(c, true)
}

func (h *Handlers) serveReputation(c *gin.Context, refresh bool) {
	userID := c.Param("id")
	ctx := c.Request.Context()

	exists, err := h.users.Exists(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !exists {
		util.RespondNotFound(c, "user")
		return
	}

	if refresh {
		h.scores.Invalidate(userID)
	}

	result, err := h.scores.GetScore(ctx, userID)
	if err != nil {
		apiErr := toAPIError(err)
		if apiErr.Code == apierrors.ErrScoreUnavailable {
			apiErr = apierrors.ScoreUnavailable(userID).WithCause(err)
		}
		util.RespondWithAPIError(c, apiErr)
		return
	}

	c.JSON(http.StatusOK, ReputationResponse{
		UserID: userID,
		Score:  result.Score,
		Bucket: result.Bucket,
	})
}
