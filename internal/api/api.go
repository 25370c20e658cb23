// Package api exposes the thin HTTP command surface: start and end sessions,
// global leaderboard, player stats. Each route maps onto one registry or
// service operation.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/victornm/triviad/internal/domain"
	"github.com/victornm/triviad/internal/errors"
	"github.com/victornm/triviad/internal/game"
)

type GlobalLeaderboard interface {
	Global(ctx context.Context, limit int) ([]domain.Standing, error)
}

type PlayerLedger interface {
	Lookup(ctx context.Context, userID string) (domain.LedgerEntry, error)
}

type Config struct {
	Engine      *gin.Engine
	Registry    *game.Registry
	Leaderboard GlobalLeaderboard
	Ledger      PlayerLedger
}

type API struct {
	registry *game.Registry
	lb       GlobalLeaderboard
	ledger   PlayerLedger
}

func New(c Config) *API {
	a := &API{
		registry: c.Registry,
		lb:       c.Leaderboard,
		ledger:   c.Ledger,
	}

	v1 := c.Engine.Group("/v1")
	v1.POST("/channels/:channel/session", a.startSession)
	v1.GET("/channels/:channel/session", a.getSession)
	v1.DELETE("/channels/:channel/session", a.endSession)
	v1.GET("/leaderboard", a.globalLeaderboard)
	v1.GET("/players/:id/stats", a.playerStats)

	return a
}

type sessionResponse struct {
	SessionID string            `json:"session_id"`
	ChannelID string            `json:"channel_id"`
	State     string            `json:"state"`
	Round     int               `json:"round"`
	Standings []standingPayload `json:"standings,omitempty"`
}

type standingPayload struct {
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name"`
	Score  int64  `json:"score"`
}

func (a *API) startSession(c *gin.Context) {
	s, err := a.registry.Start(c.Param("channel"))
	if err != nil {
		renderError(c, err)
		return
	}

	// The session outlives the request; its lifecycle is bound to the
	// registry, not to this handler.
	go s.Run(context.Background())

	c.JSON(http.StatusAccepted, sessionResponse{
		SessionID: s.ID(),
		ChannelID: s.ChannelID(),
		State:     string(s.State()),
	})
}

func (a *API) getSession(c *gin.Context) {
	s, ok := a.registry.Get(c.Param("channel"))
	if !ok {
		renderError(c, errors.New(errors.CodeNotFound,
			errors.WithMessagef("no active game in channel %s", c.Param("channel"))))
		return
	}

	c.JSON(http.StatusOK, sessionResponse{
		SessionID: s.ID(),
		ChannelID: s.ChannelID(),
		State:     string(s.State()),
		Round:     s.Round(),
		Standings: toPayload(s.Standings()),
	})
}

func (a *API) endSession(c *gin.Context) {
	if err := a.registry.End(c.Param("channel")); err != nil {
		renderError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) globalLeaderboard(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		renderError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid limit %q", c.Query("limit"))))
		return
	}

	standings, err := a.lb.Global(c.Request.Context(), limit)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"standings": toPayload(standings)})
}

func (a *API) playerStats(c *gin.Context) {
	entry, err := a.ledger.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":        entry.Name,
		"total":       entry.Total,
		"last_played": entry.LastPlayed,
	})
}

func toPayload(standings []domain.Standing) []standingPayload {
	out := make([]standingPayload, 0, len(standings))
	for _, st := range standings {
		out = append(out, standingPayload{
			UserID: st.UserID,
			Name:   st.Name,
			Score:  st.Score,
		})
	}
	return out
}

func renderError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.JSON(e.HTTPStatusCode(), e)
}
