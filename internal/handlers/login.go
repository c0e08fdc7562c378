package handlers

import (
	"errors"
	"net/http"

	"github.com/sakura-go/sakura/internal/i18n"
	"github.com/sakura-go/sakura/internal/models"
	"github.com/sakura-go/sakura/pkg/sakura"
)

func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !g.decodeBody(w, r, &req) {
		return
	}

	attempt, err := g.client.SendLoginEmail(r.Context(), req.Email)
	if err != nil {
		g.metrics.RecordLogin("failed")
		g.writeError(w, r, "login", err)
		return
	}

	g.metrics.RecordLogin("sent")
	g.log(r, "login").WithField("attempt", attempt.ID).Info("Login email sent")
	writeJSON(w, http.StatusOK, attempt)
}

// handlePollLogin answers 202 while the link has not been followed.
func (g *Gateway) handlePollLogin(w http.ResponseWriter, r *http.Request) {
	var req models.PollRequest
	if !g.decodeBody(w, r, &req) {
		return
	}

	user, err := g.client.PollLogin(r.Context(), &req.Attempt)
	if errors.Is(err, sakura.ErrLoginPending) {
		g.metrics.RecordLogin("pending")
		writeJSON(w, http.StatusAccepted, models.PendingResponse{
			Status:  "pending",
			Message: g.localizer.Get(g.lang(r), i18n.MsgLoginPending, nil),
		})
		return
	}
	if err != nil {
		g.metrics.RecordLogin("failed")
		g.writeError(w, r, "login_poll", err)
		return
	}

	g.metrics.RecordLogin("completed")
	g.log(r, "login_poll").WithField("user_id", user.UserID).Info("Login completed")
	writeJSON(w, http.StatusOK, user)
}
