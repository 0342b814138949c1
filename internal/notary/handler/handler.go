// Package handler exposes the stake and slash engine over HTTP.
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gogotex/gogotex/backend/notary-service/internal/apperr"
	"github.com/gogotex/gogotex/backend/notary-service/internal/models"
	"github.com/gogotex/gogotex/backend/notary-service/internal/notary"
	"github.com/gogotex/gogotex/backend/notary-service/internal/notary/service"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/logger"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/middleware"
)

func parseAmount(field, s string) (models.Amount, error) {
	a, err := models.ParseAmount(s)
	if err != nil {
		return models.Amount{}, apperr.Wrap(apperr.ErrInvalidInput, "%s: %v", field, err)
	}
	return a, nil
}

func bind(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		middleware.WriteError(c, apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
		return false
	}
	return true
}

// RegisterNotaryRoutes mounts the notary API on rg. Slashing, deactivation and
// reconciliation are only mounted when operator is non-nil and run behind it.
func RegisterNotaryRoutes(rg gin.IRouter, svc *service.Service, operator gin.HandlerFunc) {
	rg.POST("/notaries", func(c *gin.Context) {
		var req struct {
			Address string `json:"address"`
			Name    string `json:"name"`
			Stake   string `json:"stake"`
		}
		if !bind(c, &req) {
			return
		}
		stake, err := parseAmount("stake", req.Stake)
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		n, err := svc.Register(c.Request.Context(), req.Address, req.Name, stake)
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		c.JSON(http.StatusCreated, n)
	})

	rg.GET("/notaries", func(c *gin.Context) {
		var (
			list []*notary.Notary
			err  error
		)
		active, _ := strconv.ParseBool(c.Query("active"))
		if active {
			list, err = svc.ActiveNotaries(c.Request.Context())
		} else {
			list, err = svc.List(c.Request.Context())
		}
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	rg.GET("/notaries/:address", func(c *gin.Context) {
		st, err := svc.Statistics(c.Request.Context(), c.Param("address"))
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	})

	rg.GET("/notaries/:address/reputation", func(c *gin.Context) {
		score, err := svc.ReputationScore(c.Request.Context(), c.Param("address"))
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"address": c.Param("address"), "reputationScore": score})
	})

	rg.GET("/notaries/:address/slashes", func(c *gin.Context) {
		evs, err := svc.SlashEvents(c.Request.Context(), c.Param("address"))
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		if evs == nil {
			evs = []*notary.SlashEvent{}
		}
		c.JSON(http.StatusOK, evs)
	})

	rg.POST("/notaries/:address/withdraw", func(c *gin.Context) {
		n, err := svc.Withdraw(c.Request.Context(), c.Param("address"))
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, n)
	})

	rg.POST("/notaries/:address/stake", func(c *gin.Context) {
		var req struct {
			Amount string `json:"amount"`
		}
		if !bind(c, &req) {
			return
		}
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		n, err := svc.TopUp(c.Request.Context(), c.Param("address"), amount)
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, n)
	})

	if operator == nil {
		logger.Warnf("notary routes: no operator auth configured, slash, deactivate and reconcile routes disabled")
		return
	}

	rg.POST("/notaries/:address/slash", operator, func(c *gin.Context) {
		var req struct {
			ContentAddress string `json:"contentAddress"`
			Fingerprint    string `json:"fingerprint"`
			Reason         string `json:"reason"`
		}
		if !bind(c, &req) {
			return
		}
		if req.Reason == "" {
			req.Reason = string(notary.ReasonOperatorAction)
		}
		reason, err := notary.ParseReason(req.Reason)
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		var ev *notary.SlashEvent
		switch {
		case req.ContentAddress != "":
			ev, err = svc.Slash(c.Request.Context(), c.Param("address"), req.ContentAddress, reason)
		case req.Fingerprint != "":
			ev, err = svc.SlashByFingerprint(c.Request.Context(), c.Param("address"), req.Fingerprint, reason)
		default:
			err = apperr.Wrap(apperr.ErrInvalidInput, "contentAddress or fingerprint required")
		}
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		logger.Infof("notary: operator %q slashed %s (%s)", middleware.Subject(c), ev.Notary, ev.Reason)
		c.JSON(http.StatusOK, ev)
	})

	rg.POST("/notaries/:address/deactivate", operator, func(c *gin.Context) {
		n, err := svc.Deactivate(c.Request.Context(), c.Param("address"))
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, n)
	})

	rg.POST("/notaries/:address/reconcile", operator, func(c *gin.Context) {
		n, err := svc.Reconcile(c.Request.Context(), c.Param("address"))
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, n)
	})
}
