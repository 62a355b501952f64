package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	usagedomain "github.com/zek/abone/internal/usage/domain"
)

type useAbilityRequest struct {
	Amount float64 `json:"amount" binding:"required"`
	// Incremental defaults to true; false sets the window's counter to
	// Amount instead of adding to it.
	Incremental *bool `json:"incremental"`
}

type returnAbilityRequest struct {
	Amount float64 `json:"amount" binding:"required"`
}

type clearUsageRequest struct {
	Code string `json:"code"`
	// All drops expired history too, not just current windows.
	All bool `json:"all"`
}

func (s *Server) GetAbility(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ability, err := s.usageSvc.Ability(c.Request.Context(), id, c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, ability)
}

// UseAbility gates on CanUse before recording, so the endpoint rejects
// over-quota consumption even though the meter itself records
// unconditionally. Absolute writes skip the gate.
func (s *Server) UseAbility(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req useAbilityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Amount <= 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	incremental := req.Incremental == nil || *req.Incremental

	if incremental {
		ok, err := s.usageSvc.CanUse(c.Request.Context(), id, c.Param("code"), req.Amount)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !ok {
			AbortWithError(c, usagedomain.ErrQuotaExceeded)
			return
		}
	}

	ability, err := s.usageSvc.Use(c.Request.Context(), id, c.Param("code"), req.Amount, incremental)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, ability)
}

func (s *Server) ReturnAbility(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req returnAbilityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Amount <= 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.usageSvc.Return(c.Request.Context(), id, c.Param("code"), req.Amount); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "returned"})
}

func (s *Server) ClearUsage(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req clearUsageRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
	}

	if req.All && req.Code == "" {
		err = s.usageSvc.ClearAll(c.Request.Context(), id)
	} else {
		err = s.usageSvc.Clear(c.Request.Context(), id, req.Code, !req.All)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}
