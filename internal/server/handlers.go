package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/quotedesk/internal/session"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type sessionResponse struct {
	LoggedIn bool   `json:"logged_in"`
	Loading  bool   `json:"loading"`
	Expiry   string `json:"expiry,omitempty"`
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.term.Status())
}

func (s *Server) getSession(c *gin.Context) {
	cred, ok := s.term.Credential()
	c.JSON(http.StatusOK, sessionResponse{
		LoggedIn: ok,
		Loading:  s.term.SessionLoading(),
		Expiry:   cred.Expiry,
	})
}

func (s *Server) postLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "email and password are required")
		return
	}

	cred, err := s.term.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		var authErr *session.AuthError
		if errors.As(err, &authErr) {
			s.unauthorized(c, authErr.Reason)
			return
		}
		s.internalError(c, "login", err)
		return
	}

	c.JSON(http.StatusOK, sessionResponse{LoggedIn: true, Expiry: cred.Expiry})
}

func (s *Server) postLogout(c *gin.Context) {
	if _, ok := s.term.Credential(); !ok {
		s.unauthorized(c, "not logged in")
		return
	}
	if err := s.term.Logout(c.Request.Context()); err != nil {
		s.internalError(c, "logout", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getSymbols(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"symbols": s.term.Instruments(),
		"status":  s.term.Status(),
	})
}

func (s *Server) getSubscriptions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symbols": s.term.Subscriptions()})
}

func (s *Server) postToggle(c *gin.Context) {
	symbol := c.Param("symbol")
	if symbol == "" {
		s.badRequest(c, "symbol is required")
		return
	}

	symbols, err := s.term.Toggle(c.Request.Context(), symbol)
	if symbols == nil && err != nil {
		s.internalError(c, "toggle", err)
		return
	}
	if err != nil {
		// The set changed in memory; only persisting failed.
		s.logger.Warn("subscription not persisted", "symbol", symbol, "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"symbols": symbols})
}

func (s *Server) getQuotes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rows": s.term.SubscribedInstruments(c.Query("filter"))})
}

func (s *Server) deleteCatalogError(c *gin.Context) {
	s.term.DismissCatalogError()
	c.Status(http.StatusNoContent)
}
