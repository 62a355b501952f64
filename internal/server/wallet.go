package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/zek/abone/internal/catalog"
	"github.com/zek/abone/internal/money"
	walletdomain "github.com/zek/abone/internal/wallet/domain"
)

type openWalletRequest struct {
	OwnerKind string `json:"owner_kind" binding:"required"`
	OwnerID   int64  `json:"owner_id" binding:"required"`
	Name      string `json:"name"`
}

type transactionRequest struct {
	Amount    int64          `json:"amount"`
	Currency  string         `json:"currency" binding:"required"`
	Hint      string         `json:"hint"`
	Meta      map[string]any `json:"meta"`
	Confirmed *bool          `json:"confirmed"`
	Force     bool           `json:"force"`
	Exchange  bool           `json:"exchange"`
}

type transferRequest struct {
	FromID   snowflake.ID `json:"from_id" binding:"required"`
	ToID     snowflake.ID `json:"to_id" binding:"required"`
	Amount   int64        `json:"amount"`
	Currency string       `json:"currency" binding:"required"`
	Hint     string       `json:"hint"`
	Force    bool         `json:"force"`
}

type balanceResponse struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (s *Server) OpenWallet(c *gin.Context) {
	var req openWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	wallet, err := s.walletSvc.OpenWallet(c.Request.Context(), catalog.NewRef(req.OwnerKind, snowflake.ID(req.OwnerID)), req.Name)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, wallet)
}

func (s *Server) GetBalance(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	balance, err := s.walletSvc.Balance(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, balanceResponse{Amount: balance.Amount, Currency: balance.Currency})
}

func (s *Server) ListTransactions(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	transactions, err := s.walletSvc.Transactions(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, transactions)
}

func (s *Server) CreditWallet(c *gin.Context) {
	s.storeTransaction(c, false)
}

func (s *Server) ChargeWallet(c *gin.Context) {
	s.storeTransaction(c, true)
}

func (s *Server) storeTransaction(c *gin.Context, charge bool) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req transactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	amount := money.New(req.Amount, req.Currency)
	opts := walletdomain.TransactionOptions{
		Confirmed: req.Confirmed,
		Meta:      req.Meta,
		Hint:      req.Hint,
		Force:     req.Force,
		Exchange:  req.Exchange,
	}

	var transaction *walletdomain.Transaction
	if charge {
		transaction, err = s.walletSvc.Charge(c.Request.Context(), id, amount, opts)
	} else {
		transaction, err = s.walletSvc.Credit(c.Request.Context(), id, amount, opts)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, transaction)
}

func (s *Server) Transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	transaction, err := s.walletSvc.Transfer(c.Request.Context(), req.FromID, req.ToID, money.New(req.Amount, req.Currency), walletdomain.TransactionOptions{
		Hint:  req.Hint,
		Force: req.Force,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, transaction)
}

func (s *Server) RecalculateBalance(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	balance, err := s.walletSvc.RecalculateBalance(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, balanceResponse{Amount: balance.Amount, Currency: balance.Currency})
}

func (s *Server) DeleteTransaction(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.walletSvc.DeleteTransaction(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func parseID(c *gin.Context) (snowflake.ID, error) {
	return snowflake.ParseString(c.Param("id"))
}
