package api

import (
	"net/http"

	"asset-pool-ledger/internal/ledger"
	"asset-pool-ledger/internal/money"

	"github.com/gin-gonic/gin"
)

type amountRequest struct {
	Amount money.Money `json:"amount"`
}

type saleRequest struct {
	SaleProceeds money.Money `json:"sale_proceeds"`
}

type purchaseRequest struct {
	Price money.Money `json:"price"`
}

// handleOpenPool creates a COLLECTING pool for an approved request
func (s *Server) handleOpenPool(c *gin.Context) {
	var req ledger.NewPool
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	asset, err := s.ledger.OpenPool(c.Request.Context(), req)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    asset,
	})
}

// handleListPools lists every pool
func (s *Server) handleListPools(c *gin.Context) {
	assets, err := s.ledger.Assets(c.Request.Context())
	if err != nil {
		s.handleError(c, err)
		return
	}
	successResponse(c, assets)
}

// handleGetPool returns one pool
func (s *Server) handleGetPool(c *gin.Context) {
	asset, err := s.ledger.Asset(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleError(c, err)
		return
	}
	successResponse(c, asset)
}

// handleGetAccess reports whether the caller holds the asset
func (s *Server) handleGetAccess(c *gin.Context) {
	access, err := s.ledger.CheckAccess(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		s.handleError(c, err)
		return
	}
	successResponse(c, access)
}

// handleGetPoolStats returns funding progress and contributions
func (s *Server) handleGetPoolStats(c *gin.Context) {
	stats, err := s.queries.AssetContributionStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleError(c, err)
		return
	}
	successResponse(c, stats)
}

// handleGetDistributions returns the pool's sale history
func (s *Server) handleGetDistributions(c *gin.Context) {
	history, err := s.queries.AssetDistributionHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleError(c, err)
		return
	}
	successResponse(c, history)
}

// handleContribute applies the caller's contribution to a pool
func (s *Server) handleContribute(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	out, err := s.ledger.Contribute(c.Request.Context(), getUserID(c), c.Param("id"), req.Amount)
	if err != nil {
		s.handleError(c, err)
		return
	}
	if !out.Success {
		rejectedResponse(c, out)
		return
	}
	successResponse(c, out)
}

// handleProcessPool moves a funded pool to AVAILABLE
func (s *Server) handleProcessPool(c *gin.Context) {
	out, err := s.ledger.ProcessFundedAsset(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleError(c, err)
		return
	}
	if !out.Success {
		rejectedResponse(c, out)
		return
	}
	successResponse(c, out)
}

// handleRecordSale distributes the profit of an off-ledger sale
func (s *Server) handleRecordSale(c *gin.Context) {
	var req saleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	out, err := s.ledger.DistributeProfit(c.Request.Context(), c.Param("id"), req.SaleProceeds)
	if err != nil {
		s.handleError(c, err)
		return
	}
	if !out.Success {
		rejectedResponse(c, out)
		return
	}
	successResponse(c, out)
}

// handlePurchase buys a copy of an AVAILABLE asset from the caller's balance
func (s *Server) handlePurchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	out, err := s.ledger.Purchase(c.Request.Context(), getUserID(c), c.Param("id"), req.Price)
	if err != nil {
		s.handleError(c, err)
		return
	}
	if !out.Success {
		rejectedResponse(c, out)
		return
	}
	successResponse(c, out)
}
