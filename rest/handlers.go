package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nexuspay/payd/pkg/dex"
	"github.com/nexuspay/payd/pkg/mapping"
	"github.com/nexuspay/payd/pkg/store"
	"go.uber.org/zap"
)

type createOrderRequest struct {
	Merchant    string `json:"merchant" binding:"required"`
	OutChain    string `json:"outChain" binding:"required"`
	OutToken    string `json:"outToken" binding:"required"`
	UsdCents    int64  `json:"usdCents" binding:"required,min=1"`
	DeadlineSec int64  `json:"deadlineSec" binding:"required,min=1"`
}

func (s *Server) createOrder(ctx *gin.Context) {
	var req createOrderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Error creating order",
			"error":   err.Error(),
		})
		return
	}
	if !dex.ChainExists(req.OutChain) {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "outChain not supported",
		})
		return
	}

	order := store.Order{
		Owner:       userID(ctx),
		Merchant:    req.Merchant,
		OutChain:    req.OutChain,
		OutToken:    req.OutToken,
		UsdCents:    req.UsdCents,
		DeadlineSec: req.DeadlineSec,
	}
	if err := s.orders.CreateOrder(&order); err != nil {
		s.internalError(ctx, "Error creating order", err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Order created successfully",
		"uid":     order.UID,
		"order":   orderView(order),
	})
}

func (s *Server) listOrders(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "10"))

	orders, total, err := s.orders.OrdersByOwner(userID(ctx), page, limit)
	if err != nil {
		s.internalError(ctx, "Error fetching orders", err)
		return
	}

	views := make([]gin.H, 0, len(orders))
	for _, order := range orders {
		views = append(views, orderView(order))
	}
	totalPages := (total + int64(limit) - 1) / int64(limit)

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"orders": views,
			"pagination": gin.H{
				"currentPage": page,
				"totalPages":  totalPages,
				"totalOrders": total,
				"hasMore":     int64(page) < totalPages,
			},
		},
	})
}

type registerMappingRequest struct {
	OrderID       string   `json:"orderId"`
	QuoteID       string   `json:"quoteId"`
	ExecutionHash string   `json:"executionHash"`
	Secrets       []string `json:"secrets"`
}

func (s *Server) registerMapping(ctx *gin.Context) {
	var req registerMappingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid mapping payload",
		})
		return
	}
	if req.OrderID == "" || req.QuoteID == "" || req.ExecutionHash == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "orderId, quoteId and executionHash are required",
		})
		return
	}

	if _, err := s.orders.OrderByUID(req.OrderID); err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"message": "Order not found",
			})
			return
		}
		s.internalError(ctx, "Error creating order mapping", err)
		return
	}

	created, err := s.mappings.Create(ctx, mapping.Mapping{
		OrderUID:      req.OrderID,
		QuoteID:       req.QuoteID,
		ExecutionHash: req.ExecutionHash,
		Secrets:       req.Secrets,
	})
	if err != nil {
		if errors.Is(err, mapping.ErrConflict) {
			ctx.JSON(http.StatusConflict, gin.H{
				"success": false,
				"message": "Mapping already exists for this quote ID or execution hash",
			})
			return
		}
		s.internalError(ctx, "Error creating order mapping", err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Order mapping created successfully",
		"data":    created,
	})
}

func (s *Server) publicOrder(ctx *gin.Context) {
	order, ok := s.loadOrder(ctx, ctx.Param("uid"), "")
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"order": gin.H{
			"uid":       order.UID,
			"outChain":  order.OutChain,
			"outToken":  order.OutToken,
			"usdCents":  order.UsdCents,
			"merchant":  order.Merchant,
			"deadline":  order.Deadline,
			"createdAt": order.CreatedAt,
			"status":    order.DerivedStatus(),
		},
	})
}

func (s *Server) orderByUID(ctx *gin.Context) {
	order, ok := s.loadOrder(ctx, ctx.Param("uid"), userID(ctx))
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"order":   orderView(order),
	})
}

func (s *Server) orderStatus(ctx *gin.Context) {
	order, ok := s.loadOrder(ctx, ctx.Param("uid"), userID(ctx))
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"order":   orderView(order),
		"status":  order.DerivedStatus(),
	})
}

// loadOrder fetches an order by uid, scoped to the owner when one is given.
// A foreign order is reported as not found, not as forbidden.
func (s *Server) loadOrder(ctx *gin.Context, uid, owner string) (store.Order, bool) {
	order, err := s.orders.OrderByUID(uid)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"message": "Order not found",
			})
			return store.Order{}, false
		}
		s.internalError(ctx, "Error fetching order", err)
		return store.Order{}, false
	}
	if owner != "" && order.Owner != owner {
		ctx.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "Order not found",
		})
		return store.Order{}, false
	}
	return order, true
}

func (s *Server) internalError(ctx *gin.Context, message string, err error) {
	s.logger.Error(message, zap.Error(err))
	resp := gin.H{
		"success": false,
		"message": message,
	}
	// Detail only leaves the process outside release builds.
	if gin.Mode() != gin.ReleaseMode {
		resp["error"] = err.Error()
	}
	ctx.JSON(http.StatusInternalServerError, resp)
}

func orderView(order store.Order) gin.H {
	return gin.H{
		"uid":              order.UID,
		"merchant":         order.Merchant,
		"outChain":         order.OutChain,
		"outToken":         order.OutToken,
		"usdCents":         order.UsdCents,
		"deadlineSec":      order.DeadlineSec,
		"deadline":         order.Deadline,
		"watchStatus":      order.WatchStatus,
		"executionOutcome": order.ExecutionOutcome,
		"createdAt":        order.CreatedAt,
		"updatedAt":        order.UpdatedAt,
	}
}
