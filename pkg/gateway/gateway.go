package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nexuspay/payd/pkg/dex"
	"github.com/nexuspay/payd/pkg/mapping"
	"github.com/nexuspay/payd/pkg/store"
	"github.com/nexuspay/payd/pkg/watcher"
	"go.uber.org/zap"
)

// SameChainSubmission is the payload of a same-chain execution submission.
// Only the fields the gateway needs are typed; the raw body is forwarded
// upstream unmodified.
type SameChainSubmission struct {
	Order      json.RawMessage `json:"order"`
	QuoteID    string          `json:"quoteId"`
	SrcChainID int64           `json:"srcChainId"`
}

func (s SameChainSubmission) validate() error {
	if len(s.Order) == 0 {
		return fmt.Errorf("order is required")
	}
	if s.QuoteID == "" {
		return fmt.Errorf("quoteId is required")
	}
	return nil
}

// CrossChainSubmission is the payload of a cross-chain swap submission.
type CrossChainSubmission struct {
	Order        json.RawMessage `json:"order"`
	QuoteID      string          `json:"quoteId"`
	SrcChainID   int64           `json:"srcChainId"`
	SecretHashes []string        `json:"secretHashes"`
}

func (s CrossChainSubmission) validate() error {
	if len(s.Order) == 0 {
		return fmt.Errorf("order is required")
	}
	if s.QuoteID == "" {
		return fmt.Errorf("quoteId is required")
	}
	if s.SrcChainID == 0 {
		return fmt.Errorf("srcChainId is required")
	}
	return nil
}

// Gateway accepts execution submissions, forwards them to the execution
// network, and starts a settlement watch for submissions it can correlate
// with an order. A submission whose quote has no mapping is still forwarded;
// it just goes untracked.
type Gateway struct {
	orders     store.Store
	mappings   mapping.Store
	client     *dex.Client
	supervisor *watcher.Supervisor
	logger     *zap.Logger
}

func New(orders store.Store, mappings mapping.Store, client *dex.Client, supervisor *watcher.Supervisor, logger *zap.Logger) *Gateway {
	return &Gateway{
		orders:     orders,
		mappings:   mappings,
		client:     client,
		supervisor: supervisor,
		logger:     logger,
	}
}

func (g *Gateway) SubmitSameChain(ctx *gin.Context) {
	body, err := io.ReadAll(ctx.Request.Body)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var submission SameChainSubmission
	if err := json.Unmarshal(body, &submission); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid submission payload"})
		return
	}
	if err := submission.validate(); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	srcChain := strconv.FormatInt(submission.SrcChainID, 10)
	g.submit(ctx, false, submission.QuoteID, srcChain, body)
}

func (g *Gateway) SubmitCrossChain(ctx *gin.Context) {
	body, err := io.ReadAll(ctx.Request.Body)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var submission CrossChainSubmission
	if err := json.Unmarshal(body, &submission); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid submission payload"})
		return
	}
	if err := submission.validate(); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	srcChain := strconv.FormatInt(submission.SrcChainID, 10)
	g.submit(ctx, true, submission.QuoteID, srcChain, body)
}

func (g *Gateway) submit(ctx *gin.Context, crossChain bool, quoteID, srcChain string, body []byte) {
	logger := g.logger.With(zap.String("quote", quoteID))

	tracked := true
	m, err := g.mappings.ByQuoteID(ctx, quoteID)
	if err != nil {
		if !errors.Is(err, mapping.ErrNotFound) {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve mapping"})
			return
		}
		logger.Info("no mapping for quote, submission will be untracked")
		tracked = false
	}

	var order store.Order
	if tracked {
		order, err = g.orders.OrderByUID(m.OrderUID)
		if err != nil {
			if !errors.Is(err, store.ErrOrderNotFound) {
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load order"})
				return
			}
			logger.Warn("mapping references a missing order, submission will be untracked",
				zap.String("order", m.OrderUID))
			tracked = false
		}
	}

	code, respBody, err := g.client.Forward(ctx, http.MethodPost, dex.SubmitPath(crossChain), body)
	if err != nil {
		logger.Error("failed to forward submission", zap.Error(err))
		ctx.JSON(http.StatusBadGateway, gin.H{"error": "execution network unreachable"})
		return
	}

	if code == http.StatusCreated && tracked {
		dstChain := srcChain
		if crossChain {
			dstChain = order.OutChain
			if dstChain == srcChain {
				logger.Warn("cross-chain submission with equal chains", zap.String("chain", srcChain))
			}
		}
		if err := g.orders.UpdateWatchStatus(order.UID, store.WatchInitiated); err != nil {
			logger.Error("failed to mark order initiated", zap.Error(err))
		}
		if err := g.supervisor.StartWatch(watcher.Task{
			OrderUID:      order.UID,
			Owner:         order.Owner,
			QuoteID:       m.QuoteID,
			ExecutionHash: m.ExecutionHash,
			SrcChain:      srcChain,
			DstChain:      dstChain,
			Secrets:       m.Secrets,
		}); err != nil {
			logger.Error("failed to start settlement watch", zap.Error(err))
		}
	}

	if code >= 400 {
		if json.Valid(respBody) {
			logger.Error("upstream rejected submission", zap.Int("code", code))
		} else {
			logger.Error("upstream rejected submission with non-JSON body",
				zap.Int("code", code), zap.ByteString("body", respBody))
		}
	}

	ctx.Data(code, "application/json", respBody)
}

// Proxy forwards every non-submit request under a route group to the
// execution network, passing the upstream response through unmodified.
func (g *Gateway) Proxy(upstreamPrefix string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		body, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		path := upstreamPrefix + ctx.Param("path")
		if query := ctx.Request.URL.RawQuery; query != "" {
			path += "?" + query
		}

		code, respBody, err := g.client.Forward(ctx, ctx.Request.Method, path, body)
		if err != nil {
			g.logger.Error("proxy request failed", zap.String("path", path), zap.Error(err))
			ctx.JSON(http.StatusBadGateway, gin.H{"error": "execution network unreachable"})
			return
		}
		ctx.Data(code, "application/json", respBody)
	}
}
