// Package httpapi exposes the draw engine, marketplace coordinator, and
// fairness verification over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/gacha/pkg/draw"
	"github.com/MarkoPoloResearchLab/gacha/pkg/fairness"
	"github.com/MarkoPoloResearchLab/gacha/pkg/market"
)

// OpeningLister reads back a user's pack-opening audit records.
type OpeningLister interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]draw.OpeningRecord, error)
}

// WebhookEvents deduplicates payment provider deliveries.
type WebhookEvents interface {
	WebhookEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkWebhookEventProcessed(ctx context.Context, eventID string) (bool, error)
}

// Dependencies carries everything the server routes against.
type Dependencies struct {
	Logger      *zap.Logger
	Coordinator *market.Coordinator
	Opener      market.PackOpener
	Engine      *fairness.Engine
	Openings    OpeningLister
	Events      WebhookEvents
	Balances    interface {
		GetPointsBalance(ctx context.Context, userID string) (int64, error)
	}
}

// Server wires the HTTP routes.
type Server struct {
	cfg    Config
	logger *zap.Logger
	deps   Dependencies
	router *gin.Engine
}

// New validates dependencies and builds the router.
func New(cfg Config, deps Dependencies) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Coordinator == nil || deps.Opener == nil || deps.Engine == nil || deps.Openings == nil || deps.Events == nil {
		return nil, errors.New("httpapi: nil dependency")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	server := &Server{cfg: cfg, logger: deps.Logger, deps: deps}
	server.router = server.setupRouter()
	return server, nil
}

// Router exposes the gin engine, mainly for tests.
func (server *Server) Router() *gin.Engine {
	return server.router
}

// Run serves until ctx is cancelled.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    server.cfg.ListenAddr,
		Handler: server.router,
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("httpapi listening", zap.String("addr", server.cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (server *Server) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// verification needs no session: anyone holding a revealed seed can check
	// a historical draw
	router.POST("/verify", server.handleVerify)
	router.POST("/webhooks/payment", server.handlePaymentWebhook)

	api := router.Group("/api")
	api.Use(authMiddleware(server.cfg.JWTSigningKey, server.cfg.JWTIssuer))

	api.GET("/wallet", server.handleWallet)

	api.POST("/seeds/commit", server.handleCommitSeed)
	api.POST("/seeds/client/rotate", server.handleRotateClientSeed)
	api.POST("/seeds/reveal", server.handleReveal)

	api.POST("/collections/:collection/packs/:pack/open", server.handleOpenPack)
	api.GET("/openings", server.handleListOpenings)

	api.POST("/official/:collection/:card/buy", server.handleBuyOfficial)

	api.POST("/listings", server.handleCreateListing)
	api.POST("/listings/:listing/withdraw", server.handleWithdrawListing)
	api.POST("/listings/:listing/buy", server.handleBuyListing)
	api.POST("/listings/:listing/offers", server.handlePlaceOffer)
	api.POST("/listings/:listing/offers/:offer/withdraw", server.handleWithdrawOffer)
	api.POST("/listings/:listing/offers/:offer/accept", server.handleAcceptOffer)
	api.POST("/listings/:listing/offers/:offer/pay", server.handlePayOffer)

	api.POST("/cards/:collection/:card/destroy", server.handleDestroyCard)
	api.POST("/shipping/withdrawals", server.handleShippingWithdraw)
	api.POST("/fusions/:recipe", server.handleFusion)

	return router
}

func (server *Server) handleWallet(ctx *gin.Context) {
	userID := authenticatedUserID(ctx)
	balance, err := server.deps.Balances.GetPointsBalance(ctx.Request.Context(), userID)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"user_id": userID, "points_balance": balance})
}

func (server *Server) handleCommitSeed(ctx *gin.Context) {
	hash, err := server.deps.Engine.CommitSeed(ctx.Request.Context(), authenticatedUserID(ctx))
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, commitSeedResponse{ServerSeedHash: hash})
}

func (server *Server) handleRotateClientSeed(ctx *gin.Context) {
	clientSeed, err := server.deps.Engine.RotateClientSeed(ctx.Request.Context(), authenticatedUserID(ctx))
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, rotateClientSeedResponse{ClientSeed: clientSeed})
}

func (server *Server) handleReveal(ctx *gin.Context) {
	state, nextHash, err := server.deps.Engine.Reveal(ctx.Request.Context(), authenticatedUserID(ctx))
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, revealResponse{
		ServerSeed:         state.ServerSeed,
		ServerSeedHash:     state.ServerSeedHash,
		ClientSeed:         state.ClientSeed,
		Nonce:              state.Nonce,
		NextServerSeedHash: nextHash,
	})
}

func (server *Server) handleVerify(ctx *gin.Context) {
	var request verifyRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	err := fairness.Verify(request.ServerSeed, request.ServerSeedHash, request.ClientSeed, request.Nonce, request.RandomHash)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	value, valueErr := fairness.ValueFromHash(request.RandomHash)
	if valueErr != nil {
		respondDomainError(ctx, valueErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"valid": true, "roll_value": value})
}

func (server *Server) handleOpenPack(ctx *gin.Context) {
	var request openPackRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	batch, err := server.deps.Coordinator.OpenPack(
		ctx.Request.Context(),
		server.deps.Opener,
		authenticatedUserID(ctx),
		ctx.Param("collection"),
		ctx.Param("pack"),
		request.Count,
	)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, batch)
}

func (server *Server) handleListOpenings(ctx *gin.Context) {
	records, err := server.deps.Openings.ListByUser(ctx.Request.Context(), authenticatedUserID(ctx), 100)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"openings": records})
}

func (server *Server) handleBuyOfficial(ctx *gin.Context) {
	var request buyOfficialRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	err := server.deps.Coordinator.BuyFromOfficialListing(
		ctx.Request.Context(),
		authenticatedUserID(ctx),
		ctx.Param("collection"),
		ctx.Param("card"),
		request.Quantity,
	)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (server *Server) handleCreateListing(ctx *gin.Context) {
	var request createListingRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	listing, err := server.deps.Coordinator.CreateListing(
		ctx.Request.Context(),
		authenticatedUserID(ctx),
		request.CollectionID,
		request.CardID,
		request.Quantity,
		request.PricePoints,
		request.PriceCashCents,
	)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, listing)
}

func (server *Server) handleWithdrawListing(ctx *gin.Context) {
	err := server.deps.Coordinator.WithdrawListing(ctx.Request.Context(), authenticatedUserID(ctx), ctx.Param("listing"))
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "withdrawn"})
}

func (server *Server) handleBuyListing(ctx *gin.Context) {
	var request buyListingRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	record, err := server.deps.Coordinator.PayPricePoint(
		ctx.Request.Context(),
		authenticatedUserID(ctx),
		ctx.Param("listing"),
		request.Quantity,
	)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, record)
}

func (server *Server) handlePlaceOffer(ctx *gin.Context) {
	var request placeOfferRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	userID := authenticatedUserID(ctx)
	listingID := ctx.Param("listing")

	var offer market.Offer
	var err error
	switch market.OfferKind(request.Kind) {
	case market.OfferKindPoint:
		offer, err = server.deps.Coordinator.OfferPoints(ctx.Request.Context(), userID, listingID, request.Amount)
	case market.OfferKindCash:
		offer, err = server.deps.Coordinator.OfferCash(ctx.Request.Context(), userID, listingID, request.Amount)
	default:
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", fmt.Sprintf("unknown offer kind %q", request.Kind)))
		return
	}
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, offer)
}

func (server *Server) handleWithdrawOffer(ctx *gin.Context) {
	err := server.deps.Coordinator.WithdrawOffer(
		ctx.Request.Context(),
		authenticatedUserID(ctx),
		ctx.Param("listing"),
		ctx.Param("offer"),
	)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "withdrawn"})
}

func (server *Server) handleAcceptOffer(ctx *gin.Context) {
	offer, err := server.deps.Coordinator.AcceptOffer(
		ctx.Request.Context(),
		authenticatedUserID(ctx),
		ctx.Param("listing"),
		ctx.Param("offer"),
	)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, offer)
}

func (server *Server) handlePayOffer(ctx *gin.Context) {
	record, err := server.deps.Coordinator.PayPointOffer(
		ctx.Request.Context(),
		authenticatedUserID(ctx),
		ctx.Param("listing"),
		ctx.Param("offer"),
	)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, record)
}

func (server *Server) handleDestroyCard(ctx *gin.Context) {
	var request destroyCardRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	credited, err := server.deps.Coordinator.DestroyCard(
		ctx.Request.Context(),
		authenticatedUserID(ctx),
		ctx.Param("collection"),
		ctx.Param("card"),
		request.Quantity,
	)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"credited_points": credited})
}

func (server *Server) handleShippingWithdraw(ctx *gin.Context) {
	var request shippingWithdrawRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	items := make([]market.ShipmentItem, 0, len(request.Items))
	for _, item := range request.Items {
		items = append(items, market.ShipmentItem{
			CollectionID: item.CollectionID,
			CardID:       item.CardID,
			Quantity:     item.Quantity,
		})
	}
	withdrawRequest, err := server.deps.Coordinator.WithdrawForShipping(
		ctx.Request.Context(),
		authenticatedUserID(ctx),
		request.AddressID,
		items,
	)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, withdrawRequest)
}

func (server *Server) handleFusion(ctx *gin.Context) {
	outcome, err := server.deps.Coordinator.PerformFusion(
		ctx.Request.Context(),
		authenticatedUserID(ctx),
		ctx.Param("recipe"),
	)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, outcome)
}
