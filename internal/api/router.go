package api

import (
	"github.com/arcano/arcano-consultas/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions carries the cross-cutting settings of the router.
type RouterOptions struct {
	GinMode     string
	CORSOrigins []string
	JWTSecret   string
	// PollRate and PollBurst throttle the payment status route per client IP.
	PollRate  float64
	PollBurst int
	// Gatherer backs /metrics; nil skips the route.
	Gatherer prometheus.Gatherer
	Logger   *logger.Logger
}

// SetupRouter configures the Gin router with all routes and middleware.
func SetupRouter(handler *Handler, opts RouterOptions) *gin.Engine {
	if opts.GinMode != "" {
		gin.SetMode(opts.GinMode)
	}
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}

	router := gin.New()
	router.Use(RequestIDMiddleware(logg))
	router.Use(LoggingMiddleware(logg))
	router.Use(RecoveryMiddleware(logg))
	router.Use(CORSMiddleware(opts.CORSOrigins))

	router.GET("/health", handler.Health)
	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	v1.Use(IdentityMiddleware(opts.JWTSecret, logg))
	{
		v1.POST("/tarot/consultations", handler.CreateTarot)
		v1.POST("/astral/maps", handler.CreateAstral)
		v1.GET("/astral/maps/:id/pdf", handler.AstralPDF)
		v1.POST("/oracle/consults", handler.CreateOracle)
		v1.POST("/numerology/readings", handler.CreateNumerology)
		v1.POST("/dreams/interpretations", handler.InterpretDream)
		v1.POST("/energy/guidance", handler.GuideEnergy)

		consultations := v1.Group("/consultations/:kind")
		{
			consultations.GET("", handler.ListConsultations)
			consultations.GET("/:id", handler.GetConsultation)
			consultations.POST("/:id/finalize", handler.FinalizeConsultation)
		}

		payments := v1.Group("/payments")
		{
			payments.POST("/preferences", handler.CreatePreference)
			payments.GET("/:id/status", RateLimitMiddleware(opts.PollRate, opts.PollBurst), handler.PaymentStatus)
		}
	}

	// Called by Mercado Pago, so no identity; deliveries are checked by signature.
	router.POST("/api/webhooks/mercadopago", handler.HandleWebhook)

	return router
}
