package http_api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	s.router.POST("/api/v1/invoices", s.createInvoice)
	s.router.GET("/api/v1/invoices/:number", s.getInvoice)
	s.router.POST("/api/v1/invoices/:number/reconcile", s.reconcileInvoice)
	s.router.POST("/api/v1/bot/status_update", s.botStatusUpdate)
	s.router.GET("/api/v1/ws", func(c *gin.Context) {
		s.hub.HandleConnection(c.Writer, c.Request)
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
