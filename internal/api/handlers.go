package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kvquery/kvquery/internal/engine"
)

// healthHandler reports liveness only; the engine has no external
// dependency to probe (the storage adapter is in-process).
func (s *Server) healthHandler(c *gin.Context) {
	SuccessResponse(c, "ok", gin.H{"status": "healthy"})
}

// queryHandler decodes one query descriptor, runs it against the
// engine, and returns its result rows or write envelope.
func (s *Server) queryHandler(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "invalid query body: "+err.Error())
		return
	}

	q, err := req.toQuery()
	if err != nil {
		BadRequestError(c, "invalid query: "+err.Error())
		return
	}

	result, err := s.engine.Execute(c.Request.Context(), q)
	if err != nil {
		if _, ok := err.(*engine.SchemaError); ok {
			BadRequestError(c, err.Error())
			return
		}
		s.log.Error("query execution failed", "error", err)
		InternalError(c, err.Error())
		return
	}

	c.JSON(http.StatusOK, &Response{Success: true, Message: result.Message, Data: result})
}
