// Package controller exposes the execution service over HTTP.
package controller

import (
	"net/http"
	"strings"

	"codeexec/internal/execution"
	"codeexec/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// LanguageLister lists registered languages.
type LanguageLister interface {
	Languages() []execution.LanguageInfo
}

// ExecutionController handles execution requests.
type ExecutionController struct {
	service   execution.Service
	languages LanguageLister
	// maxBodyBytes bounds the request body before JSON decoding.
	maxBodyBytes int64
}

// NewExecutionController creates a new controller.
func NewExecutionController(service execution.Service, languages LanguageLister, maxBodyBytes int64) *ExecutionController {
	return &ExecutionController{service: service, languages: languages, maxBodyBytes: maxBodyBytes}
}

type executeRequest struct {
	Code      *string `json:"code"`
	Language  string  `json:"language"`
	TestInput *string `json:"testInput"`
}

// Execute runs one submission and answers 200 with {output} or {error}.
func (h *ExecutionController) Execute(c *gin.Context) {
	if h.maxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	}
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid JSON body")
		return
	}
	if req.Code == nil {
		response.BadRequest(c, "code is required")
		return
	}
	if strings.TrimSpace(req.Language) == "" {
		response.BadRequest(c, "language is required")
		return
	}

	resp, err := h.service.Execute(c.Request.Context(), execution.ExecutionRequest{
		Code:      *req.Code,
		Language:  req.Language,
		TestInput: req.TestInput,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// Languages lists the registered languages.
func (h *ExecutionController) Languages(c *gin.Context) {
	response.Success(c, gin.H{"languages": h.languages.Languages()})
}

// Health answers liveness probes.
func (h *ExecutionController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Register mounts the routes. Middlewares run only on the execute route.
func (h *ExecutionController) Register(r gin.IRouter, executeMiddlewares ...gin.HandlerFunc) {
	api := r.Group("/api/v1")
	handlers := make([]gin.HandlerFunc, 0, len(executeMiddlewares)+1)
	handlers = append(handlers, executeMiddlewares...)
	api.POST("/execute", append(handlers, h.Execute)...)
	api.GET("/languages", h.Languages)
	r.GET("/healthz", h.Health)
}
