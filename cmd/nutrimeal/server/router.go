package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"nutrimeal/credential"
	"nutrimeal/pipeline"
	"nutrimeal/tools"
)

const requestIDHeader = "X-Request-ID"

// setupRouter exposes every registry tool at POST /tools/:name and as a tool call envelope at
// POST /tools, plus a shorthand /resolve/:kind for the resolve_* tools.
func setupRouter(registry *tools.Registry, stats func() any) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, stats())
	})

	r.GET("/tools", func(c *gin.Context) {
		var out []gin.H
		for _, t := range registry.GetTools() {
			out = append(out, gin.H{
				"name":          t.Name(),
				"title":         t.Title(),
				"description":   t.Description(),
				"input_schema":  t.InputSchema(),
				"output_schema": t.OutputSchema(),
			})
		}
		c.JSON(http.StatusOK, out)
	})

	r.POST("/tools", func(c *gin.Context) {
		var call tools.Call
		if err := c.ShouldBindJSON(&call); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
		runTool(c, registry, call.Name, call.Input)
	})
	r.POST("/tools/:name", func(c *gin.Context) {
		bindAndRun(c, registry, c.Param("name"))
	})
	r.POST("/resolve/:kind", func(c *gin.Context) {
		bindAndRun(c, registry, "resolve_"+c.Param("kind"))
	})

	return r
}

// requestID reuses the caller's X-Request-ID or mints one, and echoes it on the response.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func bindAndRun(c *gin.Context, registry *tools.Registry, name string) {
	input := map[string]any{}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	runTool(c, registry, name, input)
}

func runTool(c *gin.Context, registry *tools.Registry, name string, input map[string]any) {
	if input == nil {
		input = map[string]any{}
	}
	if _, ok := input["request_id"]; !ok {
		input["request_id"] = c.GetString("request_id")
	}

	out, err := registry.Dispatch(c.Request.Context(), tools.Call{Name: name, Input: input})
	if errors.Is(err, tools.ErrToolNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(errorStatus(err), errorBody(err))
		return
	}
	c.JSON(http.StatusOK, out)
}

func errorStatus(err error) int {
	if errors.Is(err, tools.ErrInvalidInput) {
		return http.StatusBadRequest
	}
	return pipeline.StatusCode(err)
}

func errorBody(err error) gin.H {
	body := gin.H{"error": err.Error()}
	var upErr *credential.UpstreamError
	if !errors.Is(err, credential.ErrCredentialsExhausted) && errors.As(err, &upErr) {
		body["upstream_status"] = upErr.StatusCode
		body["upstream_body"] = upErr.Body
	}
	return body
}
