// Copyright 2025 ByteDance Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api serves the workflows over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/fanjia1024/ragflow/internal/graph"
	"github.com/fanjia1024/ragflow/internal/store"
	"github.com/fanjia1024/ragflow/internal/workflow/rag"
	"github.com/fanjia1024/ragflow/internal/workflow/report"
	"github.com/fanjia1024/ragflow/llm/log"
	"github.com/fanjia1024/ragflow/version"
	"github.com/gin-gonic/gin"
)

// Answerer answers questions, see rag.Service.
type Answerer interface {
	Answer(ctx context.Context, question string) (*rag.Answer, error)
}

// ReportWriter writes reports, see report.Service.
type ReportWriter interface {
	Write(ctx context.Context, req report.Request) (*report.Report, error)
}

type Options struct {
	RAG    Answerer
	Report ReportWriter
	// Ingester and Store back the documents endpoint. Both may be nil.
	Ingester *store.Ingester
	Store    *store.Store
	// HTTPClient fetches URLs posted to the documents endpoint.
	HTTPClient *http.Client
}

type Server struct {
	Engine *gin.Engine
	opts   Options
}

func NewServer(opts Options) *Server {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	s := &Server{Engine: gin.New(), opts: opts}
	s.Engine.Use(gin.Recovery(), accessLog())

	g := s.Engine.Group("/api")
	g.GET("/health", s.health)
	g.POST("/rag", s.answer)
	g.POST("/report", s.report)
	g.POST("/documents", s.documents)
	return s
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Engine}
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("%s %s %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Documents int    `json:"documents"`
}

func (s *Server) health(c *gin.Context) {
	resp := HealthResponse{Status: "ok", Version: version.Version}
	if s.opts.Store != nil {
		resp.Documents = s.opts.Store.Len()
	}
	c.JSON(http.StatusOK, resp)
}

type RAGRequest struct {
	Question string `json:"question" binding:"required"`
}

func (s *Server) answer(c *gin.Context) {
	if s.opts.RAG == nil {
		s.unavailable(c, "rag")
		return
	}
	var req RAGRequest
	if !s.bind(c, &req) {
		return
	}
	ans, err := s.opts.RAG.Answer(c.Request.Context(), req.Question)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ans)
}

type ReportRequest struct {
	Topic           string `json:"topic" binding:"required"`
	ReportStructure string `json:"report_structure"`
	NumberOfQueries int    `json:"number_of_queries" binding:"gte=0,lte=10"`
}

func (s *Server) report(c *gin.Context) {
	if s.opts.Report == nil {
		s.unavailable(c, "report")
		return
	}
	var req ReportRequest
	if !s.bind(c, &req) {
		return
	}
	rep, err := s.opts.Report.Write(c.Request.Context(), report.Request{
		Topic:           req.Topic,
		ReportStructure: req.ReportStructure,
		NumberOfQueries: req.NumberOfQueries,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

type DocumentInput struct {
	Content string `json:"content" binding:"required"`
	Source  string `json:"source"`
}

type DocumentsRequest struct {
	Documents []DocumentInput `json:"documents" binding:"dive"`
	URLs      []string        `json:"urls" binding:"dive,url"`
}

type DocumentsResponse struct {
	IDs   []string `json:"ids"`
	Count int      `json:"count"`
}

func (s *Server) documents(c *gin.Context) {
	if s.opts.Ingester == nil {
		s.unavailable(c, "documents")
		return
	}
	var req DocumentsRequest
	if !s.bind(c, &req) {
		return
	}
	if len(req.Documents) == 0 && len(req.URLs) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: CodeBadRequest, Message: "documents or urls are required"})
		return
	}

	ctx := c.Request.Context()
	docs := make([]*schema.Document, 0, len(req.Documents)+len(req.URLs))
	for _, d := range req.Documents {
		meta := map[string]any{}
		if src := strings.TrimSpace(d.Source); src != "" {
			meta[store.MetaSource] = src
		}
		docs = append(docs, &schema.Document{Content: d.Content, MetaData: meta})
	}
	for _, u := range req.URLs {
		doc, err := store.FetchURL(ctx, s.opts.HTTPClient, u)
		if err != nil {
			s.fail(c, graph.NewCollaboratorError("fetch", err))
			return
		}
		docs = append(docs, doc)
	}
	ids, err := s.opts.Ingester.Index(ctx, docs)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, DocumentsResponse{IDs: ids, Count: len(ids)})
}

func (s *Server) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: CodeBadRequest, Message: err.Error()})
		return false
	}
	return true
}

func (s *Server) fail(c *gin.Context, err error) {
	status, resp := Describe(err)
	log.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(status, resp)
}

func (s *Server) unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: CodeInternal, Message: what + " is not configured"})
}
