// internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/askbase-go/internal/config"
	"github.com/askbase-go/internal/llm"
	"github.com/askbase-go/internal/models"
)

// responseDataHeader carries URL-safe-encoded JSON with the references (and,
// for chat mode, the conversation and prompt ids) so clients can read
// citation data without parsing the stream.
const responseDataHeader = "X-Response-Data"

// PromptStore is the persistence collaborator: projects, conversations, and
// the two-phase prompt record lifecycle.
type PromptStore interface {
	GetProject(ctx context.Context, id string) (*models.Project, error)
	EnsureConversation(ctx context.Context, projectID, conversationID string, metadata json.RawMessage) (string, error)
	CreatePrompt(ctx context.Context, rec *models.PromptRecord) error
	FinalizePrompt(ctx context.Context, promptID, response, status string) error
}

// Retriever produces ranked matching sections for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, threshold float32, limit int, apiKeyOverride string) ([]models.FileSectionMatch, []float32, error)
}

// Upstream is the hosted model provider.
type Upstream interface {
	Moderate(ctx context.Context, apiKeyOverride, text string) (bool, error)
	StreamChat(ctx context.Context, apiKeyOverride string, p llm.CompletionParams, msgs []models.ChatMessage) (<-chan llm.StreamChunk, error)
	Chat(ctx context.Context, apiKeyOverride string, p llm.CompletionParams, msgs []models.ChatMessage) (string, error)
	StreamCompletion(ctx context.Context, apiKeyOverride string, p llm.CompletionParams, prompt string) (<-chan llm.StreamChunk, error)
	Completion(ctx context.Context, apiKeyOverride string, p llm.CompletionParams, prompt string) (string, error)
}

// Limiter is the per-project request throttle.
type Limiter interface {
	Allow(ctx context.Context, projectID string) (bool, error)
}

// Server is the API server. All collaborators are injected; the server holds
// no hidden module-scope state.
type Server struct {
	router    *gin.Engine
	cfg       *config.Config
	store     PromptStore
	retriever Retriever
	upstream  Upstream
	limiter   Limiter
	log       zerolog.Logger
}

// NewServer wires a server from its collaborators.
func NewServer(cfg *config.Config, store PromptStore, retriever Retriever, upstream Upstream, limiter Limiter, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.HandleMethodNotAllowed = true

	s := &Server{
		router:    router,
		cfg:       cfg,
		store:     store,
		retriever: retriever,
		upstream:  upstream,
		limiter:   limiter,
		log:       log.With().Str("component", "api").Logger(),
	}

	router.Use(RecoveryMiddleware(s.log))
	router.Use(LoggingMiddleware(s.log))
	router.Use(CORSMiddleware())
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/", s.handleRoot)

	preflight := func(c *gin.Context) { c.String(http.StatusOK, "ok") }

	s.router.POST("/chat", s.handleChat)
	s.router.POST("/chat/:project", s.handleChat)
	s.router.OPTIONS("/chat", preflight)
	s.router.OPTIONS("/chat/:project", preflight)

	s.router.POST("/completions", s.handleCompletions)
	s.router.POST("/completions/:project", s.handleCompletions)
	s.router.OPTIONS("/completions", preflight)
	s.router.OPTIONS("/completions/:project", preflight)

	s.router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"message": "method not allowed"})
	})
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "askbase",
		"version": "1.0.0",
		"endpoints": gin.H{
			"chat":        "POST /chat/{project} - retrieval-augmented chat completions",
			"completions": "POST /completions/{project} - legacy template completions",
		},
	})
}

// Start runs the server on the configured port.
func (s *Server) Start() error {
	port := s.cfg.Server.Port
	if port == "" {
		port = "8001"
	}
	return s.router.Run(":" + port)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
