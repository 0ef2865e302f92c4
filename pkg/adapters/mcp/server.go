package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/presentation/tui"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/history"
	"github.com/aretw0/arbor/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Manager is the subset of the session manager the MCP tools drive.
type Manager interface {
	Open(ctx context.Context, documentID string) (session.Info, error)
	Apply(ctx context.Context, documentID string, kind domain.ChangeKind, label string, fn func(*domain.Document) error) (history.Entry, error)
	Jump(ctx context.Context, documentID, nodeID string) (domain.Document, error)
	Undo(ctx context.Context, documentID string, d domain.Domain) (history.UndoResult, error)
	List(ctx context.Context) ([]string, error)
	Entries(ctx context.Context, documentID string) ([]history.Entry, error)
}

var _ Manager = (*session.Manager)(nil)

// LogArgs selects the document whose history is listed.
type LogArgs struct {
	DocumentID string `json:"document_id"`
	Format     string `json:"format,omitempty"`
}

// UndoArgs requests a scoped undo.
type UndoArgs struct {
	DocumentID string `json:"document_id"`
	Domain     string `json:"domain,omitempty"`
}

// JumpArgs moves the current pointer of a document.
type JumpArgs struct {
	DocumentID string `json:"document_id"`
	NodeID     string `json:"node_id"`
}

// ReplyArgs carries one assistant turn to record.
type ReplyArgs struct {
	DocumentID string `json:"document_id"`
	Content    string `json:"content"`
	Text       string `json:"text,omitempty"`
	Label      string `json:"label,omitempty"`
}

// JumpResponse reports the document installed by a jump.
type JumpResponse struct {
	NodeID   string          `json:"node_id" jsonschema_description:"The node the document now points at"`
	Document domain.Document `json:"document" jsonschema_description:"The snapshot installed as the live document"`
}

// ReplyResponse reports the node recorded for an assistant turn.
type ReplyResponse struct {
	NodeID     string `json:"node_id" jsonschema_description:"ID of the assistant node"`
	Label      string `json:"label" jsonschema_description:"Label stored on the node"`
	TextNodeID string `json:"text_node_id,omitempty" jsonschema_description:"ID of the editor node holding the proposed text, when text was given"`
}

// Server exposes document history to MCP clients.
type Server struct {
	manager   Manager
	logger    *slog.Logger
	now       func() time.Time
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance.
func NewServer(manager Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		manager:   manager,
		logger:    logger,
		now:       time.Now,
		mcpServer: server.NewMCPServer("arbor-mcp", strings.TrimSpace(arbor.Version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the MCP SSE transport on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	logTool := mcp.NewTool("history_log",
		mcp.WithDescription("List the history tree of a document in depth-first order."),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Document to inspect")),
		mcp.WithString("format", mcp.Description("Output format"), mcp.Enum("markdown", "json")),
	)
	s.mcpServer.AddTool(logTool, s.handleHistoryLog)

	undoTool := mcp.NewTool("undo",
		mcp.WithDescription("Revert the most recent change affecting a domain. Scoped undos are recorded as new nodes."),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Document to modify")),
		mcp.WithString("domain", mcp.Description("Undo domain (defaults to all)"),
			mcp.Enum("all", "text", "data", "assistant")),
		mcp.WithOutputSchema[history.UndoResult](),
	)
	s.mcpServer.AddTool(undoTool, mcp.NewStructuredToolHandler(s.handleUndo))

	jumpTool := mcp.NewTool("jump",
		mcp.WithDescription("Install an existing snapshot as the live document without recording a node."),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Document to modify")),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Target node")),
		mcp.WithOutputSchema[JumpResponse](),
	)
	s.mcpServer.AddTool(jumpTool, mcp.NewStructuredToolHandler(s.handleJump))

	replyTool := mcp.NewTool("record_assistant_reply",
		mcp.WithDescription("Record an assistant turn as an assistant node. Proposed text is recorded first as its own editor node."),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Document to modify")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Assistant message added to the dialogue")),
		mcp.WithString("text", mcp.Description("Replacement document text proposed by the assistant (optional)")),
		mcp.WithString("label", mcp.Description("History label (defaults to 'Assistant reply')")),
		mcp.WithOutputSchema[ReplyResponse](),
	)
	s.mcpServer.AddTool(replyTool, mcp.NewStructuredToolHandler(s.handleReply))
}

func (s *Server) handleHistoryLog(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args LogArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.DocumentID == "" {
		return mcp.NewToolResultError("document_id is required"), nil
	}

	info, err := s.manager.Open(ctx, args.DocumentID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("open failed: %v", err)), nil
	}
	entries, err := s.manager.Entries(ctx, args.DocumentID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("history failed: %v", err)), nil
	}

	if args.Format == "json" {
		data, err := json.Marshal(entries)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(data)), nil
	}
	title := info.Title
	if title == "" {
		title = info.ID
	}
	return mcp.NewToolResultText(tui.HistoryMarkdown(title, entries)), nil
}

func (s *Server) handleUndo(ctx context.Context, request mcp.CallToolRequest, args UndoArgs) (history.UndoResult, error) {
	d := domain.DomainAll
	if args.Domain != "" {
		parsed, err := domain.ParseDomain(args.Domain)
		if err != nil {
			return history.UndoResult{}, err
		}
		d = parsed
	}
	res, err := s.manager.Undo(ctx, args.DocumentID, d)
	if err != nil {
		if errors.Is(err, domain.ErrNoUndoTarget) {
			return history.UndoResult{}, fmt.Errorf("nothing to undo in domain %q", d)
		}
		return history.UndoResult{}, fmt.Errorf("undo failed: %w", err)
	}
	s.logger.Debug("mcp undo", "document_id", args.DocumentID, "domain", d, "node_id", res.NodeID)
	return res, nil
}

func (s *Server) handleJump(ctx context.Context, request mcp.CallToolRequest, args JumpArgs) (JumpResponse, error) {
	if args.NodeID == "" {
		return JumpResponse{}, errors.New("node_id is required")
	}
	doc, err := s.manager.Jump(ctx, args.DocumentID, args.NodeID)
	if err != nil {
		return JumpResponse{}, fmt.Errorf("jump failed: %w", err)
	}
	return JumpResponse{NodeID: args.NodeID, Document: doc}, nil
}

func (s *Server) handleReply(ctx context.Context, request mcp.CallToolRequest, args ReplyArgs) (ReplyResponse, error) {
	if strings.TrimSpace(args.Content) == "" {
		return ReplyResponse{}, errors.New("content is required")
	}
	label := args.Label
	if label == "" {
		label = "Assistant reply"
	}

	// Each node changes a single domain: the proposed text is an editor
	// change, the reply itself an assistant change.
	var resp ReplyResponse
	if args.Text != "" {
		entry, err := s.manager.Apply(ctx, args.DocumentID, domain.ChangeEditor, label+" (text)", func(doc *domain.Document) error {
			doc.Text = args.Text
			return nil
		})
		if err != nil {
			return ReplyResponse{}, fmt.Errorf("record failed: %w", err)
		}
		resp.TextNodeID = entry.ID
	}

	entry, err := s.manager.Apply(ctx, args.DocumentID, domain.ChangeAssistant, label, func(doc *domain.Document) error {
		doc.Dialogue = append(doc.Dialogue, domain.Message{
			Role:    "assistant",
			Content: args.Content,
			At:      s.now().UTC(),
		})
		return nil
	})
	if err != nil {
		return ReplyResponse{}, fmt.Errorf("record failed: %w", err)
	}
	resp.NodeID = entry.ID
	resp.Label = entry.Label
	return resp, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("arbor://documents", "Stored documents",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		ids, err := s.manager.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}
		if ids == nil {
			ids = []string{}
		}
		data, err := json.Marshal(ids)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "arbor://documents",
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
