// Package mcp exposes question answering as Model Context Protocol tools
// over JSON-RPC, either as plain POST or as an SSE session.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ragpipe/internal/domain"
	"ragpipe/internal/middleware"
)

const (
	ToolAsk           = "ragpipe_ask"
	ToolSearch        = "ragpipe_search"
	ToolListDocuments = "ragpipe_list_documents"
)

type Answerer interface {
	Answer(ctx context.Context, query string, k int) (domain.Answer, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) (domain.RetrievalResult, error)
}

type DocumentLister interface {
	List(ctx context.Context) ([]domain.DocumentRecord, error)
}

type Handler struct {
	answerer     Answerer
	retriever    Retriever
	documents    DocumentLister
	sessions     map[string]chan string // sessionId -> message channel (serialized JSON-RPC response)
	sessionsLock sync.RWMutex
}

// NewHandler builds the tool server. documents may be nil when no registry
// is configured; the list tool then reports that.
func NewHandler(a Answerer, r Retriever, d DocumentLister) *Handler {
	return &Handler{
		answerer:  a,
		retriever: r,
		documents: d,
		sessions:  make(map[string]chan string),
	}
}

// JSON-RPC Request types
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

type CallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type QueryArgs struct {
	Query string `json:"query"`
	Limit *int   `json:"limit,omitempty"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema"`
}

type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// JSON-RPC Response
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   interface{} `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const (
	ErrParse          = -32700
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternal       = -32603
)

func querySchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]string{
				"type":        "string",
				"description": "The question or search text",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Number of chunks to retrieve (server default when omitted).",
				"minimum":     1,
				"maximum":     50,
			},
		},
		"required": []string{"query"},
	}
}

var tools = []Tool{
	{
		Name: ToolAsk,
		Description: `Question answering tool. Retrieves the most relevant passages from the indexed documents and answers from them only, citing passages as [n]. Answers that the documents do not cover are reported as such instead of guessed.

USAGE EXAMPLE:
ragpipe_ask(query="What is the projected world population in 2050?")`,
		InputSchema: querySchema(),
	},
	{
		Name: ToolSearch,
		Description: `Search tool. Returns the ranked passages for a query without generating an answer. Use this to inspect sources or when you want to reason over raw text yourself.

USAGE EXAMPLE:
ragpipe_search(query="fertility decline sub-Saharan Africa", limit=10)`,
		InputSchema: querySchema(),
	},
	{
		Name: ToolListDocuments,
		Description: `Discovery tool. Lists the ingested documents with their status and chunk counts.

USAGE EXAMPLE:
ragpipe_list_documents()`,
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	},
}

// processRequest processes the JSON-RPC request and returns a response.
// Returns nil if no response should be sent (e.g. for notifications).
func (h *Handler) processRequest(ctx context.Context, req JSONRPCRequest) *JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]interface{}{
				"protocolVersion": "2024-11-05",
				"capabilities": map[string]interface{}{
					"tools": map[string]interface{}{},
				},
				"serverInfo": map[string]interface{}{
					"name":    "ragpipe-mcp",
					"version": "1.0.0",
				},
			},
		}
	case "notifications/initialized":
		// Notifications must not generate a response
		return nil
	case "ping":
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{}}
	case "tools/list":
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: ListToolsResult{Tools: tools}}
	case "tools/call":
		var params CallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			slog.WarnContext(ctx, "invalid params structure", "error", err)
			return errorResponse(req.ID, ErrInvalidParams, "Invalid params")
		}
		return h.callTool(ctx, req.ID, params)
	}

	slog.WarnContext(ctx, "unknown jsonrpc method", "method", req.Method)
	return errorResponse(req.ID, ErrMethodNotFound, "Method not found")
}

func (h *Handler) callTool(ctx context.Context, id interface{}, params CallParams) *JSONRPCResponse {
	switch params.Name {
	case ToolAsk, ToolSearch:
		var args QueryArgs
		if len(params.Arguments) > 0 {
			if err := json.Unmarshal(params.Arguments, &args); err != nil {
				slog.WarnContext(ctx, "invalid tool arguments", "tool", params.Name, "error", err)
				return errorResponse(id, ErrInvalidParams, "Invalid arguments")
			}
		}
		if strings.TrimSpace(args.Query) == "" {
			return errorResponse(id, ErrInvalidParams, "Query is required")
		}
		k := 0
		if args.Limit != nil {
			if *args.Limit < 1 || *args.Limit > 50 {
				return errorResponse(id, ErrInvalidParams, "Limit must be between 1 and 50")
			}
			k = *args.Limit
		}
		if params.Name == ToolAsk {
			return h.ask(ctx, id, args.Query, k)
		}
		return h.search(ctx, id, args.Query, k)
	case ToolListDocuments:
		return h.listDocuments(ctx, id)
	}

	slog.WarnContext(ctx, "method not found", "method", params.Name)
	return errorResponse(id, ErrMethodNotFound, "Method not found: "+params.Name)
}

func (h *Handler) ask(ctx context.Context, id interface{}, query string, k int) *JSONRPCResponse {
	ans, err := h.answerer.Answer(ctx, query, k)
	if err != nil {
		slog.ErrorContext(ctx, "ask failed", "error", err)
		return toolError(id, err)
	}

	text := ans.Text
	if len(ans.ChunkIDs) > 0 {
		text += "\n\nSources: " + strings.Join(ans.ChunkIDs, ", ")
	}
	slog.InfoContext(ctx, "tool execution completed", "tool", ToolAsk, "chunk_count", len(ans.ChunkIDs))
	return toolText(id, text)
}

func (h *Handler) search(ctx context.Context, id interface{}, query string, k int) *JSONRPCResponse {
	results, err := h.retriever.Retrieve(ctx, query, k)
	if err != nil {
		slog.ErrorContext(ctx, "search failed", "error", err)
		return toolError(id, err)
	}

	if len(results) == 0 {
		return toolText(id, "No results found.")
	}
	var b strings.Builder
	for i, res := range results {
		fmt.Fprintf(&b, "Result %d (Score: %.2f):\n", i+1, res.Score)
		fmt.Fprintf(&b, "Document: %s\n", res.Chunk.DocumentID)
		fmt.Fprintf(&b, "Chunk: %s (position %d)\n", res.Chunk.ID, res.Chunk.Position)
		if res.Kind == domain.RecordKindSummary {
			b.WriteString("Type: summary\n")
		}
		fmt.Fprintf(&b, "Content:\n%s\n\n---\n", res.Chunk.Text)
	}
	slog.InfoContext(ctx, "tool execution completed", "tool", ToolSearch, "result_count", len(results))
	return toolText(id, b.String())
}

func (h *Handler) listDocuments(ctx context.Context, id interface{}) *JSONRPCResponse {
	if h.documents == nil {
		return toolText(id, "Document registry is not enabled.")
	}
	docs, err := h.documents.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "list_documents failed", "error", err)
		return toolError(id, err)
	}
	if len(docs) == 0 {
		return toolText(id, "No documents found.")
	}

	type SimpleDocument struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Chunks int    `json:"chunks"`
	}
	simple := make([]SimpleDocument, len(docs))
	for i, d := range docs {
		simple[i] = SimpleDocument{ID: d.ID, Status: string(d.Status), Chunks: d.ChunkCount}
	}
	jsonBytes, err := json.MarshalIndent(simple, "", "  ")
	if err != nil {
		return toolError(id, err)
	}
	return toolText(id, string(jsonBytes))
}

func toolText(id interface{}, text string) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  ToolResult{Content: []ToolContent{{Type: "text", Text: text}}},
	}
}

func toolError(id interface{}, err error) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result: ToolResult{
			Content: []ToolContent{{Type: "text", Text: "Error: " + err.Error()}},
			IsError: true,
		},
	}
}

func errorResponse(id interface{}, code int, message string) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		Error: map[string]interface{}{
			"code":    code,
			"message": message,
		},
		ID: id,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, errorResponse(nil, ErrParse, "Parse error"))
		return
	}
	resp := h.processRequest(r.Context(), req)
	if resp == nil {
		// Notification, just return OK
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, resp)
}

// HandleSSE establishes the SSE connection and manages the session
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeHTTPError(w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "Streaming unsupported", middleware.GetCorrelationID(r.Context()))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	sessionID := uuid.New().String()
	msgChan := make(chan string, 100)

	h.sessionsLock.Lock()
	h.sessions[sessionID] = msgChan
	h.sessionsLock.Unlock()

	defer func() {
		h.sessionsLock.Lock()
		delete(h.sessions, sessionID)
		h.sessionsLock.Unlock()
		close(msgChan)
		slog.Info("sse session ended", "session_id", sessionID)
	}()

	slog.Info("sse session started", "session_id", sessionID)

	// Absolute URL for client compatibility
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	endpoint := fmt.Sprintf("%s://%s/mcp/messages?sessionId=%s", scheme, r.Host, sessionID)

	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", html.EscapeString(endpoint))
	fmt.Fprintf(w, "event: id\ndata: %s\n\n", html.EscapeString(sessionID))
	flusher.Flush()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg := <-msgChan:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		case <-ticker.C:
			// keep-alive comment
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// HandleMessage accepts POST messages associated with a session
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		slog.Warn("missing sessionId in message request", "correlation_id", correlationID)
		h.writeHTTPError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Missing sessionId", correlationID)
		return
	}

	h.sessionsLock.RLock()
	_, exists := h.sessions[sessionID]
	h.sessionsLock.RUnlock()

	if !exists {
		slog.Warn("session not found", "session_id", sessionID, "correlation_id", correlationID)
		h.writeHTTPError(w, http.StatusNotFound, "NOT_FOUND", "Session not found", correlationID)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("invalid json in message request", "error", err, "correlation_id", correlationID)
		h.writeHTTPError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON", correlationID)
		return
	}

	// MCP: accept immediately, answer over the SSE stream
	w.WriteHeader(http.StatusAccepted)

	// keep values (correlation id) but not the request cancellation
	bgCtx := context.WithoutCancel(r.Context())

	go func() {
		resp := h.processRequest(bgCtx, req)
		if resp == nil {
			return
		}
		respBytes, err := json.Marshal(resp)
		if err != nil {
			slog.Error("failed to marshal response", "error", err, "correlation_id", correlationID)
			return
		}
		h.deliver(sessionID, string(respBytes))
	}()
}

// deliver hands msg to a live session. The read lock keeps the channel from
// being closed while sending.
func (h *Handler) deliver(sessionID, msg string) {
	h.sessionsLock.RLock()
	defer h.sessionsLock.RUnlock()

	msgChan, ok := h.sessions[sessionID]
	if !ok {
		slog.Warn("session gone, dropping message", "session_id", sessionID)
		return
	}
	select {
	case msgChan <- msg:
	default:
		slog.Warn("session channel full, dropping message", "session_id", sessionID)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	// JSON-RPC errors travel with 200 OK
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeHTTPError(w http.ResponseWriter, status int, code string, message string, correlationID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"status": "error",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"correlationId": correlationID,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
