package mcpadapter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
	"github.com/kirillkom/plant-doctor/internal/core/ports"
)

const (
	toolDiagnoseLeaf  = "diagnose_leaf"
	toolAskAgronomist = "ask_agronomist"
	toolListLabels    = "list_labels"
)

type Server struct {
	diagnose ports.DiagnosisService
	chat     ports.ChatService
	labels   []domain.Label
}

func NewServer(diagnose ports.DiagnosisService, chat ports.ChatService, labels []domain.Label) *Server {
	return &Server{
		diagnose: diagnose,
		chat:     chat,
		labels:   append([]domain.Label(nil), labels...),
	}
}

// MCPServer registers the tools on a new MCP server.
func (s *Server) MCPServer(version string) *server.MCPServer {
	srv := server.NewMCPServer("plant-doctor", version, server.WithToolCapabilities(false))

	srv.AddTool(mcp.NewTool(toolDiagnoseLeaf,
		mcp.WithDescription("Diagnose a plant leaf photo and recommend a treatment."),
		mcp.WithString("image_base64",
			mcp.Required(),
			mcp.Description("JPEG, PNG or GIF image, base64 encoded; a data: URL prefix is accepted."),
		),
	), s.handleDiagnose)

	srv.AddTool(mcp.NewTool(toolAskAgronomist,
		mcp.WithDescription("Ask the agronomist assistant a question about crops, diseases or treatments."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The user question.")),
		mcp.WithString("history_json",
			mcp.Description(`Optional prior transcript as a JSON array of {"role":"user|assistant","text":"..."}.`),
		),
	), s.handleAsk)

	srv.AddTool(mcp.NewTool(toolListLabels,
		mcp.WithDescription("List the plant conditions the classifier can recognize, in model output order."),
	), s.handleListLabels)

	return srv
}

func (s *Server) ServeStdio(version string) error {
	return server.ServeStdio(s.MCPServer(version))
}

func (s *Server) handleDiagnose(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	encoded, err := request.RequireString("image_base64")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := decodeImage(encoded)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(s.diagnose.DiagnoseBytes(ctx, data)), nil
}

func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var history []domain.ChatTurn
	if raw := strings.TrimSpace(request.GetString("history_json", "")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &history); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid history_json: %v", err)), nil
		}
		if err := domain.ValidateHistory(history); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	updated, _ := s.chat.Reply(ctx, question, history)
	if len(updated) == len(history) {
		return mcp.NewToolResultError("question is empty"), nil
	}
	return mcp.NewToolResultText(updated[len(updated)-1].Text), nil
}

func (s *Server) handleListLabels(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names := make([]string, 0, len(s.labels))
	for _, label := range s.labels {
		names = append(names, label.String())
	}
	return mcp.NewToolResultText(strings.Join(names, "\n")), nil
}

func decodeImage(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if strings.HasPrefix(encoded, "data:") {
		if idx := strings.Index(encoded, ","); idx >= 0 {
			encoded = encoded[idx+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("image_base64 is not valid base64: %w", err)
	}
	return data, nil
}
