package mcpadapter

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/studyforge/internal/core/domain"
	"github.com/kirillkom/studyforge/internal/core/ports"
)

// Tools exposes pricing, balances, artifacts and generation to MCP clients.
type Tools struct {
	trigger  ports.GenerationTrigger
	accounts ports.CreditAccounts
	reader   ports.DocumentReader
}

func NewTools(trigger ports.GenerationTrigger, accounts ports.CreditAccounts, reader ports.DocumentReader) *Tools {
	return &Tools{
		trigger:  trigger,
		accounts: accounts,
		reader:   reader,
	}
}

func NewServer(name, version string, tools *Tools) *server.MCPServer {
	s := server.NewMCPServer(name, version, server.WithToolCapabilities(false))
	tools.Register(s)
	return s
}

func (t *Tools) Register(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("estimate_cost",
		mcp.WithDescription("Preview the credit cost of generating an artifact for a document."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Owner of the document.")),
		mcp.WithString("document_id", mcp.Required()),
		mcp.WithString("kind", mcp.Required(), mcp.Enum(kindNames()...)),
	), t.estimateCost)

	s.AddTool(mcp.NewTool("get_balance",
		mcp.WithDescription("Return the user's credit balance."),
		mcp.WithString("user_id", mcp.Required()),
	), t.getBalance)

	s.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List the user's documents, newest first, optionally within one study pack."),
		mcp.WithString("user_id", mcp.Required()),
		mcp.WithString("study_pack_id"),
		mcp.WithString("title", mcp.Description("Case-insensitive title fragment.")),
		mcp.WithNumber("limit", mcp.Min(1)),
	), t.listDocuments)

	s.AddTool(mcp.NewTool("get_artifact",
		mcp.WithDescription("Return a generated summary, mind map or flash card set."),
		mcp.WithString("user_id", mcp.Required()),
		mcp.WithString("document_id", mcp.Required()),
		mcp.WithString("kind", mcp.Required(), mcp.Enum(kindNames()...)),
	), t.getArtifact)

	s.AddTool(mcp.NewTool("generate_artifact",
		mcp.WithDescription("Reserve credits and schedule generation of an artifact."),
		mcp.WithString("user_id", mcp.Required()),
		mcp.WithString("document_id", mcp.Required()),
		mcp.WithString("kind", mcp.Required(), mcp.Enum(kindNames()...)),
		mcp.WithString("document_type", mcp.Description("Defaults to Study Note.")),
		mcp.WithString("academic_level", mcp.Description("Defaults to Undergraduate.")),
		mcp.WithString("subject", mcp.Description("Defaults to General.")),
	), t.generateArtifact)
}

func (t *Tools) estimateCost(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, documentID, kind, errResult := documentArgs(request)
	if errResult != nil {
		return errResult, nil
	}
	cost, err := t.trigger.Quote(ctx, userID, documentID, kind)
	if err != nil {
		return toolError("estimate_cost", err), nil
	}
	return jsonResult(map[string]any{"kind": kind, "credits": cost})
}

func (t *Tools) getBalance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	balance, err := t.accounts.Balance(ctx, userID)
	if err != nil {
		return toolError("get_balance", err), nil
	}
	return jsonResult(map[string]any{"user_id": userID, "credits": balance})
}

func (t *Tools) listDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	docs, err := t.reader.ListDocuments(ctx, userID, domain.DocumentFilter{
		StudyPackID:   request.GetString("study_pack_id", ""),
		TitleContains: request.GetString("title", ""),
		Limit:         request.GetInt("limit", 0),
	})
	if err != nil {
		return toolError("list_documents", err), nil
	}
	return jsonResult(map[string]any{"documents": docs})
}

func (t *Tools) getArtifact(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, documentID, kind, errResult := documentArgs(request)
	if errResult != nil {
		return errResult, nil
	}
	artifact, err := t.reader.GetArtifact(ctx, userID, documentID, kind)
	if err != nil {
		return toolError("get_artifact", err), nil
	}
	return jsonResult(artifact)
}

func (t *Tools) generateArtifact(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, documentID, kind, errResult := documentArgs(request)
	if errResult != nil {
		return errResult, nil
	}
	result, err := t.trigger.Trigger(ctx, domain.GenerationRequest{
		DocumentID: documentID,
		UserID:     userID,
		Kind:       kind,
		Config: domain.GenerationConfig{
			DocumentType:  request.GetString("document_type", ""),
			AcademicLevel: request.GetString("academic_level", ""),
			Subject:       request.GetString("subject", ""),
		},
	})
	if err != nil {
		return toolError("generate_artifact", err), nil
	}
	return jsonResult(result)
}

func documentArgs(request mcp.CallToolRequest) (userID, documentID string, kind domain.ArtifactKind, errResult *mcp.CallToolResult) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return "", "", "", mcp.NewToolResultError(err.Error())
	}
	documentID, err = request.RequireString("document_id")
	if err != nil {
		return "", "", "", mcp.NewToolResultError(err.Error())
	}
	rawKind, err := request.RequireString("kind")
	if err != nil {
		return "", "", "", mcp.NewToolResultError(err.Error())
	}
	kind, err = domain.ParseArtifactKind(rawKind)
	if err != nil {
		return "", "", "", mcp.NewToolResultError(err.Error())
	}
	return userID, documentID, kind, nil
}

// toolError reports caller mistakes verbatim and hides unexpected failures.
func toolError(tool string, err error) *mcp.CallToolResult {
	if domain.IsUserError(err) || domain.IsKind(err, domain.ErrTemporary) {
		return mcp.NewToolResultError(err.Error())
	}
	slog.Error("mcp_tool_failed", "tool", tool, "error", err)
	return mcp.NewToolResultError("internal error")
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func kindNames() []string {
	names := make([]string, 0, len(domain.ArtifactKinds))
	for _, kind := range domain.ArtifactKinds {
		names = append(names, string(kind))
	}
	return names
}
