package poundlens

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/poundlens/entity"
	"github.com/hazyhaar/poundlens/internal/annotate"
	"github.com/hazyhaar/poundlens/internal/kit"
)

// RegisterMCP registers the session tools on an MCP server.
func (s *Session) RegisterMCP(srv *mcp.Server) {
	s.registerEntitiesTool(srv)
	s.registerCopyTool(srv)
	s.registerSummaryTool(srv)
	s.registerPassTool(srv)
}

func (s *Session) endpoint(name string, ep kit.Endpoint) kit.Endpoint {
	return kit.Logging(s.logger, name)(ep)
}

// --- entities ---

func (s *Session) registerEntitiesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "poundlens_entities",
		Description: "List the pets found on the page with their extracted fields.",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		ents, err := s.Entities(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"variant": s.variant.Name, "entities": ents}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, s.endpoint(tool.Name, endpoint), decode)
}

// --- copy ---

type copyReq struct {
	Entity string `json:"entity"`
	Role   string `json:"role"`
}

type copyResp struct {
	Entity entity.ID     `json:"entity"`
	Role   annotate.Role `json:"role"`
	Text   string        `json:"text"`
	OK     bool          `json:"ok"`
	Error  string        `json:"error,omitempty"`
}

func (s *Session) registerCopyTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "poundlens_copy",
		Description: "Activate the copy (or lookup) control of a pet and return the text it produced.",
		InputSchema: kit.InputSchema(map[string]any{
			"entity": map[string]any{"type": "string", "description": "Entity id as listed by poundlens_entities"},
			"role":   map[string]any{"type": "string", "enum": []string{"copy", "lookup"}, "description": "Control to activate (default copy)"},
		}, []string{"entity"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*copyReq)
		return s.copy(ctx, r)
	}

	kit.RegisterMCPTool(srv, tool, s.endpoint(tool.Name, endpoint), kit.DecodeArgs[copyReq])
}

func (s *Session) copy(ctx context.Context, r *copyReq) (copyResp, error) {
	if r.Role == "" {
		r.Role = string(annotate.RoleCopy)
	}
	role, err := annotate.ParseRole(r.Role)
	if err != nil {
		return copyResp{}, err
	}
	res, err := s.Click(ctx, entity.ID(r.Entity), role)
	if err != nil {
		return copyResp{}, err
	}
	resp := copyResp{Entity: res.Entity, Role: res.Role, Text: res.Text, OK: true}
	if werr := res.Wait(ctx); werr != nil {
		resp.OK = false
		resp.Error = werr.Error()
	}
	return resp, nil
}

// --- summary ---

type summaryReq struct {
	Format string `json:"format"`
}

func (s *Session) registerSummaryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "poundlens_summary",
		Description: "Render every pet on the page as clipboard text, or as tab-separated rows with format=tsv.",
		InputSchema: kit.InputSchema(map[string]any{
			"format": map[string]any{"type": "string", "description": "Empty for the page template, tsv for rows"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*summaryReq)
		text, err := s.Summary(ctx, r.Format)
		if err != nil {
			return nil, err
		}
		return map[string]any{"text": text}, nil
	}

	kit.RegisterMCPTool(srv, tool, s.endpoint(tool.Name, endpoint), kit.DecodeArgs[summaryReq])
}

// --- pass ---

func (s *Session) registerPassTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "poundlens_pass",
		Description: "Run an annotation pass now and return its report.",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return s.Pass(ctx)
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, s.endpoint(tool.Name, endpoint), decode)
}
