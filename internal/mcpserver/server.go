// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Mnemo tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mnemo/internal/noteservice"
)

// Server wraps the MCP server with Mnemo tools. Every tool takes a user_id
// argument: the cache is partitioned per user and tools act inside one
// partition.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all Mnemo tools registered.
func New(svc *noteservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Mnemo",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List the user's notes, newest first, optionally filtered by tag."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Owner of the notes")),
		mcp.WithString("tag", mcp.Description("Optional exact tag name to filter by")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note. The note is written locally first and synced to the remote store in the background."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Owner of the note")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
		mcp.WithString("body", mcp.Description("Main content")),
		mcp.WithString("tags", mcp.Description("Comma-separated tag names")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("rate_note",
		mcp.WithDescription("Rate a note 0-5. Out-of-range ratings are clamped."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Owner of the note")),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithNumber("rating", mcp.Required(), mcp.Description("Rating 0-5")),
	), s.rateNote)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List the user's tags with usage counts, sorted by name."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Owner of the tags")),
	), s.listTags)

	s.mcp.AddTool(mcp.NewTool("create_tag",
		mcp.WithDescription("Create a tag. Names are unique per user (case-insensitive, max 20 characters)."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Owner of the tag")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Tag name")),
		mcp.WithString("color", mcp.Description("Display color, e.g. #ff0000")),
	), s.createTag)

	s.mcp.AddTool(mcp.NewTool("sync_now",
		mcp.WithDescription("Replay queued offline writes, then rebuild the user's cache from the remote store."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User to synchronize")),
	), s.syncNow)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) session(req mcp.CallToolRequest) (noteservice.Session, error) {
	userID, err := req.RequireString("user_id")
	if err != nil {
		return noteservice.Session{}, err
	}
	return noteservice.Session{UserID: userID}, nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	notes := s.svc.ListNotes(ctx, sess, req.GetString("tag", ""))
	out, _ := json.MarshalIndent(notes, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := noteservice.NoteInput{
		Title: title,
		Body:  req.GetString("body", ""),
		Tags:  splitTags(req.GetString("tags", "")),
	}
	note, err := s.svc.CreateNote(ctx, sess, in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(note, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) rateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	noteID, err := req.RequireString("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rating, err := req.RequireFloat("rating")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.RateNote(ctx, sess, noteID, int(rating))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(note, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tags := s.svc.Tags(ctx, sess)
	out, _ := json.MarshalIndent(tags, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) createTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tag, err := s.svc.CreateTag(ctx, sess, noteservice.TagInput{
		Name:  name,
		Color: req.GetString("color", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(tag, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) syncNow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.SyncNow(ctx, sess); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("sync completed"), nil
}

func splitTags(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
