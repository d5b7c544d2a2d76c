package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/tirelire/internal/attachment"
	"github.com/starford/tirelire/internal/envelope"
)

const maxAttachSize = 10 << 20

func (s *Server) attachToNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dataURL, err := req.RequireString("data_url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	mimeType, data, err := attachment.DecodeDataURL(dataURL)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(data) > maxAttachSize {
		return mcp.NewToolResultError(fmt.Sprintf("file too large: %d bytes (max %d)", len(data), maxAttachSize)), nil
	}

	note, err := s.notes.GetNote(ctx, int64(id))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %d", id)), nil
	}
	env := envelope.Decode(note.Content).Envelope
	env.Attachments = append(env.Attachments, attachment.Attachment{
		Name:    name,
		Type:    mimeType,
		Size:    int64(len(data)),
		DataURL: dataURL,
	})
	content, err := envelope.Encode(env)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	updated, err := s.notes.UpdateNote(ctx, note.ID, content, note.Checksum)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	added := updated.Attachments[len(updated.Attachments)-1]
	return jsonResult(map[string]string{
		"id":          added.ID,
		"url":         added.URL,
		"storagePath": added.StoragePath,
	})
}
