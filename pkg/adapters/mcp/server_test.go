package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/registry"
	"github.com/aretw0/parley/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firstRand struct{}

func (firstRand) IntN(int) int { return 0 }

func newServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	factory := session.NewFactory(registry.WithSkills(nil), parley.WithRand(firstRand{}))
	return NewServer(session.NewManager(memory.NewStore(), factory), opts...)
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func TestServer_Conversation(t *testing.T) {
	ctx := context.Background()
	s := newServer(t)

	start, err := s.handleStart(ctx, call(nil), SessionArgs{})
	require.NoError(t, err)
	require.NotEmpty(t, start.SessionID)
	assert.Equal(t, "What can I do for you?", start.Response.Text)

	res, err := s.handleAnswer(ctx, call(nil), AnswerArgs{SessionID: start.SessionID, Query: "what is 9 minus"})
	require.NoError(t, err)
	assert.Equal(t, domain.EndingPrompt, res.Response.Ending)

	res, err = s.handleAnswer(ctx, call(nil), AnswerArgs{SessionID: start.SessionID, Query: "4"})
	require.NoError(t, err)
	assert.Equal(t, "5", res.Response.Text)

	res, err = s.handleRunRule(ctx, call(nil), RuleArgs{SessionID: start.SessionID, Rule: "teleport"})
	require.NoError(t, err, "the apology is a result, not a tool error")
	assert.Equal(t, domain.DefaultApology, res.Response.Text)
	assert.NotEmpty(t, res.Error)

	res, err = s.handleEnd(ctx, call(nil), SessionArgs{SessionID: start.SessionID})
	require.NoError(t, err)
	assert.Equal(t, "Goodbye.", res.Response.Text)

	_, err = s.handleAnswer(ctx, call(nil), AnswerArgs{SessionID: start.SessionID, Query: "hello"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestServer_StartWithID(t *testing.T) {
	ctx := context.Background()
	s := newServer(t)

	res, err := s.handleStart(ctx, call(nil), SessionArgs{SessionID: "agent-1"})
	require.NoError(t, err)
	assert.Equal(t, "agent-1", res.SessionID)
	assert.Equal(t, "What can I do for you?", res.Response.Text)

	_, err = s.handleAnswer(ctx, call(nil), AnswerArgs{SessionID: "agent-1", Query: "what is 2 plus 2"})
	assert.NoError(t, err)
}

func TestServer_StructuredHandler(t *testing.T) {
	ctx := context.Background()
	s := newServer(t)
	start, err := s.handleStart(ctx, call(nil), SessionArgs{})
	require.NoError(t, err)

	handler := mcp.NewStructuredToolHandler(s.handleAnswer)
	result, err := handler(ctx, call(map[string]any{"session_id": start.SessionID, "query": "what is 6 times 7"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	turn, ok := result.StructuredContent.(TurnResult)
	require.True(t, ok)
	assert.Equal(t, "42", turn.Response.Text)

	result, err = handler(ctx, call(map[string]any{"session_id": "missing", "query": "hi"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestServer_InputLimit(t *testing.T) {
	ctx := context.Background()
	s := newServer(t, WithInputLimit(4))
	start, err := s.handleStart(ctx, call(nil), SessionArgs{})
	require.NoError(t, err)

	_, err = s.handleAnswer(ctx, call(nil), AnswerArgs{SessionID: start.SessionID, Query: "what is 2 plus 2"})
	assert.Error(t, err)
}

func TestServer_ResetAndDomains(t *testing.T) {
	ctx := context.Background()
	s := newServer(t)
	start, err := s.handleStart(ctx, call(nil), SessionArgs{})
	require.NoError(t, err)

	result, err := s.handleReset(ctx, call(map[string]any{"session_id": start.SessionID}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	result, err = s.handleReset(ctx, call(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	domains := s.domains()
	require.Len(t, domains, 4)
	assert.Equal(t, "common", domains[0].Name)
	assert.Contains(t, domains[1].Rules, "ComputeExpression")

	_, err = json.Marshal(domains)
	assert.NoError(t, err)
}
