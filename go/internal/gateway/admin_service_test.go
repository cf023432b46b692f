package gateway

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	"github.com/booxclash/booxclash/go/internal/knockout/questionbank"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func adminClients(env *testEnv) (start, state *connect.Client[structpb.Struct, structpb.Struct]) {
	start = connect.NewClient[structpb.Struct, structpb.Struct](env.server.Client(), env.server.URL+AdminStartTournamentProcedure)
	state = connect.NewClient[structpb.Struct, structpb.Struct](env.server.Client(), env.server.URL+AdminGetRoomStateProcedure)
	return start, state
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestAdminStartTournament(t *testing.T) {
	env := newTestEnv(t)
	start, state := adminClients(env)
	ctx := context.Background()

	resp, err := start.CallUnary(ctx, connect.NewRequest(mustStruct(t, map[string]any{
		"room_id": "room-1",
		"subject": "math",
		"level":   "easy",
		"players": []any{
			map[string]any{"id": "a", "name": "Ann"},
			map[string]any{"id": "b"},
		},
	})))
	require.NoError(t, err)
	fields := resp.Msg.GetFields()
	assert.Equal(t, "room-1", fields["room_id"].GetStringValue())
	assert.Equal(t, "intro", fields["phase"].GetStringValue())
	assert.Len(t, fields["players"].GetListValue().GetValues(), 2)

	resp, err = state.CallUnary(ctx, connect.NewRequest(mustStruct(t, map[string]any{"room_id": "room-1"})))
	require.NoError(t, err)
	assert.Equal(t, "math", resp.Msg.GetFields()["subject"].GetStringValue())

	// already running
	_, err = start.CallUnary(ctx, connect.NewRequest(mustStruct(t, map[string]any{
		"room_id": "room-1",
		"subject": "math",
		"level":   "easy",
		"players": []any{map[string]any{"id": "a"}, map[string]any{"id": "b"}},
	})))
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))
}

func TestAdminErrorCodes(t *testing.T) {
	env := newTestEnv(t)
	start, state := adminClients(env)
	ctx := context.Background()

	_, err := state.CallUnary(ctx, connect.NewRequest(mustStruct(t, map[string]any{"room_id": "ghost"})))
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	_, err = state.CallUnary(ctx, connect.NewRequest(mustStruct(t, map[string]any{})))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	// a single player cannot form a bracket
	_, err = start.CallUnary(ctx, connect.NewRequest(mustStruct(t, map[string]any{
		"room_id": "room-1",
		"subject": "math",
		"level":   "easy",
		"players": []any{map[string]any{"id": "a"}},
	})))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = start.CallUnary(ctx, connect.NewRequest(mustStruct(t, map[string]any{
		"room_id": "room-2",
		"players": []any{map[string]any{"name": "no id"}},
	})))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	// no pool for this topic
	_, err = start.CallUnary(ctx, connect.NewRequest(mustStruct(t, map[string]any{
		"room_id": "room-3",
		"subject": "history",
		"level":   "hard",
		"players": []any{map[string]any{"id": "a"}, map[string]any{"id": "b"}},
	})))
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestAdminResumeTournament(t *testing.T) {
	env := newTestEnv(t)
	start, state := adminClients(env)
	resume := connect.NewClient[structpb.Struct, structpb.Struct](env.server.Client(), env.server.URL+AdminResumeTournamentProcedure)
	ctx := context.Background()

	_, err := resume.CallUnary(ctx, connect.NewRequest(mustStruct(t, map[string]any{"room_id": "ghost"})))
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	_, err = start.CallUnary(ctx, connect.NewRequest(mustStruct(t, map[string]any{
		"room_id": "room-1",
		"subject": "history",
		"level":   "hard",
		"players": []any{map[string]any{"id": "a"}, map[string]any{"id": "b"}},
	})))
	require.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	resp, err := state.CallUnary(ctx, connect.NewRequest(mustStruct(t, map[string]any{"room_id": "room-1"})))
	require.NoError(t, err)
	assert.Equal(t, "paused", resp.Msg.GetFields()["phase"].GetStringValue())

	// still no pool
	_, err = resume.CallUnary(ctx, connect.NewRequest(mustStruct(t, map[string]any{"room_id": "room-1"})))
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	env.bank.Replace(questionbank.Catalog{
		"history": {
			"hard": {
				{Prompt: "Year of Waterloo?", Options: []string{"1815", "1805"}, CorrectOption: "1815"},
			},
		},
	})
	resp, err = resume.CallUnary(ctx, connect.NewRequest(mustStruct(t, map[string]any{"room_id": "room-1"})))
	require.NoError(t, err)
	assert.Equal(t, "intro", resp.Msg.GetFields()["phase"].GetStringValue())
	assert.Len(t, resp.Msg.GetFields()["players"].GetListValue().GetValues(), 2)

	// a running room has nothing to resume
	_, err = resume.CallUnary(ctx, connect.NewRequest(mustStruct(t, map[string]any{"room_id": "room-1"})))
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))
}
