package worker_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsai/opsai/pkg/worker"
)

type stubWorker struct {
	name string
	caps []string
}

func (s *stubWorker) Name() string            { return s.name }
func (s *stubWorker) Capabilities() []string  { return s.caps }
func (s *stubWorker) Execute(ctx context.Context, action string, args worker.Args) worker.WorkerResult {
	if action == "ping" {
		return worker.WorkerResult{Success: true, Message: "pong"}
	}
	return worker.Unknown(action)
}

func TestRegistryDispatch(t *testing.T) {
	reg := worker.NewRegistry(&stubWorker{name: "shell", caps: []string{"ping"}})

	res := reg.Dispatch(context.Background(), "shell", "ping", nil)
	require.True(t, res.Success)
	assert.Equal(t, "pong", res.Message)
}

func TestRegistryUnknownWorker(t *testing.T) {
	reg := worker.NewRegistry()
	res := reg.Dispatch(context.Background(), "missing", "ping", nil)
	require.False(t, res.Success)
	assert.Contains(t, res.Message, "Unknown")
}

func TestRegistryUnknownAction(t *testing.T) {
	reg := worker.NewRegistry(&stubWorker{name: "shell"})
	res := reg.Dispatch(context.Background(), "shell", "nope", nil)
	require.False(t, res.Success)
	assert.Contains(t, res.Message, "Unknown action")
}

func TestRegistryCapabilitiesOrder(t *testing.T) {
	reg := worker.NewRegistry(
		&stubWorker{name: "b", caps: []string{"x"}},
		&stubWorker{name: "a", caps: []string{"y"}},
	)
	cats := reg.Capabilities()
	require.Len(t, cats, 2)
	assert.Equal(t, "b", cats[0].Worker)
	assert.Equal(t, "a", cats[1].Worker)
}

func TestArgsCoercion(t *testing.T) {
	args := worker.Args{
		"dry_run": worker.String("TRUE"),
		"files":   worker.String("a.txt"),
		"count":   worker.String("3"),
	}
	assert.True(t, args.GetBool("dry_run", false))
	list, ok := args.GetList("files")
	require.True(t, ok)
	assert.Equal(t, []string{"a.txt"}, list)
	assert.Equal(t, 3, args.GetInt("count", 0))
	assert.Equal(t, 0, args.GetInt("missing", 0))
}
