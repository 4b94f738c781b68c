package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type stubInspector struct {
	info     *asynq.QueueInfo
	archived []*asynq.TaskInfo
	err      error
	closed   bool
}

func (s *stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func (s *stubInspector) ListArchivedTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return s.archived, nil
}

func (s *stubInspector) Close() error {
	s.closed = true
	return nil
}

func TestStatsCommandJSON(t *testing.T) {
	inspector := &stubInspector{
		info:     &asynq.QueueInfo{Queue: "default", Pending: 2, Archived: 1, Processed: 10, Failed: 1},
		archived: []*asynq.TaskInfo{{ID: "t1", Type: "mail:send", LastErr: "relay refused"}},
	}
	cli := &JobsCLI{inspector: inspector}

	stdout := new(bytes.Buffer)
	code := cli.StatsCommand(context.Background(), StatsOptions{JSONOutput: true, Archived: 5, Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 0, code)

	var payload struct {
		QueueStats
		LastErrors []string `json:"last_errors"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &payload))
	require.Equal(t, 2, payload.Pending)
	require.Equal(t, 10, payload.Processed)
	require.Equal(t, []string{"relay refused"}, payload.LastErrors)

	require.NoError(t, cli.Close())
	require.True(t, inspector.closed)
}

func TestStatsCommandHuman(t *testing.T) {
	cli := &JobsCLI{inspector: &stubInspector{info: &asynq.QueueInfo{Queue: "default", Active: 3}}}

	stdout := new(bytes.Buffer)
	code := cli.StatsCommand(context.Background(), StatsOptions{Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), "queue=default pending=0 active=3")
}

func TestStatsCommandInspectorFailure(t *testing.T) {
	cli := &JobsCLI{inspector: &stubInspector{err: errors.New("redis: connection refused")}}

	stderr := new(bytes.Buffer)
	code := cli.StatsCommand(context.Background(), StatsOptions{Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "connection refused")
}

func TestNilJobsCLI(t *testing.T) {
	var cli *JobsCLI
	_, err := cli.InspectQueue(context.Background())
	require.Error(t, err)
	require.NoError(t, cli.Close())
}
