package mcp

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/crowdsim/internal/config"
)

func setupTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	t.Setenv("HOME", filepath.Join(root, "home"))

	settings := config.Default()
	settings.Simulation.AgentCount = 20
	settings.Simulation.Width = 200
	settings.Simulation.Height = 200
	settings.Simulation.ContactDistance = 15

	server, err := NewServer(&Config{
		Name:     "test-server",
		Version:  "v1.0.0",
		Root:     root,
		Settings: settings,
		Logger:   slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })
	return server, root
}

func runOnce(t *testing.T, s *Server, seed int64) CrowdsimRunOutput {
	t.Helper()
	result, out, err := s.handleCrowdsimRun(context.Background(), &sdk.CallToolRequest{}, CrowdsimRunInput{Seed: seed})
	require.NoError(t, err)
	assert.Nil(t, result, "SDK populates the result from the output")
	return out
}

func TestNewServer_CreatesDatabase(t *testing.T) {
	s, root := setupTestServer(t)
	assert.NotNil(t, s.server)
	assert.FileExists(t, filepath.Join(root, ".crowdsim", "crowdsim.db"))
	assert.FileExists(t, filepath.Join(root, ".crowdsim", "audit.jsonl"))
}

func TestNewServer_RejectsInvalidSettings(t *testing.T) {
	settings := config.Default()
	settings.Simulation.Beta = 2
	_, err := NewServer(&Config{Name: "x", Version: "v0", Root: t.TempDir(), Settings: settings})
	assert.ErrorContains(t, err, "beta")
}

func TestHandleCrowdsimRun(t *testing.T) {
	s, _ := setupTestServer(t)
	ctx := context.Background()

	out := runOnce(t, s, 7)
	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, int64(7), out.Seed)
	assert.True(t, out.Converged)
	assert.Equal(t, 20, out.Tally.Total())
	assert.Zero(t, out.Failures)
	assert.Contains(t, out.Message, "converged")

	run, err := s.store.GetRun(ctx, out.RunID)
	require.NoError(t, err)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, out.Ticks, run.Summary.Ticks)
	assert.Equal(t, out.TotalContacts, run.Summary.TotalContacts)

	users, err := s.store.ListUsers(ctx, out.RunID)
	require.NoError(t, err)
	assert.Len(t, users, 20)
}

func TestHandleCrowdsimRun_SameSeedSameOutcome(t *testing.T) {
	s, _ := setupTestServer(t)
	a := runOnce(t, s, 11)
	b := runOnce(t, s, 11)
	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, a.Ticks, b.Ticks)
	assert.Equal(t, a.Tally, b.Tally)
	assert.Equal(t, a.TotalContacts, b.TotalContacts)
}

func TestHandleCrowdsimRun_Overrides(t *testing.T) {
	s, _ := setupTestServer(t)
	zero := 0.0
	_, out, err := s.handleCrowdsimRun(context.Background(), &sdk.CallToolRequest{}, CrowdsimRunInput{
		Simulation: SimulationOverrides{Agents: 5, Beta: &zero},
		Seed:       3,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, out.Tally.Total())

	run, err := s.store.GetRun(context.Background(), out.RunID)
	require.NoError(t, err)
	assert.Equal(t, 5, run.AgentCount)
	assert.Zero(t, run.Beta)
	assert.Equal(t, 20, s.cfg.Simulation.AgentCount, "server settings are not modified")
}

func TestHandleCrowdsimRun_InvalidInput(t *testing.T) {
	s, _ := setupTestServer(t)
	ctx := context.Background()
	bad := 1.5
	x := 50.0

	tests := []struct {
		name string
		in   CrowdsimRunInput
		want string
	}{
		{"beta out of range", CrowdsimRunInput{Simulation: SimulationOverrides{Beta: &bad}}, "beta"},
		{"half an attractor", CrowdsimRunInput{AttractorX: &x}, "together"},
		{"output outside data dirs", CrowdsimRunInput{ChartPath: filepath.Join(t.TempDir(), "sir.png")}, "path rejected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.handleCrowdsimRun(ctx, &sdk.CallToolRequest{}, tt.in)
			assert.ErrorContains(t, err, tt.want)
		})
	}

	_, out, err := s.handleCrowdsimRuns(ctx, &sdk.CallToolRequest{}, CrowdsimRunsInput{})
	require.NoError(t, err)
	assert.Zero(t, out.Count, "rejected runs are not recorded")
}

func TestHandleCrowdsimRun_WritesOutputs(t *testing.T) {
	s, root := setupTestServer(t)
	dir := filepath.Join(root, ".crowdsim", "out")
	x, y := 100.0, 100.0

	_, out, err := s.handleCrowdsimRun(context.Background(), &sdk.CallToolRequest{}, CrowdsimRunInput{
		Seed:        5,
		AttractorX:  &x,
		AttractorY:  &y,
		ChartPath:   filepath.Join(dir, "sir.png"),
		GeoJSONPath: filepath.Join(dir, "final.geojson"),
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sir.png"), out.Outputs["chart"])
	assert.FileExists(t, filepath.Join(dir, "sir.png"))
	assert.FileExists(t, filepath.Join(dir, "final.geojson"))

	run, err := s.store.GetRun(context.Background(), out.RunID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, run.AttractorX)
	assert.Equal(t, 100.0, run.AttractorY)
}

func TestHandleCrowdsimBatch(t *testing.T) {
	s, _ := setupTestServer(t)
	ctx := context.Background()

	_, out, err := s.handleCrowdsimBatch(ctx, &sdk.CallToolRequest{}, CrowdsimBatchInput{Runs: 3, Concurrency: 2})
	require.NoError(t, err)
	require.Len(t, out.Runs, 3)
	for i, r := range out.Runs {
		assert.Equal(t, int64(i+1), r.Seed)
		assert.True(t, r.Converged)
	}
	assert.Equal(t, 3, out.Summary.Runs)
	assert.True(t, out.Summary.AllConverged)

	_, runs, err := s.handleCrowdsimRuns(ctx, &sdk.CallToolRequest{}, CrowdsimRunsInput{})
	require.NoError(t, err)
	assert.Zero(t, runs.Count, "batch runs are not recorded")

	_, _, err = s.handleCrowdsimBatch(ctx, &sdk.CallToolRequest{}, CrowdsimBatchInput{Runs: 1})
	assert.ErrorContains(t, err, "rate limit exceeded")
}

func TestHandleCrowdsimBatch_TooManySeeds(t *testing.T) {
	s, _ := setupTestServer(t)
	_, _, err := s.handleCrowdsimBatch(context.Background(), &sdk.CallToolRequest{}, CrowdsimBatchInput{Runs: maxBatchRuns + 1})
	assert.ErrorContains(t, err, "exceeds")
}

func TestHandleCrowdsimRuns(t *testing.T) {
	s, _ := setupTestServer(t)
	ctx := context.Background()

	first := runOnce(t, s, 1)
	second := runOnce(t, s, 2)

	_, out, err := s.handleCrowdsimRuns(ctx, &sdk.CallToolRequest{}, CrowdsimRunsInput{})
	require.NoError(t, err)
	require.Equal(t, 2, out.Count)
	assert.Equal(t, second.RunID, out.Runs[0].ID, "newest first")
	assert.Equal(t, first.RunID, out.Runs[1].ID)
	assert.True(t, out.Runs[0].Finished)

	_, out, err = s.handleCrowdsimRuns(ctx, &sdk.CallToolRequest{}, CrowdsimRunsInput{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Count)

	_, out, err = s.handleCrowdsimRuns(ctx, &sdk.CallToolRequest{}, CrowdsimRunsInput{RunID: first.RunID})
	require.NoError(t, err)
	require.Equal(t, 1, out.Count)
	assert.Equal(t, first.Ticks, out.Runs[0].Ticks)

	_, _, err = s.handleCrowdsimRuns(ctx, &sdk.CallToolRequest{}, CrowdsimRunsInput{RunID: "missing"})
	assert.ErrorContains(t, err, "not found")
}

func TestHandleCrowdsimContacts(t *testing.T) {
	s, root := setupTestServer(t)
	ctx := context.Background()
	run := runOnce(t, s, 7)
	require.Greater(t, run.TotalContacts, 1, "seed 7 should produce contacts")

	_, out, err := s.handleCrowdsimContacts(ctx, &sdk.CallToolRequest{}, CrowdsimContactsInput{RunID: run.RunID})
	require.NoError(t, err)
	assert.Equal(t, run.TotalContacts, out.Count)
	assert.Len(t, out.Contacts, run.TotalContacts)
	for i, c := range out.Contacts {
		assert.Equal(t, i+1, c.Seq)
		assert.NotEqual(t, c.Source, c.Target)
	}

	_, out, err = s.handleCrowdsimContacts(ctx, &sdk.CallToolRequest{}, CrowdsimContactsInput{RunID: run.RunID, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, out.Contacts, 1)
	assert.True(t, out.Truncated)

	path := filepath.Join(root, ".crowdsim", "contacts.jsonl")
	_, out, err = s.handleCrowdsimContacts(ctx, &sdk.CallToolRequest{}, CrowdsimContactsInput{RunID: run.RunID, OutputPath: path})
	require.NoError(t, err)
	assert.Equal(t, path, out.Path)
	assert.Equal(t, run.TotalContacts, countLines(t, path))

	_, _, err = s.handleCrowdsimContacts(ctx, &sdk.CallToolRequest{}, CrowdsimContactsInput{})
	assert.ErrorContains(t, err, "run_id is required")
	_, _, err = s.handleCrowdsimContacts(ctx, &sdk.CallToolRequest{}, CrowdsimContactsInput{RunID: "missing"})
	assert.ErrorContains(t, err, "not found")
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
	}
	return n
}

func TestHandleCrowdsimGraph(t *testing.T) {
	s, _ := setupTestServer(t)
	ctx := context.Background()
	run := runOnce(t, s, 7)

	_, out, err := s.handleCrowdsimGraph(ctx, &sdk.CallToolRequest{}, CrowdsimGraphInput{RunID: run.RunID})
	require.NoError(t, err)
	assert.Equal(t, "json", out.Format)
	assert.Equal(t, 20, out.NodeCount)
	assert.Equal(t, run.TotalContacts, out.EdgeCount)

	_, out, err = s.handleCrowdsimGraph(ctx, &sdk.CallToolRequest{}, CrowdsimGraphInput{RunID: run.RunID, Format: "dot"})
	require.NoError(t, err)
	dot, ok := out.Graph.(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(dot, "digraph contacts"))
	assert.Equal(t, 20, out.NodeCount)
	assert.Equal(t, run.TotalContacts, out.EdgeCount)

	_, _, err = s.handleCrowdsimGraph(ctx, &sdk.CallToolRequest{}, CrowdsimGraphInput{RunID: run.RunID, Format: "html"})
	assert.ErrorContains(t, err, "unsupported format")
	_, _, err = s.handleCrowdsimGraph(ctx, &sdk.CallToolRequest{}, CrowdsimGraphInput{RunID: "missing"})
	assert.Error(t, err)
}

func TestHandleCrowdsimBackupRestore(t *testing.T) {
	s, root := setupTestServer(t)
	ctx := context.Background()
	run := runOnce(t, s, 7)

	path := filepath.Join(root, ".crowdsim", "backups", "manual.json.gz")
	_, out, err := s.handleCrowdsimBackup(ctx, &sdk.CallToolRequest{}, CrowdsimBackupInput{OutputPath: path})
	require.NoError(t, err)
	assert.Equal(t, path, out.Path)
	assert.Equal(t, 1, out.RunCount)
	assert.Equal(t, run.TotalContacts, out.ContactCount)
	assert.Positive(t, out.SizeBytes)

	_, restored, err := s.handleCrowdsimRestore(ctx, &sdk.CallToolRequest{}, CrowdsimRestoreInput{InputPath: path})
	require.NoError(t, err)
	assert.Zero(t, restored.RunsRestored)
	assert.Equal(t, 1, restored.RunsSkipped, "existing runs are skipped")

	_, _, err = s.handleCrowdsimBackup(ctx, &sdk.CallToolRequest{}, CrowdsimBackupInput{OutputPath: filepath.Join(t.TempDir(), "b.json.gz")})
	assert.ErrorContains(t, err, "path rejected")
	_, _, err = s.handleCrowdsimRestore(ctx, &sdk.CallToolRequest{}, CrowdsimRestoreInput{})
	assert.ErrorContains(t, err, "input_path is required")
}

func TestHandleCrowdsimBackup_DefaultPath(t *testing.T) {
	s, root := setupTestServer(t)
	runOnce(t, s, 7)

	_, out, err := s.handleCrowdsimBackup(context.Background(), &sdk.CallToolRequest{}, CrowdsimBackupInput{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "home", ".crowdsim", "backups"), filepath.Dir(out.Path))
	assert.FileExists(t, out.Path)
}

func TestRecentRunsResource(t *testing.T) {
	s, _ := setupTestServer(t)
	ctx := context.Background()

	res, err := s.handleRecentRunsResource(ctx, &sdk.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Contains(t, res.Contents[0].Text, "No runs recorded yet")

	run := runOnce(t, s, 7)
	res, err = s.handleRecentRunsResource(ctx, &sdk.ReadResourceRequest{})
	require.NoError(t, err)
	assert.Contains(t, res.Contents[0].Text, run.RunID)
}

func TestRunResource(t *testing.T) {
	s, _ := setupTestServer(t)
	ctx := context.Background()
	run := runOnce(t, s, 7)

	uri := runURIPrefix + run.RunID
	res, err := s.handleRunResource(ctx, &sdk.ReadResourceRequest{Params: &sdk.ReadResourceParams{URI: uri}})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, "application/json", res.Contents[0].MIMEType)
	assert.Contains(t, res.Contents[0].Text, run.RunID)

	_, err = s.handleRunResource(ctx, &sdk.ReadResourceRequest{Params: &sdk.ReadResourceParams{URI: runURIPrefix + "missing"}})
	assert.ErrorContains(t, err, "not found")
}
