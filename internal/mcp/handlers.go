package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/crowdsim/internal/backup"
	"github.com/nvandessel/crowdsim/internal/config"
	"github.com/nvandessel/crowdsim/internal/constants"
	"github.com/nvandessel/crowdsim/internal/driver"
	"github.com/nvandessel/crowdsim/internal/epidemic"
	"github.com/nvandessel/crowdsim/internal/pathutil"
	"github.com/nvandessel/crowdsim/internal/ratelimit"
	"github.com/nvandessel/crowdsim/internal/store"
	"github.com/nvandessel/crowdsim/internal/visualization"
)

const (
	defaultRunsLimit     = 20
	defaultContactsLimit = 200
	maxBatchRuns         = 1000
	recentRunsURI        = "crowdsim://runs/recent"
	runURIPrefix         = "crowdsim://runs/"
)

// registerTools registers all crowdsim MCP tools with the server.
func (s *Server) registerTools() error {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "crowdsim_run",
		Description: "Run one contagion simulation until every agent reaches the attractor, and record it",
	}, s.handleCrowdsimRun)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "crowdsim_batch",
		Description: "Run the simulation once per seed and summarize the outcomes",
	}, s.handleCrowdsimBatch)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "crowdsim_runs",
		Description: "List recorded runs, newest first, or show one run",
	}, s.handleCrowdsimRuns)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "crowdsim_contacts",
		Description: "List the contacts of a recorded run or export them as JSONL",
	}, s.handleCrowdsimContacts)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "crowdsim_graph",
		Description: "Render the contact graph of a run in DOT (Graphviz) or JSON format",
	}, s.handleCrowdsimGraph)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "crowdsim_backup",
		Description: "Archive recorded runs with their users and contacts to a backup file",
	}, s.handleCrowdsimBackup)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "crowdsim_restore",
		Description: "Import runs from a backup file, skipping runs that already exist",
	}, s.handleCrowdsimRestore)

	return nil
}

// registerResources registers the run resources.
func (s *Server) registerResources() error {
	s.server.AddResource(&sdk.Resource{
		URI:         recentRunsURI,
		Name:        "crowdsim-recent-runs",
		Description: "The most recent simulation runs and their outcomes.",
		MIMEType:    "text/markdown",
	}, s.handleRecentRunsResource)

	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: runURIPrefix + "{id}",
		Name:        "crowdsim-run",
		Description: "A single recorded run as JSON.",
		MIMEType:    "application/json",
	}, s.handleRunResource)

	return nil
}

func (s *Server) handleRecentRunsResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	runs, err := s.store.ListRuns(ctx, defaultRunsLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("# Recent Runs\n\n")
	if len(runs) == 0 {
		sb.WriteString("No runs recorded yet. Start one with `crowdsim_run`.\n")
	} else {
		sb.WriteString("| run | agents | beta | ticks | S | I | R | contacts |\n")
		sb.WriteString("|---|---|---|---|---|---|---|---|\n")
		for _, r := range runs {
			ticks := "running"
			if r.FinishedAt != nil {
				ticks = fmt.Sprintf("%d", r.Summary.Ticks)
			}
			fmt.Fprintf(&sb, "| %s | %d | %.2f | %s | %d | %d | %d | %d |\n",
				r.ID, r.AgentCount, r.Beta, ticks,
				r.Summary.Tally.Susceptible, r.Summary.Tally.Infected, r.Summary.Tally.Recovered,
				r.Summary.TotalContacts)
		}
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{{
			URI:      recentRunsURI,
			MIMEType: "text/markdown",
			Text:     sb.String(),
		}},
	}, nil
}

func (s *Server) handleRunResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	id := strings.TrimPrefix(uri, runURIPrefix)
	if id == "" || id == uri {
		return nil, fmt.Errorf("invalid run URI: %s", uri)
	}

	run, err := s.store.GetRun(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", id, err)
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return nil, err
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// simulationConfig copies the server configuration and applies over.
// Render outputs are cleared so a tool call only writes what it asks for.
func (s *Server) simulationConfig(over SimulationOverrides) (*config.CrowdsimConfig, error) {
	c := *s.cfg
	c.Render.GIFPath = ""
	c.Render.ChartPath = ""
	c.Render.GeoJSONPath = ""
	c.Simulation.TickInterval = 0

	if over.Agents != 0 {
		c.Simulation.AgentCount = over.Agents
	}
	if over.Beta != nil {
		c.Simulation.Beta = *over.Beta
	}
	if over.Recovery != nil {
		c.Simulation.RecoveryProbability = *over.Recovery
	}
	if over.ContactDistance != 0 {
		c.Simulation.ContactDistance = over.ContactDistance
	}
	if over.MaxTicks != 0 {
		c.Simulation.MaxTicks = over.MaxTicks
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulation settings: %w", err)
	}
	return &c, nil
}

// checkOutputPath rejects caller-supplied paths outside the data directories.
func (s *Server) checkOutputPath(path string) error {
	if path == "" {
		return nil
	}
	allowed, err := pathutil.AllowedOutputDirs(s.root)
	if err != nil {
		return fmt.Errorf("failed to determine allowed directories: %w", err)
	}
	if err := pathutil.ValidatePath(path, allowed); err != nil {
		return fmt.Errorf("path rejected: %w", err)
	}
	return nil
}

func overrideParams(over SimulationOverrides) map[string]interface{} {
	return map[string]interface{}{
		"agents":           over.Agents,
		"beta":             over.Beta,
		"recovery":         over.Recovery,
		"contact_distance": over.ContactDistance,
		"max_ticks":        over.MaxTicks,
	}
}

// handleCrowdsimRun implements the crowdsim_run tool.
func (s *Server) handleCrowdsimRun(ctx context.Context, req *sdk.CallToolRequest, args CrowdsimRunInput) (_ *sdk.CallToolResult, out CrowdsimRunOutput, retErr error) {
	start := time.Now()
	defer func() {
		params := overrideParams(args.Simulation)
		params["seed"] = args.Seed
		params["gif_path"] = args.GIFPath
		params["chart_path"] = args.ChartPath
		params["geojson_path"] = args.GeoJSONPath
		if args.AttractorX != nil || args.AttractorY != nil {
			params["attractor"] = true
		}
		s.auditTool("crowdsim_run", start, retErr, out.RunID, sanitizeToolParams(params))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "crowdsim_run"); err != nil {
		return nil, CrowdsimRunOutput{}, err
	}

	cfg, err := s.simulationConfig(args.Simulation)
	if err != nil {
		return nil, CrowdsimRunOutput{}, err
	}
	cfg.Simulation.Seed = args.Seed
	if (args.AttractorX == nil) != (args.AttractorY == nil) {
		return nil, CrowdsimRunOutput{}, fmt.Errorf("attractor_x and attractor_y must be given together")
	}
	if args.AttractorX != nil {
		cfg.Simulation.Attractor = &config.PointConfig{X: *args.AttractorX, Y: *args.AttractorY}
	}
	for _, p := range []string{args.GIFPath, args.ChartPath, args.GeoJSONPath} {
		if err := s.checkOutputPath(p); err != nil {
			return nil, CrowdsimRunOutput{}, err
		}
	}
	cfg.Render.GIFPath = args.GIFPath
	cfg.Render.ChartPath = args.ChartPath
	cfg.Render.GeoJSONPath = args.GeoJSONPath

	outcome, err := driver.Simulate(ctx, cfg, driver.Deps{
		Store:    s.store,
		Logger:   s.logger,
		TraceDir: filepath.Join(s.root, constants.DirName),
	})
	if outcome == nil {
		return nil, CrowdsimRunOutput{}, fmt.Errorf("run failed: %w", err)
	}
	if err != nil && !errors.Is(err, driver.ErrMaxTicks) {
		return nil, CrowdsimRunOutput{RunID: outcome.RunID}, fmt.Errorf("run %s failed: %w", outcome.RunID, err)
	}

	r := outcome.Report
	msg := fmt.Sprintf("Run %s converged after %d ticks: %d contacts, S=%d I=%d R=%d",
		outcome.RunID, r.Ticks, r.TotalContacts, r.Tally.Susceptible, r.Tally.Infected, r.Tally.Recovered)
	if !r.Converged {
		msg = fmt.Sprintf("Run %s stopped after %d ticks without converging: %d contacts, S=%d I=%d R=%d",
			outcome.RunID, r.Ticks, r.TotalContacts, r.Tally.Susceptible, r.Tally.Infected, r.Tally.Recovered)
	}

	return nil, CrowdsimRunOutput{
		RunID:         outcome.RunID,
		Seed:          outcome.Seed,
		Ticks:         r.Ticks,
		Converged:     r.Converged,
		Tally:         r.Tally,
		TotalContacts: r.TotalContacts,
		Failures:      outcome.Failures,
		Outputs:       outcome.Outputs,
		Message:       msg,
	}, nil
}

// handleCrowdsimBatch implements the crowdsim_batch tool. Batch runs are
// not recorded in the store.
func (s *Server) handleCrowdsimBatch(ctx context.Context, req *sdk.CallToolRequest, args CrowdsimBatchInput) (_ *sdk.CallToolResult, _ CrowdsimBatchOutput, retErr error) {
	start := time.Now()
	defer func() {
		params := overrideParams(args.Simulation)
		params["runs"] = args.Runs
		params["concurrency"] = args.Concurrency
		params["seeds"] = args.Seeds
		s.auditTool("crowdsim_batch", start, retErr, "", sanitizeToolParams(params))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "crowdsim_batch"); err != nil {
		return nil, CrowdsimBatchOutput{}, err
	}

	cfg, err := s.simulationConfig(args.Simulation)
	if err != nil {
		return nil, CrowdsimBatchOutput{}, err
	}

	seeds := args.Seeds
	if len(seeds) == 0 {
		n := args.Runs
		if n <= 0 {
			n = constants.DefaultBatchRuns
		}
		seeds = make([]int64, n)
		for i := range seeds {
			seeds[i] = int64(i + 1)
		}
	}
	if len(seeds) > maxBatchRuns {
		return nil, CrowdsimBatchOutput{}, fmt.Errorf("batch of %d runs exceeds the limit of %d", len(seeds), maxBatchRuns)
	}
	concurrency := args.Concurrency
	if concurrency <= 0 {
		concurrency = constants.DefaultBatchConcurrency
	}

	results, err := driver.Batch(ctx, seeds, func(seed int64) (*epidemic.Engine, error) {
		return driver.NewEngine(cfg, seed)
	}, concurrency, driver.Options{MaxTicks: cfg.Simulation.MaxTicks})
	if err != nil {
		return nil, CrowdsimBatchOutput{}, fmt.Errorf("batch failed: %w", err)
	}

	items := make([]BatchRunItem, len(results))
	for i, r := range results {
		items[i] = BatchRunItem{
			Seed:          r.Seed,
			Ticks:         r.Report.Ticks,
			Converged:     r.Report.Converged,
			Infected:      r.Report.Tally.Infected,
			Recovered:     r.Report.Tally.Recovered,
			TotalContacts: r.Report.TotalContacts,
		}
	}
	return nil, CrowdsimBatchOutput{
		Summary: driver.Summarize(results),
		Runs:    items,
	}, nil
}

// handleCrowdsimRuns implements the crowdsim_runs tool.
func (s *Server) handleCrowdsimRuns(ctx context.Context, req *sdk.CallToolRequest, args CrowdsimRunsInput) (_ *sdk.CallToolResult, _ CrowdsimRunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("crowdsim_runs", start, retErr, args.RunID, sanitizeToolParams(map[string]interface{}{
			"limit": args.Limit,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "crowdsim_runs"); err != nil {
		return nil, CrowdsimRunsOutput{}, err
	}

	if args.RunID != "" {
		run, err := s.store.GetRun(ctx, args.RunID)
		if err != nil {
			return nil, CrowdsimRunsOutput{}, fmt.Errorf("run %s: %w", args.RunID, err)
		}
		return nil, CrowdsimRunsOutput{Runs: []RunListItem{runListItem(*run)}, Count: 1}, nil
	}

	limit := args.Limit
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	runs, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, CrowdsimRunsOutput{}, fmt.Errorf("failed to list runs: %w", err)
	}
	items := make([]RunListItem, len(runs))
	for i, r := range runs {
		items[i] = runListItem(r)
	}
	return nil, CrowdsimRunsOutput{Runs: items, Count: len(items)}, nil
}

func runListItem(r store.Run) RunListItem {
	return RunListItem{
		ID:            r.ID,
		CreatedAt:     r.CreatedAt,
		Seed:          r.Seed,
		Agents:        r.AgentCount,
		Beta:          r.Beta,
		Finished:      r.FinishedAt != nil,
		Ticks:         r.Summary.Ticks,
		Converged:     r.Summary.Converged,
		Tally:         r.Summary.Tally,
		TotalContacts: r.Summary.TotalContacts,
	}
}

// handleCrowdsimContacts implements the crowdsim_contacts tool.
func (s *Server) handleCrowdsimContacts(ctx context.Context, req *sdk.CallToolRequest, args CrowdsimContactsInput) (_ *sdk.CallToolResult, _ CrowdsimContactsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("crowdsim_contacts", start, retErr, args.RunID, sanitizeToolParams(map[string]interface{}{
			"limit":       args.Limit,
			"output_path": args.OutputPath,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "crowdsim_contacts"); err != nil {
		return nil, CrowdsimContactsOutput{}, err
	}
	if args.RunID == "" {
		return nil, CrowdsimContactsOutput{}, fmt.Errorf("run_id is required")
	}
	if _, err := s.store.GetRun(ctx, args.RunID); err != nil {
		return nil, CrowdsimContactsOutput{}, fmt.Errorf("run %s: %w", args.RunID, err)
	}

	if args.OutputPath != "" {
		if err := s.checkOutputPath(args.OutputPath); err != nil {
			return nil, CrowdsimContactsOutput{}, err
		}
		n, err := store.ExportContactsFile(ctx, s.store, args.RunID, args.OutputPath)
		if err != nil {
			return nil, CrowdsimContactsOutput{}, fmt.Errorf("export failed: %w", err)
		}
		return nil, CrowdsimContactsOutput{Count: n, Path: args.OutputPath}, nil
	}

	contacts, err := s.store.ListContacts(ctx, args.RunID)
	if err != nil {
		return nil, CrowdsimContactsOutput{}, fmt.Errorf("failed to list contacts: %w", err)
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultContactsLimit
	}
	out := CrowdsimContactsOutput{Count: len(contacts)}
	if len(contacts) > limit {
		contacts = contacts[:limit]
		out.Truncated = true
	}
	out.Contacts = make([]ContactItem, len(contacts))
	for i, c := range contacts {
		out.Contacts[i] = ContactItem{
			Seq:          c.Seq,
			Source:       c.Source,
			Target:       c.Target,
			Tick:         c.Tick,
			Contaminated: c.Contaminated,
		}
	}
	return nil, out, nil
}

// handleCrowdsimGraph implements the crowdsim_graph tool.
func (s *Server) handleCrowdsimGraph(ctx context.Context, req *sdk.CallToolRequest, args CrowdsimGraphInput) (_ *sdk.CallToolResult, _ CrowdsimGraphOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("crowdsim_graph", start, retErr, args.RunID, sanitizeToolParams(map[string]interface{}{
			"format": args.Format,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "crowdsim_graph"); err != nil {
		return nil, CrowdsimGraphOutput{}, err
	}
	if args.RunID == "" {
		return nil, CrowdsimGraphOutput{}, fmt.Errorf("run_id is required")
	}

	format := args.Format
	if format == "" {
		format = string(visualization.FormatJSON)
	}

	switch visualization.Format(format) {
	case visualization.FormatDOT:
		dot, err := visualization.RenderDOT(ctx, s.store, args.RunID)
		if err != nil {
			return nil, CrowdsimGraphOutput{}, fmt.Errorf("render DOT: %w", err)
		}
		users, err := s.store.ListUsers(ctx, args.RunID)
		if err != nil {
			return nil, CrowdsimGraphOutput{}, fmt.Errorf("list users: %w", err)
		}
		contacts, err := s.store.ListContacts(ctx, args.RunID)
		if err != nil {
			return nil, CrowdsimGraphOutput{}, fmt.Errorf("list contacts: %w", err)
		}
		return nil, CrowdsimGraphOutput{
			Format:    "dot",
			Graph:     dot,
			NodeCount: len(users),
			EdgeCount: len(contacts),
		}, nil

	case visualization.FormatJSON:
		result, err := visualization.RenderJSON(ctx, s.store, args.RunID)
		if err != nil {
			return nil, CrowdsimGraphOutput{}, fmt.Errorf("render JSON: %w", err)
		}
		nodeCount, _ := result["node_count"].(int)
		edgeCount, _ := result["edge_count"].(int)
		return nil, CrowdsimGraphOutput{
			Format:    "json",
			Graph:     result,
			NodeCount: nodeCount,
			EdgeCount: edgeCount,
		}, nil

	default:
		return nil, CrowdsimGraphOutput{}, fmt.Errorf("unsupported format %q (use 'dot' or 'json')", format)
	}
}

// handleCrowdsimBackup implements the crowdsim_backup tool.
func (s *Server) handleCrowdsimBackup(ctx context.Context, req *sdk.CallToolRequest, args CrowdsimBackupInput) (_ *sdk.CallToolResult, _ CrowdsimBackupOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("crowdsim_backup", start, retErr, "", sanitizeToolParams(map[string]interface{}{
			"output_path": args.OutputPath,
			"run_ids":     args.RunIDs,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "crowdsim_backup"); err != nil {
		return nil, CrowdsimBackupOutput{}, err
	}

	outputPath := args.OutputPath
	if outputPath == "" {
		dir, err := backup.DefaultBackupDir()
		if err != nil {
			return nil, CrowdsimBackupOutput{}, fmt.Errorf("failed to get backup directory: %w", err)
		}
		outputPath = backup.GenerateBackupPath(dir)
	} else if err := s.checkOutputPath(outputPath); err != nil {
		return nil, CrowdsimBackupOutput{}, err
	}

	archive, err := backup.Backup(ctx, s.store, outputPath, args.RunIDs...)
	if err != nil {
		return nil, CrowdsimBackupOutput{}, fmt.Errorf("backup failed: %w", err)
	}

	out := CrowdsimBackupOutput{
		Path:         outputPath,
		RunCount:     len(archive.Runs),
		ContactCount: archive.ContactCount(),
	}
	deleted, err := backup.ApplyRetention(filepath.Dir(outputPath), s.retentionPolicy)
	if err != nil {
		s.logger.Warn("failed to apply backup retention", "error", err)
	}
	out.Pruned = len(deleted)
	if info, err := os.Stat(outputPath); err == nil {
		out.SizeBytes = info.Size()
	}
	out.Message = fmt.Sprintf("Backup created: %d runs, %d contacts → %s", out.RunCount, out.ContactCount, outputPath)
	return nil, out, nil
}

// handleCrowdsimRestore implements the crowdsim_restore tool.
func (s *Server) handleCrowdsimRestore(ctx context.Context, req *sdk.CallToolRequest, args CrowdsimRestoreInput) (_ *sdk.CallToolResult, _ CrowdsimRestoreOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("crowdsim_restore", start, retErr, "", sanitizeToolParams(map[string]interface{}{
			"input_path": args.InputPath,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "crowdsim_restore"); err != nil {
		return nil, CrowdsimRestoreOutput{}, err
	}
	if args.InputPath == "" {
		return nil, CrowdsimRestoreOutput{}, fmt.Errorf("input_path is required")
	}
	if err := s.checkOutputPath(args.InputPath); err != nil {
		return nil, CrowdsimRestoreOutput{}, err
	}

	result, err := backup.Restore(ctx, s.store, args.InputPath)
	if err != nil {
		return nil, CrowdsimRestoreOutput{}, fmt.Errorf("restore failed: %w", err)
	}
	return nil, CrowdsimRestoreOutput{
		RunsRestored:     result.RunsRestored,
		RunsSkipped:      result.RunsSkipped,
		UsersRestored:    result.UsersRestored,
		ContactsRestored: result.ContactsRestored,
		Message: fmt.Sprintf("Restored %d runs (%d skipped), %d users, %d contacts",
			result.RunsRestored, result.RunsSkipped, result.UsersRestored, result.ContactsRestored),
	}, nil
}
