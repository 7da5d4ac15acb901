package mcp

import (
	"time"

	"github.com/nvandessel/crowdsim/internal/driver"
	"github.com/nvandessel/crowdsim/internal/epidemic"
)

// SimulationOverrides are the engine settings a tool call may change.
// Zero values keep the server's configuration.
type SimulationOverrides struct {
	Agents          int      `json:"agents,omitempty" jsonschema:"Number of agents to place"`
	Beta            *float64 `json:"beta,omitempty" jsonschema:"Contamination probability per contact (0.0-1.0)"`
	Recovery        *float64 `json:"recovery,omitempty" jsonschema:"Per-tick recovery probability of an infected agent (0.0-1.0)"`
	ContactDistance float64  `json:"contact_distance,omitempty" jsonschema:"Unscaled distance at which two agents meet"`
	MaxTicks        int      `json:"max_ticks,omitempty" jsonschema:"Stop a run that has not converged after this many ticks"`
}

// CrowdsimRunInput defines the input for the crowdsim_run tool.
type CrowdsimRunInput struct {
	Simulation  SimulationOverrides `json:"simulation,omitempty" jsonschema:"Engine settings overriding the server configuration"`
	Seed        int64               `json:"seed,omitempty" jsonschema:"Seed for a reproducible run (0 picks one)"`
	AttractorX  *float64            `json:"attractor_x,omitempty" jsonschema:"Attractor X coordinate; random when unset"`
	AttractorY  *float64            `json:"attractor_y,omitempty" jsonschema:"Attractor Y coordinate; random when unset"`
	GIFPath     string              `json:"gif_path,omitempty" jsonschema:"Write an animated GIF of the run to this path"`
	ChartPath   string              `json:"chart_path,omitempty" jsonschema:"Write a PNG chart of S/I/R counts per tick to this path"`
	GeoJSONPath string              `json:"geojson_path,omitempty" jsonschema:"Write the final agent positions as GeoJSON to this path"`
}

// CrowdsimRunOutput defines the output for the crowdsim_run tool.
type CrowdsimRunOutput struct {
	RunID         string            `json:"run_id" jsonschema:"ID of the recorded run"`
	Seed          int64             `json:"seed" jsonschema:"Seed used for the run"`
	Ticks         int               `json:"ticks" jsonschema:"Ticks executed"`
	Converged     bool              `json:"converged" jsonschema:"Whether every agent reached the attractor"`
	Tally         epidemic.Tally    `json:"tally" jsonschema:"Final S/I/R counts"`
	TotalContacts int               `json:"total_contacts" jsonschema:"Distinct contacts resolved"`
	Failures      int               `json:"failures" jsonschema:"Sink writes that failed"`
	Outputs       map[string]string `json:"outputs,omitempty" jsonschema:"Files written by kind"`
	Message       string            `json:"message" jsonschema:"Human-readable result message"`
}

// CrowdsimBatchInput defines the input for the crowdsim_batch tool.
type CrowdsimBatchInput struct {
	Simulation  SimulationOverrides `json:"simulation,omitempty" jsonschema:"Engine settings overriding the server configuration"`
	Seeds       []int64             `json:"seeds,omitempty" jsonschema:"Seeds to run; defaults to 1..runs"`
	Runs        int                 `json:"runs,omitempty" jsonschema:"Number of seeds when seeds is empty"`
	Concurrency int                 `json:"concurrency,omitempty" jsonschema:"Engines running at once"`
}

// BatchRunItem is one seed of a batch.
type BatchRunItem struct {
	Seed          int64 `json:"seed"`
	Ticks         int   `json:"ticks"`
	Converged     bool  `json:"converged"`
	Infected      int   `json:"infected"`
	Recovered     int   `json:"recovered"`
	TotalContacts int   `json:"total_contacts"`
}

// CrowdsimBatchOutput defines the output for the crowdsim_batch tool.
type CrowdsimBatchOutput struct {
	Summary driver.BatchSummary `json:"summary" jsonschema:"Aggregate over all seeds"`
	Runs    []BatchRunItem      `json:"runs" jsonschema:"Per-seed results in seed order"`
}

// CrowdsimRunsInput defines the input for the crowdsim_runs tool.
type CrowdsimRunsInput struct {
	RunID string `json:"run_id,omitempty" jsonschema:"Show a single run instead of listing"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum runs to list, newest first (default 20)"`
}

// RunListItem provides a list view of a run.
type RunListItem struct {
	ID            string         `json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	Seed          int64          `json:"seed"`
	Agents        int            `json:"agents"`
	Beta          float64        `json:"beta"`
	Finished      bool           `json:"finished"`
	Ticks         int            `json:"ticks"`
	Converged     bool           `json:"converged"`
	Tally         epidemic.Tally `json:"tally"`
	TotalContacts int            `json:"total_contacts"`
}

// CrowdsimRunsOutput defines the output for the crowdsim_runs tool.
type CrowdsimRunsOutput struct {
	Runs  []RunListItem `json:"runs" jsonschema:"Runs, newest first"`
	Count int           `json:"count" jsonschema:"Number of runs returned"`
}

// CrowdsimContactsInput defines the input for the crowdsim_contacts tool.
type CrowdsimContactsInput struct {
	RunID      string `json:"run_id" jsonschema:"Run to read contacts from"`
	OutputPath string `json:"output_path,omitempty" jsonschema:"Export all contacts as JSONL to this path instead of returning them"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Maximum contacts returned (default 200)"`
}

// ContactItem is one recorded contact.
type ContactItem struct {
	Seq          int  `json:"seq"`
	Source       int  `json:"source"`
	Target       int  `json:"target"`
	Tick         int  `json:"tick"`
	Contaminated bool `json:"contaminated"`
}

// CrowdsimContactsOutput defines the output for the crowdsim_contacts tool.
type CrowdsimContactsOutput struct {
	Contacts  []ContactItem `json:"contacts,omitempty" jsonschema:"Contacts in resolution order"`
	Count     int           `json:"count" jsonschema:"Contacts recorded for the run"`
	Truncated bool          `json:"truncated,omitempty" jsonschema:"Whether the list was cut at limit"`
	Path      string        `json:"path,omitempty" jsonschema:"Export file, when output_path was given"`
}

// CrowdsimGraphInput defines the input for the crowdsim_graph tool.
type CrowdsimGraphInput struct {
	RunID  string `json:"run_id" jsonschema:"Run to render"`
	Format string `json:"format,omitempty" jsonschema:"Output format: dot or json (default json)"`
}

// CrowdsimGraphOutput defines the output for the crowdsim_graph tool.
type CrowdsimGraphOutput struct {
	Format    string      `json:"format" jsonschema:"Format of graph"`
	Graph     interface{} `json:"graph" jsonschema:"DOT source or JSON graph"`
	NodeCount int         `json:"node_count" jsonschema:"Agents in the run"`
	EdgeCount int         `json:"edge_count" jsonschema:"Contacts in the run"`
}

// CrowdsimBackupInput defines the input for the crowdsim_backup tool.
type CrowdsimBackupInput struct {
	OutputPath string   `json:"output_path,omitempty" jsonschema:"Backup file; defaults to ~/.crowdsim/backups/"`
	RunIDs     []string `json:"run_ids,omitempty" jsonschema:"Runs to archive; all runs when empty"`
}

// CrowdsimBackupOutput defines the output for the crowdsim_backup tool.
type CrowdsimBackupOutput struct {
	Path         string `json:"path" jsonschema:"Backup file written"`
	RunCount     int    `json:"run_count" jsonschema:"Runs archived"`
	ContactCount int    `json:"contact_count" jsonschema:"Contacts archived"`
	SizeBytes    int64  `json:"size_bytes" jsonschema:"Size of the backup file"`
	Pruned       int    `json:"pruned,omitempty" jsonschema:"Old backups removed by retention"`
	Message      string `json:"message" jsonschema:"Human-readable result message"`
}

// CrowdsimRestoreInput defines the input for the crowdsim_restore tool.
type CrowdsimRestoreInput struct {
	InputPath string `json:"input_path" jsonschema:"Backup file to import"`
}

// CrowdsimRestoreOutput defines the output for the crowdsim_restore tool.
type CrowdsimRestoreOutput struct {
	RunsRestored     int    `json:"runs_restored"`
	RunsSkipped      int    `json:"runs_skipped"`
	UsersRestored    int    `json:"users_restored"`
	ContactsRestored int    `json:"contacts_restored"`
	Message          string `json:"message" jsonschema:"Human-readable result message"`
}
