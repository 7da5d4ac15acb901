// Package constants provides named constants used throughout crowdsim.
// This centralizes magic numbers for better maintainability and documentation.
package constants

import "time"

// Directory and file names
const (
	// DirName is the per-user and per-project data directory.
	DirName = ".crowdsim"

	// ConfigFileName is the YAML config file inside DirName.
	ConfigFileName = "config.yaml"

	// DatabaseFileName is the SQLite database inside DirName.
	DatabaseFileName = "crowdsim.db"
)

// Window and shape defaults, matching the reference 700x700 canvas.
const (
	DefaultWindowWidth       = 700.0
	DefaultWindowHeight      = 700.0
	DefaultAgentDiameter     = 10.0
	DefaultAttractorDiameter = 30.0
)

// Contact and transmission defaults
const (
	// DefaultContactDistance is the unscaled distance at which two agents meet.
	DefaultContactDistance = 10.0

	// DefaultScale multiplies the contact distance.
	DefaultScale = 1.0

	// DefaultBeta is the contamination probability per contact.
	DefaultBeta = 0.5

	// DefaultStepLength is the distance an agent walks per tick.
	DefaultStepLength = 1.0

	// DefaultAgentCount is the population of a default run.
	DefaultAgentCount = 100
)

// Driver and sink defaults
const (
	// DefaultMaxTicks caps a run. The 700x700 diagonal is under 1000 steps,
	// so default runs always converge first.
	DefaultMaxTicks = 5000

	// DefaultSinkBuffer is the queue length of the asynchronous event sink.
	DefaultSinkBuffer = 1024

	// DefaultFrameEvery records one GIF frame every N ticks.
	DefaultFrameEvery = 10

	// DefaultCanvasSize is the rendered frame width and height in pixels.
	DefaultCanvasSize = 700

	// DefaultFrameDelay is the GIF frame delay in hundredths of a second.
	DefaultFrameDelay = 8

	// DefaultSinkDrainTimeout bounds how long a finished run waits for
	// queued events to reach the store.
	DefaultSinkDrainTimeout = 30 * time.Second
)

// Batch defaults
const (
	// DefaultBatchRuns is the number of seeds a batch runs when none are given.
	DefaultBatchRuns = 10

	// DefaultBatchConcurrency bounds the engines running at once.
	DefaultBatchConcurrency = 4
)

// Backup defaults
const (
	// DefaultBackupRetention is how many backup files are kept per directory.
	DefaultBackupRetention = 10

	// AuditFileName is the MCP tool audit log inside DirName.
	AuditFileName = "audit.jsonl"
)
