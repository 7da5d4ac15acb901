package epidemic

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/paulmach/orb"
)

// EngineState is the lifecycle state of an Engine.
type EngineState int

const (
	StateUninitialized EngineState = iota
	StateRunning
	StateConverged
)

func (s EngineState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateConverged:
		return "converged"
	default:
		return fmt.Sprintf("EngineState(%d)", int(s))
	}
}

// Params holds the geometric and epidemiological parameters of a run.
type Params struct {
	// Bounds is the window agents are placed in.
	Bounds orb.Bound

	AgentDiameter     float64
	AttractorDiameter float64

	// ContactDistance is multiplied by Scale to get the contact radius.
	ContactDistance float64
	Scale           float64

	// Beta is the probability that one contact infects a susceptible agent.
	Beta float64

	// RecoveryProbability is the per-tick chance an infected agent recovers.
	// Zero disables recovery and consumes no random draws.
	RecoveryProbability float64

	// StepLength is how far an agent moves per tick.
	StepLength float64
}

// DefaultParams returns the parameters of the reference 700x700 window.
func DefaultParams() Params {
	return Params{
		Bounds:            orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{700, 700}},
		AgentDiameter:     10,
		AttractorDiameter: 30,
		ContactDistance:   10,
		Scale:             1,
		Beta:              0.5,
		StepLength:        1,
	}
}

// ContactRadius is the scaled distance within which two agents meet.
func (p Params) ContactRadius() float64 {
	return p.ContactDistance * p.Scale
}

// TickResult summarises one call to Tick.
type TickResult struct {
	Tick        int  `json:"tick"`
	Moved       bool `json:"moved"`
	NewContacts int  `json:"new_contacts"`
	Converged   bool `json:"converged"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink sets the persistence collaborator.
func WithSink(s EventSink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithRenderer sets the rendering collaborator.
func WithRenderer(r Renderer) Option {
	return func(e *Engine) {
		if r != nil {
			e.renderer = r
		}
	}
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRand sets the source for contamination and recovery draws.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) {
		if rng != nil {
			e.rng = rng
		}
	}
}

// WithFailureBuffer sets the capacity of the Failures channel. Values
// below 1 are raised to 1.
func WithFailureBuffer(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.failures = make(chan error, n)
	}
}

// Engine drives the simulation. It is not safe for concurrent use; a host
// calling it from several goroutines must serialise whole Tick calls.
type Engine struct {
	params    Params
	state     EngineState
	attractor Attractor
	agents    []*Agent
	ledger    *ContactLedger
	contacts  []ContactEvent
	tick      int
	last      TickResult

	rng      *rand.Rand
	sink     EventSink
	renderer Renderer
	logger   *slog.Logger
	failures chan error
}

// New creates an uninitialized engine.
func New(params Params, opts ...Option) *Engine {
	e := &Engine{
		params:   params,
		ledger:   NewContactLedger(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		sink:     NopSink{},
		renderer: NopRenderer{},
		logger:   slog.New(slog.DiscardHandler),
		failures: make(chan error, 64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialize places the attractor and creates agentCount agents using
// policy. It may be called once.
func (e *Engine) Initialize(agentCount int, attractor orb.Point, policy RandomizationPolicy) error {
	if e.state != StateUninitialized {
		return ErrAlreadyInitialized
	}
	if err := e.params.Validate(agentCount, attractor); err != nil {
		return err
	}
	if policy == nil {
		return fmt.Errorf("%w: nil randomization policy", ErrInvalidConfiguration)
	}

	agentRadius := e.params.AgentDiameter / 2
	inner := insetBound(e.params.Bounds, agentRadius)

	e.attractor = Attractor{Position: attractor, Radius: e.params.AttractorDiameter / 2}
	agents := make([]*Agent, 0, agentCount)
	for i := 0; i < agentCount; i++ {
		pos := policy.RandomPosition(e.params.Bounds, agentRadius)
		if !inner.Contains(pos) {
			return fmt.Errorf("%w: agent %d placed at %v outside bounds %v", ErrInvalidConfiguration, i+1, pos, inner)
		}
		state := policy.RandomHealthState()
		if !state.Valid() {
			return fmt.Errorf("%w: agent %d has invalid initial state", ErrInvalidConfiguration, i+1)
		}
		agents = append(agents, newAgent(i+1, pos, agentRadius, state, attractor))
	}
	e.agents = agents

	e.renderer.Draw(DrawRequest{
		ID:       AttractorID,
		Position: e.attractor.Position,
		Radius:   e.attractor.Radius,
		Color:    ColorBlack,
	})
	for _, a := range e.agents {
		e.renderer.Draw(DrawRequest{ID: a.ID, Position: a.Position, Radius: a.Radius, Color: a.State.Color()})
		if err := e.sink.CreateUser(a.ID, a.State); err != nil {
			e.reportFailure(fmt.Errorf("create user %d: %w", a.ID, err))
		}
	}

	e.state = StateRunning
	e.logger.Info("simulation initialized",
		"agents", agentCount,
		"attractor", attractor,
		"contact_radius", e.params.ContactRadius(),
		"beta", e.params.Beta)
	return nil
}

// Validate checks the parameters for a run of agentCount agents gathering
// at attractor. Failures wrap ErrInvalidConfiguration.
func (p Params) Validate(agentCount int, attractor orb.Point) error {
	width := p.Bounds.Max[0] - p.Bounds.Min[0]
	height := p.Bounds.Max[1] - p.Bounds.Min[1]

	switch {
	case agentCount < 0:
		return fmt.Errorf("%w: agent count %d is negative", ErrInvalidConfiguration, agentCount)
	case width <= 0 || height <= 0:
		return fmt.Errorf("%w: empty bounds %v", ErrInvalidConfiguration, p.Bounds)
	case p.AgentDiameter < 0 || p.AttractorDiameter < 0:
		return fmt.Errorf("%w: diameters must be non-negative", ErrInvalidConfiguration)
	case p.AgentDiameter >= width || p.AgentDiameter >= height:
		return fmt.Errorf("%w: agent diameter %v does not fit in %vx%v window", ErrInvalidConfiguration, p.AgentDiameter, width, height)
	case p.AttractorDiameter >= width || p.AttractorDiameter >= height:
		return fmt.Errorf("%w: attractor diameter %v does not fit in %vx%v window", ErrInvalidConfiguration, p.AttractorDiameter, width, height)
	case p.ContactDistance < 0:
		return fmt.Errorf("%w: contact distance %v is negative", ErrInvalidConfiguration, p.ContactDistance)
	case p.Scale <= 0:
		return fmt.Errorf("%w: scale %v must be positive", ErrInvalidConfiguration, p.Scale)
	case p.StepLength <= 0:
		return fmt.Errorf("%w: step length %v must be positive", ErrInvalidConfiguration, p.StepLength)
	case p.Beta < 0 || p.Beta > 1:
		return fmt.Errorf("%w: beta %v outside [0,1]", ErrInvalidConfiguration, p.Beta)
	case p.RecoveryProbability < 0 || p.RecoveryProbability > 1:
		return fmt.Errorf("%w: recovery probability %v outside [0,1]", ErrInvalidConfiguration, p.RecoveryProbability)
	}

	if !insetBound(p.Bounds, p.AgentDiameter/2).Contains(attractor) {
		return fmt.Errorf("%w: attractor %v outside bounds %v", ErrInvalidConfiguration, attractor, p.Bounds)
	}
	return nil
}

func insetBound(b orb.Bound, r float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.Min[0] + r, b.Min[1] + r},
		Max: orb.Point{b.Max[0] - r, b.Max[1] - r},
	}
}

// Tick advances every agent one step and resolves new contacts.
//
// Only agents infected when the contact scan starts act as sources; an
// agent infected during the scan spreads from the next tick on. Once the
// engine has converged, Tick returns the final result again with no new
// contacts.
func (e *Engine) Tick() (TickResult, error) {
	switch e.state {
	case StateUninitialized:
		return TickResult{}, ErrNotInitialized
	case StateConverged:
		res := e.last
		res.Moved = false
		res.NewContacts = 0
		return res, nil
	}

	e.tick++
	moved := false
	for _, a := range e.agents {
		if a.Advance(e.attractor, e.params.StepLength) {
			moved = true
			e.renderer.Update(a.ID, a.Position)
		}
	}
	converged := e.allAtAttractor()

	sources := e.infected()
	radius := e.params.ContactRadius()
	newContacts := 0
	for _, p := range sources {
		for _, q := range e.agents {
			if q == p || !q.IsWithinRadius(p, radius) || e.ledger.Contains(p.ID, q.ID) {
				continue
			}
			contaminated := q.AttemptContamination(e.params.Beta, e.rng)
			e.ledger.Record(p.ID, q.ID)
			ev := ContactEvent{Source: p.ID, Target: q.ID, Contaminated: contaminated, Tick: e.tick}
			e.contacts = append(e.contacts, ev)
			newContacts++
			if contaminated {
				e.renderer.Recolor(q.ID, q.State.Color())
			}
			if err := e.sink.InsertContact(ev); err != nil {
				e.reportFailure(fmt.Errorf("insert %s: %w", ev, err))
			}
		}
	}

	if e.params.RecoveryProbability > 0 {
		for _, p := range sources {
			if e.rng.Float64() < e.params.RecoveryProbability && p.Recover() {
				e.renderer.Recolor(p.ID, p.State.Color())
			}
		}
	}

	res := TickResult{
		Tick:        e.tick,
		Moved:       moved,
		NewContacts: newContacts,
		Converged:   converged,
	}
	e.last = res
	if converged {
		e.state = StateConverged
		e.logger.Info("simulation converged",
			"ticks", e.tick,
			"contacts", len(e.contacts))
	}
	e.logger.Debug("tick", "tick", e.tick, "moved", moved, "new_contacts", newContacts)
	return res, nil
}

func (e *Engine) infected() []*Agent {
	var out []*Agent
	for _, a := range e.agents {
		if a.IsInfected() {
			out = append(out, a)
		}
	}
	return out
}

func (e *Engine) allAtAttractor() bool {
	for _, a := range e.agents {
		if !a.IsAtAttractor(e.attractor) {
			return false
		}
	}
	return true
}

// reportFailure logs a collaborator error and forwards it without blocking.
func (e *Engine) reportFailure(err error) {
	e.logger.Warn("event sink failure", "error", err)
	select {
	case e.failures <- err:
	default:
	}
}

// IsConverged reports whether every agent has reached the attractor.
func (e *Engine) IsConverged() bool {
	if e.state == StateUninitialized {
		return false
	}
	return e.allAtAttractor()
}

// SIRTally counts agents per health state.
func (e *Engine) SIRTally() Tally {
	var t Tally
	for _, a := range e.agents {
		t.add(a.State)
	}
	return t
}

// TotalContacts returns the number of contacts resolved so far.
func (e *Engine) TotalContacts() int {
	return len(e.contacts)
}

// Contacts returns a copy of the contact list in resolution order.
func (e *Engine) Contacts() []ContactEvent {
	return append([]ContactEvent(nil), e.contacts...)
}

// Agents returns value copies of the agents in creation order.
func (e *Engine) Agents() []Agent {
	out := make([]Agent, len(e.agents))
	for i, a := range e.agents {
		out[i] = *a
	}
	return out
}

// Agent returns a copy of the agent with the given ID.
func (e *Engine) Agent(id int) (Agent, bool) {
	if id < 1 || id > len(e.agents) {
		return Agent{}, false
	}
	return *e.agents[id-1], true
}

// HasContact reports whether the pair has already been evaluated.
func (e *Engine) HasContact(a, b int) bool {
	return e.ledger.Contains(a, b)
}

// Ledger returns a copy of the contact ledger.
func (e *Engine) Ledger() *ContactLedger {
	return e.ledger.Clone()
}

func (e *Engine) Attractor() Attractor { return e.attractor }
func (e *Engine) Params() Params       { return e.params }
func (e *Engine) State() EngineState   { return e.state }
func (e *Engine) Ticks() int           { return e.tick }

// Failures delivers collaborator errors. Errors are dropped when the
// buffer is full.
func (e *Engine) Failures() <-chan error {
	return e.failures
}
