package epidemic

import "github.com/paulmach/orb"

// AttractorID is the render ID of the attractor. Agent IDs start at 1.
const AttractorID = 0

// DrawRequest asks the renderer to place a new shape.
type DrawRequest struct {
	ID       int
	Position orb.Point
	Radius   float64
	Color    Color
}

// Renderer receives draw and move requests. The engine never reads back
// from it.
type Renderer interface {
	Draw(req DrawRequest)
	Update(id int, pos orb.Point)
	Recolor(id int, color Color)
}

// EventSink receives records to persist. Implementations must not block
// for long; errors are reported but never stop the simulation.
type EventSink interface {
	CreateUser(agentID int, state HealthState) error
	InsertContact(event ContactEvent) error
}

// NopRenderer discards every request.
type NopRenderer struct{}

func (NopRenderer) Draw(DrawRequest)      {}
func (NopRenderer) Update(int, orb.Point) {}
func (NopRenderer) Recolor(int, Color)    {}

// NopSink discards every record.
type NopSink struct{}

func (NopSink) CreateUser(int, HealthState) error { return nil }
func (NopSink) InsertContact(ContactEvent) error  { return nil }

// RecordingSink keeps every record in memory. It is meant for tests and
// short in-process runs.
type RecordingSink struct {
	Users    map[int]HealthState
	Contacts []ContactEvent
}

// NewRecordingSink creates an empty RecordingSink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{Users: make(map[int]HealthState)}
}

func (r *RecordingSink) CreateUser(agentID int, state HealthState) error {
	r.Users[agentID] = state
	return nil
}

func (r *RecordingSink) InsertContact(event ContactEvent) error {
	r.Contacts = append(r.Contacts, event)
	return nil
}
