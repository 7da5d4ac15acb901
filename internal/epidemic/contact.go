package epidemic

import "fmt"

// ContactEvent is the outcome of one resolved exposure. Source is the
// infected agent, Target the agent the contamination was attempted on.
type ContactEvent struct {
	Source       int  `json:"source"`
	Target       int  `json:"target"`
	Contaminated bool `json:"contaminated"`
	Tick         int  `json:"tick"`
}

func (e ContactEvent) String() string {
	return fmt.Sprintf("contact(%d->%d, tick=%d, contaminated=%t)", e.Source, e.Target, e.Tick, e.Contaminated)
}
