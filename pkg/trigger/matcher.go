package trigger

import (
	"github.com/dukex/taskpipe/pkg/models"
)

// Matches reports whether def accepts ev.
func Matches(def Definition, ev models.TriggerEvent) bool {
	return def.Match(ev)
}

// EligibleFlows returns, in input order, every flow whose trigger matches ev.
// Flows with uninterpretable triggers never match.
func EligibleFlows(ev models.TriggerEvent, flows []*models.Flow) []*models.Flow {
	eligible := make([]*models.Flow, 0)

	for _, flow := range flows {
		def, err := Parse(flow.ID, flow.Trigger)
		if err != nil {
			continue
		}

		if Matches(def, ev) {
			eligible = append(eligible, flow)
		}
	}

	return eligible
}
