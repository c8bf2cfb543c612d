package flow

// Route is the first hop of a turn.
type Route string

const (
	// RouteSummarize compacts the history before answering.
	RouteSummarize Route = "summarize"
	// RouteDirect answers with the history as is.
	RouteDirect Route = "direct"
)

// SummarizeThreshold is the number of turns a conversation may hold before
// the router asks for compaction.
const SummarizeThreshold = 10

// Decide routes a conversation of turnCount turns.
func Decide(turnCount int) Route {
	if turnCount > SummarizeThreshold {
		return RouteSummarize
	}
	return RouteDirect
}
