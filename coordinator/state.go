package coordinator

import "strconv"

// State is the position of a device session in its advertisement/poll cycle.
type State uint8

const (
  StateIdle State = iota
  StateEvaluating
  StateResolving
  StatePolling
  StateMerging
  StatePublishing
)

func (s State) String() string {
  switch s {
  case StateIdle:
    return "Idle"
  case StateEvaluating:
    return "Evaluating"
  case StateResolving:
    return "Resolving"
  case StatePolling:
    return "Polling"
  case StateMerging:
    return "Merging"
  case StatePublishing:
    return "Publishing"
  default:
    panic("unknown coordinator state: " + strconv.Itoa(int(s)))
  }
}
