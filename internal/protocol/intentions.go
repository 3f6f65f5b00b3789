package protocol

import (
	"fmt"
	"sort"
)

type IntentionType string

const (
	IntentNone       IntentionType = "NONE"
	IntentStartup    IntentionType = "STARTUP"
	IntentShutdown   IntentionType = "SHUTDOWN"
	IntentActivate   IntentionType = "ACTIVATE"
	IntentDeactivate IntentionType = "DEACTIVATE"
	IntentGoTo       IntentionType = "GOTO"
	IntentMove       IntentionType = "MOVE"
	IntentSteer      IntentionType = "STEER"
	IntentDone       IntentionType = "DONE"
	IntentStop       IntentionType = "STOP"
)

var knownIntentions = map[IntentionType]struct{}{
	IntentNone:       {},
	IntentStartup:    {},
	IntentShutdown:   {},
	IntentActivate:   {},
	IntentDeactivate: {},
	IntentGoTo:       {},
	IntentMove:       {},
	IntentSteer:      {},
	IntentDone:       {},
	IntentStop:       {},
}

func (t IntentionType) Valid() bool {
	_, ok := knownIntentions[t]
	return ok
}

// Intention is one command. Only the fields of its Type are meaningful:
//
//	ACTIVATE/DEACTIVATE  sensor_ids (empty means every sensor)
//	GOTO                 location or velocity, optional max_velocity/max_acceleration
//	MOVE                 acceleration
//	STEER                direction
type Intention struct {
	Type            IntentionType `json:"type"`
	SensorIDs       []string      `json:"sensor_ids,omitempty"`
	Location        *Vector       `json:"location,omitempty"`
	Velocity        *Vector       `json:"velocity,omitempty"`
	Acceleration    *Vector       `json:"acceleration,omitempty"`
	Direction       *Vector       `json:"direction,omitempty"`
	MaxVelocity     float64       `json:"max_velocity,omitempty"`
	MaxAcceleration float64       `json:"max_acceleration,omitempty"`
}

func Startup() Intention  { return Intention{Type: IntentStartup} }
func Shutdown() Intention { return Intention{Type: IntentShutdown} }
func Done() Intention     { return Intention{Type: IntentDone} }
func Stop() Intention     { return Intention{Type: IntentStop} }

func Activate(sensorIDs ...string) Intention {
	return Intention{Type: IntentActivate, SensorIDs: sensorIDs}
}

func Deactivate(sensorIDs ...string) Intention {
	return Intention{Type: IntentDeactivate, SensorIDs: sensorIDs}
}

func GoTo(location Vector) Intention {
	return Intention{Type: IntentGoTo, Location: &location}
}

func GoToVelocity(velocity Vector) Intention {
	return Intention{Type: IntentGoTo, Velocity: &velocity}
}

// GoHome is a GOTO with no target; the remote returns to its home location.
func GoHome() Intention { return Intention{Type: IntentGoTo} }

func Move(acceleration Vector) Intention {
	return Intention{Type: IntentMove, Acceleration: &acceleration}
}

func Steer(direction Vector) Intention {
	return Intention{Type: IntentSteer, Direction: &direction}
}

// IntentionSet carries at most one intention of each type for one remote.
type IntentionSet struct {
	RemoteID   string      `json:"remote_id"`
	Intentions []Intention `json:"intentions,omitempty"`
}

func NewIntentionSet(remoteID string, intents ...Intention) (IntentionSet, error) {
	s := IntentionSet{RemoteID: remoteID}
	for _, in := range intents {
		if err := s.Add(in); err != nil {
			return IntentionSet{}, err
		}
	}
	return s, nil
}

// Add appends in, rejecting a second intention of the same type.
func (s *IntentionSet) Add(in Intention) error {
	if !in.Type.Valid() {
		return fmt.Errorf("intention: unknown type %q", in.Type)
	}
	if _, ok := s.Get(in.Type); ok {
		return fmt.Errorf("intention: duplicate %s for %s", in.Type, s.RemoteID)
	}
	s.Intentions = append(s.Intentions, in)
	return nil
}

func (s IntentionSet) Get(t IntentionType) (Intention, bool) {
	for _, in := range s.Intentions {
		if in.Type == t {
			return in, true
		}
	}
	return Intention{}, false
}

func (s IntentionSet) Has(t IntentionType) bool {
	_, ok := s.Get(t)
	return ok
}

func (s IntentionSet) Validate() error {
	if s.RemoteID == "" {
		return fmt.Errorf("remote_id: required")
	}
	seen := make(map[IntentionType]struct{}, len(s.Intentions))
	for _, in := range s.Intentions {
		if !in.Type.Valid() {
			return fmt.Errorf("%s: unknown intention type %q", s.RemoteID, in.Type)
		}
		if _, dup := seen[in.Type]; dup {
			return fmt.Errorf("%s: duplicate %s intention", s.RemoteID, in.Type)
		}
		seen[in.Type] = struct{}{}
	}
	return nil
}

// ShutdownRequested reports whether the set asks the server to end the session.
func (s IntentionSet) ShutdownRequested() bool {
	if s.RemoteID != ServerID {
		return false
	}
	return s.Has(IntentDone) || s.Has(IntentStop) || s.Has(IntentShutdown) || s.Has(IntentDeactivate)
}

// Batch keys a list of sets by remote ID. A remote named twice is an error.
func Batch(sets []IntentionSet) (map[string]IntentionSet, error) {
	out := make(map[string]IntentionSet, len(sets))
	for _, s := range sets {
		if _, dup := out[s.RemoteID]; dup {
			return nil, fmt.Errorf("remote %s: more than one intention set", s.RemoteID)
		}
		out[s.RemoteID] = s
	}
	return out, nil
}

// SortedSets orders sets by remote ID so encoded batches are stable.
func SortedSets(byID map[string]IntentionSet) []IntentionSet {
	out := make([]IntentionSet, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RemoteID < out[j].RemoteID })
	return out
}
