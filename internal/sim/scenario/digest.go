package scenario

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
	"sort"

	"rescuesim/internal/protocol"
)

// Snapshot builds a fresh projection of the current state.
func (e *Engine) Snapshot() protocol.Snapshot {
	snap := protocol.Snapshot{
		ScenarioID: e.cfg.ScenarioID,
		Status:     e.Status(),
		Tick:       e.tick,
		Time:       e.time,
		StepSize:   e.cfg.StepSize,
		Remotes:    make(map[string]protocol.RemoteState, len(e.remotes)),
	}
	for _, r := range e.remotes {
		snap.Remotes[r.ID()] = r.Snapshot()
		if r.Active() {
			snap.ActiveRemoteIDs = append(snap.ActiveRemoteIDs, r.ID())
		}
		if r.Dynamic() {
			snap.DynamicRemoteIDs = append(snap.DynamicRemoteIDs, r.ID())
		}
	}
	if e.fault != nil {
		snap.ErrorCode = e.fault.Code
		snap.Error = e.fault.Error()
	}
	snap.Hash = Digest(snap)
	return snap
}

// Digest hashes everything in a snapshot except the hash itself.
func Digest(s protocol.Snapshot) string {
	h := sha256.New()
	var tmp [8]byte

	digestString(h, &tmp, s.ScenarioID)
	digestString(h, &tmp, string(s.Status))
	digestU64(h, &tmp, uint64(s.Tick))
	digestF64(h, &tmp, s.Time)
	digestF64(h, &tmp, s.StepSize)
	digestString(h, &tmp, s.ErrorCode)
	digestString(h, &tmp, s.Error)

	ids := make([]string, 0, len(s.Remotes))
	for id := range s.Remotes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	digestU64(h, &tmp, uint64(len(ids)))
	for _, id := range ids {
		digestRemote(h, &tmp, s.Remotes[id])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digestRemote(h hash.Hash, tmp *[8]byte, r protocol.RemoteState) {
	digestString(h, tmp, r.RemoteID)
	digestString(h, tmp, string(r.Kind))
	digestString(h, tmp, r.Team)
	digestString(h, tmp, string(r.State))
	digestBool(h, r.Dynamic)
	for _, v := range []*protocol.Vector{r.Location, r.Velocity, r.Acceleration} {
		digestBool(h, v != nil)
		if v != nil {
			digestF64(h, tmp, v.X)
			digestF64(h, tmp, v.Y)
			digestF64(h, tmp, v.Z)
		}
	}
	digestBool(h, r.Battery != nil)
	if r.Battery != nil {
		digestF64(h, tmp, *r.Battery)
	}
	digestU64(h, tmp, uint64(len(r.Sensors)))
	for _, s := range r.Sensors {
		digestString(h, tmp, s.SensorID)
		digestString(h, tmp, s.Model)
		digestString(h, tmp, string(s.Kind))
		digestBool(h, s.Active)
		digestStrings(h, tmp, s.Connections)
		digestStrings(h, tmp, s.Observations)
		digestString(h, tmp, s.MonitorID)
	}
}

func digestU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestF64(h hash.Hash, tmp *[8]byte, v float64) {
	digestU64(h, tmp, math.Float64bits(v))
}

func digestBool(h hash.Hash, b bool) {
	if b {
		h.Write([]byte{1})
		return
	}
	h.Write([]byte{0})
}

func digestString(h hash.Hash, tmp *[8]byte, s string) {
	digestU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func digestStrings(h hash.Hash, tmp *[8]byte, ss []string) {
	digestU64(h, tmp, uint64(len(ss)))
	for _, s := range ss {
		digestString(h, tmp, s)
	}
}
