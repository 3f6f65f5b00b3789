package sensor

import "rescuesim/internal/sim/mathx"

// updateComms links to every peer in range that carries the same model.
// Each sensor decides alone, so links can be one-way.
func updateComms(s *Sensor, host Host, env *Env) {
	if !s.active || !s.proto.HasRange() {
		s.clear()
		return
	}
	from := host.Location()
	for _, p := range env.Peers {
		if p.ID() == host.ID() {
			continue
		}
		d := mathx.Dist(from, p.Location())
		s.mark(p.ID(), s.proto.InRange(d) && p.HasSensorModel(s.proto.Model))
	}
}

// updateVision observes peers in range. Each candidate gets one detection
// trial per tick against the sensor's accuracy.
func updateVision(s *Sensor, host Host, env *Env) {
	if !s.active || !s.proto.HasRange() {
		s.clear()
		return
	}
	from := host.Location()
	acc := s.proto.DetectionAccuracy()
	for _, p := range env.Peers {
		if p.ID() == host.ID() {
			continue
		}
		seen := s.proto.InRange(mathx.Dist(from, p.Location()))
		if seen && acc < 1 {
			seen = env.Rand.Float64() < acc
		}
		s.mark(p.ID(), seen)
	}
}

func updateMonitor(s *Sensor, host Host, _ *Env) {
	if !s.active || !host.Active() {
		s.clear()
		return
	}
	s.monitorID = host.ID()
}

func updateGeneric(s *Sensor, _ Host, _ *Env) {
	if !s.active {
		s.clear()
	}
}
