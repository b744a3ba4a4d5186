// Package smoother turns noisy instantaneous speed into a smoothed estimate.
package smoother

const (
	defaultProcessNoise     = 2.0 // (km/h)^2 drift per sample
	defaultMeasurementNoise = 9.0 // (km/h)^2, ~3 km/h sensor noise
	defaultHistorySize      = 8
)

type Config struct {
	ProcessNoise     float64
	MeasurementNoise float64
	HistorySize      int
}

func DefaultConfig() Config {
	return Config{
		ProcessNoise:     defaultProcessNoise,
		MeasurementNoise: defaultMeasurementNoise,
		HistorySize:      defaultHistorySize,
	}
}

// State is the restorable filter calibration plus the display history,
// oldest sample first.
type State struct {
	Estimate    float64   `json:"estimate"`
	ErrVariance float64   `json:"err_variance"`
	Initialized bool      `json:"initialized"`
	History     []float64 `json:"history"`
}

// Smoother is a scalar Kalman filter over speed in km/h with a bounded ring
// buffer kept as a secondary display signal.
type Smoother struct {
	q, r        float64
	estimate    float64
	errVariance float64
	initialized bool

	ring  []float64
	next  int
	count int
}

func New(cfg Config) *Smoother {
	if cfg.ProcessNoise <= 0 {
		cfg.ProcessNoise = defaultProcessNoise
	}
	if cfg.MeasurementNoise <= 0 {
		cfg.MeasurementNoise = defaultMeasurementNoise
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	return &Smoother{
		q:    cfg.ProcessNoise,
		r:    cfg.MeasurementNoise,
		ring: make([]float64, cfg.HistorySize),
	}
}

// Update feeds one raw speed measurement and returns the new estimate.
func (s *Smoother) Update(rawKmh float64) float64 {
	if rawKmh < 0 {
		rawKmh = 0
	}
	s.push(rawKmh)

	if !s.initialized {
		s.estimate = rawKmh
		s.errVariance = s.r
		s.initialized = true
		return s.estimate
	}

	// predict
	s.errVariance += s.q
	// correct
	gain := s.errVariance / (s.errVariance + s.r)
	s.estimate += gain * (rawKmh - s.estimate)
	s.errVariance *= 1 - gain

	if s.estimate < 0 {
		s.estimate = 0
	}
	return s.estimate
}

func (s *Smoother) Estimate() float64 {
	return s.estimate
}

func (s *Smoother) push(v float64) {
	s.ring[s.next] = v
	s.next = (s.next + 1) % len(s.ring)
	if s.count < len(s.ring) {
		s.count++
	}
}

// History returns the buffered raw samples, oldest first.
func (s *Smoother) History() []float64 {
	out := make([]float64, 0, s.count)
	start := (s.next - s.count + len(s.ring)) % len(s.ring)
	for i := 0; i < s.count; i++ {
		out = append(out, s.ring[(start+i)%len(s.ring)])
	}
	return out
}

// DisplaySpeed is the mean of the buffered samples.
func (s *Smoother) DisplaySpeed() float64 {
	if s.count == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range s.History() {
		sum += v
	}
	return sum / float64(s.count)
}

func (s *Smoother) State() State {
	return State{
		Estimate:    s.estimate,
		ErrVariance: s.errVariance,
		Initialized: s.initialized,
		History:     s.History(),
	}
}

// Restore loads a previously captured state. History longer than the buffer
// keeps only the newest samples.
func (s *Smoother) Restore(st State) {
	s.Reset()
	s.estimate = st.Estimate
	s.errVariance = st.ErrVariance
	s.initialized = st.Initialized
	history := st.History
	if len(history) > len(s.ring) {
		history = history[len(history)-len(s.ring):]
	}
	for _, v := range history {
		s.push(v)
	}
}

// Reset discards calibration. Only a session reset calls this.
func (s *Smoother) Reset() {
	s.estimate = 0
	s.errVariance = 0
	s.initialized = false
	for i := range s.ring {
		s.ring[i] = 0
	}
	s.next = 0
	s.count = 0
}
