// Package lipsync extracts a normalized loudness value from whatever
// audio is currently playing, for driving the avatar's mouth animation.
// It makes no decisions; it only measures.
package lipsync

import (
	"math"
	"sync"
	"sync/atomic"
)

// Analysis parameters. The dBFS window and gamma mapping come from
// hand-tuning against synthesized speech.
const (
	// AnalysisRate is the internal analysis sample rate; input is
	// resampled to it.
	AnalysisRate = 24000

	// FrameMS is the RMS window length.
	FrameMS = 20

	// HopMS is the hop between level updates.
	HopMS = 10

	FrameSize = AnalysisRate * FrameMS / 1000
	HopSize   = AnalysisRate * HopMS / 1000

	// Loudness mapping (dBFS to 0..1)
	dbLow         = -46.0
	dbHigh        = -18.0
	loudnessGamma = 0.9

	// envFollowGain smooths the published level between hops.
	envFollowGain = 0.65
)

// Tap receives playback audio as it is written to the output device.
type Tap func(samples []int16, sampleRate int)

// Source is a playback engine that can expose its audio to an analyser.
type Source interface {
	// SetTap installs fn as the audio tap. A nil fn removes the tap.
	SetTap(fn Tap)
}

// Analyser publishes a continuously updated loudness value (0.0-1.0)
// for the audio flowing through an attached playback source.
//
// One Analyser serves one call session; Release it before starting an
// unrelated session.
type Analyser struct {
	mu         sync.Mutex
	source     Source
	monitoring bool
	released   bool
	samples    []float64
	env        float64
	onLevel    func(float64)

	levelBits atomic.Uint64
}

// NewAnalyser creates an unattached analyser.
func NewAnalyser() *Analyser {
	return &Analyser{
		samples: make([]float64, 0, FrameSize*2),
	}
}

// OnLevel sets a callback invoked with each published level update.
func (a *Analyser) OnLevel(fn func(level float64)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onLevel = fn
}

// Attach binds the analyser to a playback source. Attaching the same
// source again is a no-op; attaching a different source replaces the
// previous tap.
func (a *Analyser) Attach(src Source) {
	a.mu.Lock()
	if a.released || src == nil || a.source == src {
		a.mu.Unlock()
		return
	}
	prev := a.source
	a.source = src
	a.mu.Unlock()

	if prev != nil {
		prev.SetTap(nil)
	}
	src.SetTap(a.feed)
}

// StartMonitoring begins publishing level updates for audio flowing
// through the attached source. No-op before Attach.
func (a *Analyser) StartMonitoring() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.source == nil || a.released {
		return
	}
	a.monitoring = true
}

// StopMonitoring stops publishing and resets the level to 0.
func (a *Analyser) StopMonitoring() {
	a.mu.Lock()
	a.monitoring = false
	a.samples = a.samples[:0]
	a.env = 0
	onLevel := a.onLevel
	a.mu.Unlock()

	a.setLevel(0)
	if onLevel != nil {
		onLevel(0)
	}
}

// Release tears down the tap and marks the analyser unusable. Required
// before a new call session begins so no analysis state leaks across
// sessions.
func (a *Analyser) Release() {
	a.mu.Lock()
	src := a.source
	a.source = nil
	a.monitoring = false
	a.released = true
	a.samples = nil
	a.env = 0
	a.mu.Unlock()

	a.setLevel(0)
	if src != nil {
		src.SetTap(nil)
	}
}

// Level returns the most recent published loudness (0.0-1.0).
func (a *Analyser) Level() float64 {
	return math.Float64frombits(a.levelBits.Load())
}

func (a *Analyser) setLevel(v float64) {
	a.levelBits.Store(math.Float64bits(v))
}

// feed is the tap installed on the playback source. It accumulates
// samples and emits one level update per hop.
func (a *Analyser) feed(samples []int16, sampleRate int) {
	a.mu.Lock()

	if !a.monitoring || a.released || len(samples) == 0 {
		a.mu.Unlock()
		return
	}

	floats := make([]float64, len(samples))
	for i, s := range samples {
		floats[i] = float64(s) / 32768.0
	}
	if sampleRate != AnalysisRate {
		floats = resampleLinear(floats, sampleRate, AnalysisRate)
	}
	a.samples = append(a.samples, floats...)

	var levels []float64
	for len(a.samples) >= FrameSize {
		frame := a.samples[:FrameSize]
		a.samples = a.samples[HopSize:]

		db := rmsDBFS(frame)
		target := loudnessGain(db)
		a.env += envFollowGain * (target - a.env)
		a.env = clamp(a.env, 0, 1)
		levels = append(levels, a.env)
	}
	onLevel := a.onLevel
	a.mu.Unlock()

	for _, lvl := range levels {
		a.setLevel(lvl)
		if onLevel != nil {
			onLevel(lvl)
		}
	}
}

func rmsDBFS(samples []float64) float64 {
	if len(samples) == 0 {
		return -100.0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	rms := math.Sqrt(sum/float64(len(samples)) + 1e-12)
	return 20.0 * math.Log10(rms+1e-12)
}

// loudnessGain maps dBFS into 0..1 over the speech dynamic range.
func loudnessGain(db float64) float64 {
	t := (db - dbLow) / (dbHigh - dbLow)
	t = clamp(t, 0, 1)
	if loudnessGamma != 1.0 {
		t = math.Pow(t, loudnessGamma)
	}
	return t
}

func resampleLinear(samples []float64, srIn, srOut int) []float64 {
	if srIn == srOut || len(samples) == 0 {
		return samples
	}
	nOut := int(math.Round(float64(len(samples)) * float64(srOut) / float64(srIn)))
	if nOut <= 1 {
		return nil
	}
	out := make([]float64, nOut)
	for i := range out {
		t := float64(i) / float64(nOut-1) * float64(len(samples)-1)
		idx := int(t)
		frac := t - float64(idx)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
		} else {
			out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
