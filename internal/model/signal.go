package model

import "time"

// AudioSignal is a decoded, mono audio buffer handed to analyzers.
// The engine treats it as read-only; callers own the buffer.
type AudioSignal struct {
	// Path is the source file the samples were decoded from, when known.
	// Exec-based analyzers that re-read the file use it; pure-Go
	// analyzers work from Samples alone.
	Path       string
	Samples    []float64
	SampleRate int
}

// Duration returns the playing time represented by the buffer.
func (s *AudioSignal) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	secs := float64(len(s.Samples)) / float64(s.SampleRate)
	return time.Duration(secs * float64(time.Second))
}

// Empty reports whether the signal carries no samples.
func (s *AudioSignal) Empty() bool {
	return s == nil || len(s.Samples) == 0
}
