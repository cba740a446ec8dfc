package model

import "fmt"

// Mode is the scale quality of a musical key.
type Mode string

const (
	ModeMajor Mode = "major"
	ModeMinor Mode = "minor"
)

// KeySignature is a canonical musical key: a pitch class 0-11 (C=0,
// rising by semitones) plus a mode. Enharmonic spellings (C# vs Db)
// collapse to the same pitch class, so two signatures are comparable
// with ==.
type KeySignature struct {
	PitchClass int  `json:"pitch_class"`
	Mode       Mode `json:"mode"`
}

// pitchNames uses sharp spellings for display. Input parsing accepts
// flats and Unicode accidentals; see consensus.ParseKey.
var pitchNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

func (k KeySignature) String() string {
	if k.PitchClass < 0 || k.PitchClass > 11 {
		return fmt.Sprintf("invalid(%d) %s", k.PitchClass, k.Mode)
	}
	return fmt.Sprintf("%s %s", pitchNames[k.PitchClass], k.Mode)
}

// PitchName returns the sharp-spelled note name for a pitch class.
func PitchName(pc int) string {
	if pc < 0 || pc > 11 {
		return "?"
	}
	return pitchNames[pc]
}
