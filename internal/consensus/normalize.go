package consensus

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/tonearm/tonearm/internal/model"
)

// noteOffsets maps natural note letters to semitone offsets from C.
var noteOffsets = map[byte]int{
	'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11,
}

// camelotWheel maps Camelot codes (used by DJ tooling) to canonical keys.
// The A ring is minor, the B ring major.
var camelotWheel = map[string]model.KeySignature{
	"1A": {PitchClass: 8, Mode: model.ModeMinor}, "1B": {PitchClass: 11, Mode: model.ModeMajor},
	"2A": {PitchClass: 3, Mode: model.ModeMinor}, "2B": {PitchClass: 6, Mode: model.ModeMajor},
	"3A": {PitchClass: 10, Mode: model.ModeMinor}, "3B": {PitchClass: 1, Mode: model.ModeMajor},
	"4A": {PitchClass: 5, Mode: model.ModeMinor}, "4B": {PitchClass: 8, Mode: model.ModeMajor},
	"5A": {PitchClass: 0, Mode: model.ModeMinor}, "5B": {PitchClass: 3, Mode: model.ModeMajor},
	"6A": {PitchClass: 7, Mode: model.ModeMinor}, "6B": {PitchClass: 10, Mode: model.ModeMajor},
	"7A": {PitchClass: 2, Mode: model.ModeMinor}, "7B": {PitchClass: 5, Mode: model.ModeMajor},
	"8A": {PitchClass: 9, Mode: model.ModeMinor}, "8B": {PitchClass: 0, Mode: model.ModeMajor},
	"9A": {PitchClass: 4, Mode: model.ModeMinor}, "9B": {PitchClass: 7, Mode: model.ModeMajor},
	"10A": {PitchClass: 11, Mode: model.ModeMinor}, "10B": {PitchClass: 2, Mode: model.ModeMajor},
	"11A": {PitchClass: 6, Mode: model.ModeMinor}, "11B": {PitchClass: 9, Mode: model.ModeMajor},
	"12A": {PitchClass: 1, Mode: model.ModeMinor}, "12B": {PitchClass: 4, Mode: model.ModeMajor},
}

// accidentalReplacer collapses Unicode accidentals to their ASCII forms.
var accidentalReplacer = strings.NewReplacer("♯", "#", "♭", "b", "♮", "")

// FoldTempo maps a raw BPM into the plausible band by testing the
// configured ratios in order. The first ratio landing in the band wins;
// 1x leads the default list so an already-plausible tempo never moves.
// When no ratio lands in the band the raw value is kept with ratio 1.
func FoldTempo(raw float64, cfg Config) (canonical float64, ratio float64) {
	for _, r := range cfg.FoldRatios {
		v := raw * r
		if cfg.PlausibleTempo.Contains(v) {
			return v, r
		}
	}
	return raw, 1
}

// ParseKey canonicalizes a provider-spelled key into a pitch-class tuple.
// Accepted spellings: note names with sharps/flats in ASCII or Unicode
// ("C#m", "Db major", "F", "B♭ Minor"), mode words or suffixes
// (maj/major, min/minor, bare trailing m), and Camelot codes ("8A").
// A bare note name defaults to major.
func ParseKey(raw any) (model.KeySignature, error) {
	switch v := raw.(type) {
	case model.KeySignature:
		if v.PitchClass < 0 || v.PitchClass > 11 {
			return model.KeySignature{}, eris.Errorf("consensus: pitch class out of range: %d", v.PitchClass)
		}
		return v, nil
	case string:
		return parseKeyString(v)
	default:
		return model.KeySignature{}, eris.Errorf("consensus: unsupported key value type %T", raw)
	}
}

func parseKeyString(s string) (model.KeySignature, error) {
	orig := s
	s = strings.TrimSpace(accidentalReplacer.Replace(s))
	if s == "" {
		return model.KeySignature{}, eris.New("consensus: empty key string")
	}

	if k, ok := camelotWheel[strings.ToUpper(s)]; ok {
		return k, nil
	}

	upper := strings.ToUpper(s)
	note := upper[0]
	off, ok := noteOffsets[note]
	if !ok {
		return model.KeySignature{}, eris.Errorf("consensus: unrecognized key %q", orig)
	}

	rest := s[1:]
	pc := off
	for len(rest) > 0 {
		switch rest[0] {
		case '#':
			pc++
			rest = rest[1:]
			continue
		case 'b':
			// A lone trailing 'b' after accidentals could also start a
			// mode word; only treat it as a flat when it is not "b major"
			// style text, which no provider emits.
			pc--
			rest = rest[1:]
			continue
		}
		break
	}
	pc = ((pc % 12) + 12) % 12

	mode, err := parseMode(rest)
	if err != nil {
		return model.KeySignature{}, eris.Wrapf(err, "consensus: key %q", orig)
	}
	return model.KeySignature{PitchClass: pc, Mode: mode}, nil
}

func parseMode(s string) (model.Mode, error) {
	// A bare trailing "m" means minor ("C#m"); "M" means major.
	if s == "m" {
		return model.ModeMinor, nil
	}
	if s == "M" {
		return model.ModeMajor, nil
	}

	s = strings.ToLower(strings.Trim(s, " -_"))
	switch s {
	case "", "maj", "major", "ionian":
		return model.ModeMajor, nil
	case "min", "minor", "aeolian":
		return model.ModeMinor, nil
	default:
		return "", eris.Errorf("unrecognized mode %q", s)
	}
}

// parseTempo coerces a raw tempo estimate value to a float64 BPM.
func parseTempo(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, eris.Wrapf(err, "consensus: parse tempo %q", v)
		}
		return f, nil
	default:
		return 0, eris.Errorf("consensus: unsupported tempo value type %T", raw)
	}
}
