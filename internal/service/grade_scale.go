package service

import "math"

// ConvertTo4 maps a 10-scale score onto the 4 scale using the university
// conversion table. The 7.0..8.0 band interpolates linearly.
func ConvertTo4(score10 float64) float64 {
	s := score10
	switch {
	case s >= 8.5:
		return 4.0
	case s >= 8.0:
		return 3.7
	case s >= 7.0:
		return 3.0 + (s-7.0)*0.25
	case s >= 6.5:
		return 2.5
	case s >= 5.5:
		return 2.0
	case s >= 4.0:
		return 1.0
	default:
		return 0.0
	}
}

// LetterGrade maps a 4-scale score onto the display letter.
func LetterGrade(score4 float64) string {
	switch {
	case score4 >= 4.0:
		return "A"
	case score4 >= 3.7:
		return "A-"
	case score4 >= 3.5:
		return "B+"
	case score4 >= 3.0:
		return "B"
	case score4 >= 2.5:
		return "C+"
	case score4 >= 2.0:
		return "C"
	case score4 >= 1.0:
		return "D"
	default:
		return "F"
	}
}

// PassingScore4 is the minimum 4-scale score counting as a pass.
const PassingScore4 = 1.0

// round2 rounds to two decimals, as final 10-scale totals are stored.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
