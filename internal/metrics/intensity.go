package metrics

// Intensity is the shade bucket for a grid cell.
type Intensity string

const (
	IntensityNone      Intensity = "none"
	IntensityExcellent Intensity = "excellent"
	IntensityGood      Intensity = "good"
	IntensityModerate  Intensity = "moderate"
	IntensityWeak      Intensity = "weak"
	IntensityPoor      Intensity = "poor"
)

// Classify maps a day's rate to its intensity bucket.
func Classify(rate, totalClasses int) Intensity {
	switch {
	case totalClasses == 0:
		return IntensityNone
	case rate >= 95:
		return IntensityExcellent
	case rate >= 80:
		return IntensityGood
	case rate >= 60:
		return IntensityModerate
	case rate >= 40:
		return IntensityWeak
	default:
		return IntensityPoor
	}
}

// Intensity classifies the cell. Placeholders are always "none".
func (c Cell) Intensity() Intensity {
	if c.Placeholder() {
		return IntensityNone
	}
	return Classify(c.AttendanceRate, c.TotalClasses)
}
