package aqi

// Category is the health band an AQI value falls into.
type Category string

const (
	CategoryGood               Category = "good"
	CategoryModerate           Category = "moderate"
	CategoryUnhealthySensitive Category = "unhealthy-for-sensitive-groups"
	CategoryUnhealthy          Category = "unhealthy"
	CategoryVeryUnhealthy      Category = "very-unhealthy"
	CategoryHazardous          Category = "hazardous"
)

// Categorize maps an AQI value (0-500 scale) to its health band.
func Categorize(aqi int) Category {
	switch {
	case aqi <= 50:
		return CategoryGood
	case aqi <= 100:
		return CategoryModerate
	case aqi <= 150:
		return CategoryUnhealthySensitive
	case aqi <= 200:
		return CategoryUnhealthy
	case aqi <= 300:
		return CategoryVeryUnhealthy
	default:
		return CategoryHazardous
	}
}

// Advice returns the health guidance shown alongside a reading.
func (c Category) Advice() string {
	switch c {
	case CategoryGood:
		return "Air quality is good. Perfect for outdoor activities."
	case CategoryModerate:
		return "Air quality is moderate. Sensitive individuals should limit prolonged outdoor exposure."
	case CategoryUnhealthySensitive:
		return "Members of sensitive groups may experience health effects."
	case CategoryUnhealthy:
		return "Everyone may begin to experience health effects."
	default:
		return "Health warnings of emergency conditions. Everyone should avoid outdoor activities."
	}
}

// Assessment is a reading together with its health band, as served to clients.
type Assessment struct {
	Reading
	Category Category `json:"category"`
	Advice   string   `json:"advice"`
}

// Assess attaches the health band and advice to a reading.
func Assess(r Reading) Assessment {
	c := Categorize(r.AQI)
	return Assessment{Reading: r, Category: c, Advice: c.Advice()}
}
