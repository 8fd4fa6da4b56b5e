package report

import "time"

// regionalZone is the fixed +05:30 offset all reporting days are computed in.
var regionalZone = time.FixedZone("UTC+05:30", 5*60*60+30*60)

// DateLayout is the layout of DailyReport.Date.
const DateLayout = "2006-01-02"

// RegionalZone returns the fixed-offset location used for civil days.
func RegionalZone() *time.Location { return regionalZone }

// CivilTime shifts an instant into the regional reporting offset.
func CivilTime(t time.Time) time.Time { return t.In(regionalZone) }

// CivilDate is the civil day for regional reporting that contains the instant t.
func CivilDate(t time.Time) string { return CivilTime(t).Format(DateLayout) }

// CivilHour is the hour of day of t in the regional reporting offset.
func CivilHour(t time.Time) int { return CivilTime(t).Hour() }

// ParseCivilDate validates a DailyReport.Date value.
func ParseCivilDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, regionalZone)
}
