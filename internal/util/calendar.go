package util

import "time"

// nseLocation is Asia/Kolkata (IST, UTC+5:30). Loaded once; IST has no
// daylight saving transitions, so a fixed zone is a safe fallback when the
// tz database is unavailable.
var nseLocation = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.FixedZone("IST", 5*3600+1800)
	}
	return loc
}()

// NSECalendar provides market-hours awareness for the National Stock
// Exchange equity segment. Exchange holidays are not modelled; callers
// fetching data on a holiday simply receive empty candle sets.
type NSECalendar struct{}

// NewNSECalendar creates an NSECalendar.
func NewNSECalendar() *NSECalendar {
	return &NSECalendar{}
}

// IsMarketOpen returns whether the regular NSE session (9:15-15:30 IST,
// Monday to Friday) is open at time t.
func (c *NSECalendar) IsMarketOpen(t time.Time) bool {
	t = t.In(nseLocation)

	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	minutes := t.Hour()*60 + t.Minute()
	return minutes >= 9*60+15 && minutes < 15*60+30
}

// LastTradingDay returns the most recent weekday whose session has fully
// closed as of t. During a live session the previous trading day is
// returned, so historical pulls only cover finished sessions.
func (c *NSECalendar) LastTradingDay(t time.Time) time.Time {
	t = t.In(nseLocation)

	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, nseLocation)
	if t.Hour()*60+t.Minute() < 15*60+30 {
		day = day.AddDate(0, 0, -1)
	}

	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, -1)
	}

	return day
}
