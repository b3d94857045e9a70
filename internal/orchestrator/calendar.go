package orchestrator

import "time"

// shanghaiLocation is loaded once; trading-hour gating is meaningless in
// any other timezone since every watched symbol is a SH/SZ listing
// (spec §3's symbol pattern ^[036]\d{5}\.(SH|SZ)$).
var shanghaiLocation = mustLoadShanghai()

func mustLoadShanghai() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return time.FixedZone("CST", 8*60*60)
	}
	return loc
}

// IsTradeTime reports whether now falls within the Shanghai/Shenzhen
// continuous trading sessions: 09:30-11:30 and 13:00-15:00, Monday
// through Friday. It does not account for exchange holidays; the spec
// does not require a maintained holiday calendar, and this is a simpler
// approximation than implementing one from scratch.
func IsTradeTime(now time.Time) bool {
	local := now.In(shanghaiLocation)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	minutesOfDay := local.Hour()*60 + local.Minute()
	morning := minutesOfDay >= 9*60+30 && minutesOfDay < 11*60+30
	afternoon := minutesOfDay >= 13*60 && minutesOfDay < 15*60
	return morning || afternoon
}
