package helpers

import "time"

func IntSecondDefault(x int, def time.Duration) time.Duration {
	if x <= 0 {
		return def
	}
	return time.Duration(x) * time.Second
}

func IntMillisecondDefault(x int, def time.Duration) time.Duration {
	if x <= 0 {
		return def
	}
	return time.Duration(x) * time.Millisecond
}

// HzInterval converts send frequency to period. hz must be > 0.
func HzInterval(hz float64) time.Duration {
	return time.Duration(float64(time.Second) / hz)
}
