package utils

import "fmt"

// FormatTime renders milliseconds as M:SS, or --:-- when nothing was recorded.
func FormatTime(ms int64) string {
	if ms <= 0 {
		return "--:--"
	}
	totalSeconds := ms / 1000
	return fmt.Sprintf("%d:%02d", totalSeconds/60, totalSeconds%60)
}

// FormatTimeDetailed renders milliseconds as MM:SS.cc.
func FormatTimeDetailed(ms int64) string {
	totalSeconds := ms / 1000
	return fmt.Sprintf("%02d:%02d.%02d", totalSeconds/60, totalSeconds%60, (ms%1000)/10)
}
