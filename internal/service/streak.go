package service

import (
	"sort"

	"DeadOrNot/internal/model"
)

// CurrentStreak 从 today 往回数连续打卡天数，today 未打卡即为 0
func CurrentStreak(ledger DayLookup, today model.DayKey) int {
	streak := 0
	for day := today; ledger.IsCheckedIn(day); day = day.AddDays(-1) {
		streak++
	}
	return streak
}

// LongestStreak 历史最长连续打卡天数
func LongestStreak(days []model.DayKey) int {
	if len(days) == 0 {
		return 0
	}

	sorted := make([]model.DayKey, len(days))
	copy(sorted, days)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	longest, run := 1, 1
	for i := 1; i < len(sorted); i++ {
		switch sorted[i].Sub(sorted[i-1]) {
		case 0:
			continue
		case 1:
			run++
		default:
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}
