package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

// sinceWindows are the history windows the API accepts.
var sinceWindows = map[string]func(time.Time) time.Time{
	"1m": func(t time.Time) time.Time { return t.AddDate(0, -1, 0) },
	"3m": func(t time.Time) time.Time { return t.AddDate(0, -3, 0) },
	"6m": func(t time.Time) time.Time { return t.AddDate(0, -6, 0) },
	"1y": func(t time.Time) time.Time { return t.AddDate(-1, 0, 0) },
}

// ParseSince turns a window name into a unix cutoff relative to now. "" and
// "all" mean no cutoff (0).
func ParseSince(window string, now time.Time) (int64, error) {
	window = strings.ToLower(strings.TrimSpace(window))
	if window == "" || window == "all" {
		return 0, nil
	}
	back, ok := sinceWindows[window]
	if !ok {
		return 0, fmt.Errorf("since %q (want 1m, 3m, 6m, 1y or all): %w", window, domain.ErrInvalidInput)
	}
	return back(now).Unix(), nil
}
