package utils

import (
	"strconv"
	"strings"
	"time"

	"github.com/efecan0/trading-gateway-go/internal/logger"
)

var timeUnits = []struct {
	suffix string
	unit   time.Duration
}{
	{"ms", time.Millisecond},
	{"d", 24 * time.Hour},
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
}

// ParseStringTime parses the duration strings in the gateway configuration:
// "250ms", "30s", "5m", "12h", "7d". Retry and TTL windows are sub-second,
// so "ms" must win over a bare "s" suffix, and "d" is accepted for archive
// retention; composite values fall through to time.ParseDuration. Unparsable
// input logs and returns 0 so a bad line degrades to the caller's default.
func ParseStringTime(timeString string) time.Duration {
	timeString = strings.TrimSpace(strings.ToLower(timeString))
	if timeString == "" {
		return 0
	}

	for _, u := range timeUnits {
		if !strings.HasSuffix(timeString, u.suffix) {
			continue
		}
		number, err := strconv.Atoi(strings.TrimSuffix(timeString, u.suffix))
		if err != nil {
			break
		}
		return time.Duration(number) * u.unit
	}

	if d, err := time.ParseDuration(timeString); err == nil {
		return d
	}

	logger.ErrorF("invalid time format: %s", timeString)
	return 0
}
