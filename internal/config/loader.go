package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures environment driven configuration values for the alarm daemon.
type Config struct {
	HTTPPort        int
	SQLitePath      string
	Timezone        string
	Lookahead       int
	DayCap          int
	PlatformIDMax   int
	HolidaySeedPath string
	RefreshCron     string
}

// Load parses configuration values from the current process environment.
//
// The loader applies sensible defaults for optional fields while validating
// supplied values and reporting localized error messages for bad entries.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:      8080,
		SQLitePath:    "alarm.db",
		Timezone:      "Asia/Tokyo",
		Lookahead:     5,
		DayCap:        60,
		PlatformIDMax: 256,
		RefreshCron:   "0 3 * * *",
	}

	invalid := make([]string, 0, 2)

	if portValue := strings.TrimSpace(os.Getenv("ALARM_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "ALARM_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if path := strings.TrimSpace(os.Getenv("ALARM_SQLITE_PATH")); path != "" {
		cfg.SQLitePath = path
	}

	if tz := strings.TrimSpace(os.Getenv("ALARM_TIMEZONE")); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			invalid = append(invalid, "ALARM_TIMEZONE")
		} else {
			cfg.Timezone = tz
		}
	}

	if lookaheadValue := strings.TrimSpace(os.Getenv("ALARM_LOOKAHEAD")); lookaheadValue != "" {
		lookahead, err := strconv.Atoi(lookaheadValue)
		if err != nil || lookahead <= 0 {
			invalid = append(invalid, "ALARM_LOOKAHEAD")
		} else {
			cfg.Lookahead = lookahead
		}
	}

	if dayCapValue := strings.TrimSpace(os.Getenv("ALARM_DAY_CAP")); dayCapValue != "" {
		dayCap, err := strconv.Atoi(dayCapValue)
		if err != nil || dayCap <= 0 {
			invalid = append(invalid, "ALARM_DAY_CAP")
		} else {
			cfg.DayCap = dayCap
		}
	}

	if maxValue := strings.TrimSpace(os.Getenv("ALARM_PLATFORM_ID_MAX")); maxValue != "" {
		max, err := strconv.Atoi(maxValue)
		if err != nil || max <= 0 {
			invalid = append(invalid, "ALARM_PLATFORM_ID_MAX")
		} else {
			cfg.PlatformIDMax = max
		}
	}

	if seedPath := strings.TrimSpace(os.Getenv("ALARM_HOLIDAY_SEED")); seedPath != "" {
		cfg.HolidaySeedPath = seedPath
	}

	if cron := strings.TrimSpace(os.Getenv("ALARM_REFRESH_CRON")); cron != "" {
		cfg.RefreshCron = cron
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
