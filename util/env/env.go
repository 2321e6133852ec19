package env

import (
	"os"
	"strconv"
	"time"
)

func GetOrDefault(name, def string) string {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return def
	}
	return v
}

func IntOrDefault(name string, def int) int {
	n, err := strconv.Atoi(GetOrDefault(name, ""))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func DurationOrDefault(name string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(GetOrDefault(name, ""))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
