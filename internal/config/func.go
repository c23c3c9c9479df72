package config

import (
	"os"
	"strconv"
	"time"
)

func initUint(variable *uint, name string, defaultValue uint) {
	str := os.Getenv(name)
	val, err := strconv.ParseUint(str, 10, 32)
	if len(str) == 0 || err != nil {
		*variable = defaultValue
		return
	}
	*variable = uint(val)
}

func initString(variable *string, name string, defaultValue string) {
	str := os.Getenv(name)
	if len(str) == 0 {
		*variable = defaultValue
		return
	}
	*variable = str
}

// initSeconds parses whole seconds and clamps them to [min, max] range
func initSeconds(variable *time.Duration, name string, defaultValue, min, max uint) {
	var secs uint
	initUint(&secs, name, defaultValue)

	if secs < min {
		secs = min
	} else if max > 0 && secs > max {
		secs = max
	}
	*variable = time.Duration(secs) * time.Second
}
