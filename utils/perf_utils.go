package utils

import (
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// SlowThreshold is the duration above which LogDuration reports at warn level.
var SlowThreshold = 5 * time.Second

// LogDuration logs how long a stage took since start. Stages slower than
// SlowThreshold are reported as warnings.
func LogDuration(stage string, start time.Time, args ...interface{}) time.Duration {
	duration := time.Since(start)
	switch {
	case duration > SlowThreshold && len(args) > 0:
		log.Warnf("%s was slow: %v with args %v", stage, duration, args)
	case duration > SlowThreshold:
		log.Warnf("%s was slow: %v", stage, duration)
	case len(args) > 0:
		log.Debugf("%s took %v with args %v", stage, duration, args)
	default:
		log.Debugf("%s took %v", stage, duration)
	}
	return duration
}
