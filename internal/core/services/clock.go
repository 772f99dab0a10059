package services

import (
	"time"

	"github.com/vncsmyrnk/ideavote/internal/core/ports"
)

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

var _ ports.Clock = SystemClock{}
