package cron

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var ErrInvalidCronExpression = errors.New("invalid cron expression")

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Schedule is a parsed round schedule. Expressions use the five standard
// fields or a descriptor such as "@hourly" or "@every 10m", optionally
// prefixed with "CRON_TZ=<zone> ".
type Schedule struct {
	expr string
	spec cron.Schedule
}

func Parse(expr string) (*Schedule, error) {
	if expr == "" {
		return nil, ErrInvalidCronExpression
	}

	spec, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %s", ErrInvalidCronExpression, expr, err)
	}

	return &Schedule{
		expr: expr,
		spec: spec,
	}, nil
}

func Validate(expr string) error {
	_, err := Parse(expr)

	return err
}

func (s *Schedule) String() string {
	return s.expr
}

// Next returns the first activation strictly after from, or the zero time for
// a nil schedule.
func (s *Schedule) Next(from time.Time) time.Time {
	if s == nil || s.spec == nil {
		return time.Time{}
	}

	return s.spec.Next(from)
}
