package coordinator

import (
	"context"
	"time"
)

func ProcessDueRounds(ctx context.Context, rs RoundScheduler, now time.Time) error {
	return rs.(*roundScheduler).processDueRounds(ctx, now)
}
