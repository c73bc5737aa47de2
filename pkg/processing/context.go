package processing

import (
	"fmt"
	"time"

	"github.com/systemstart/receiptflow/pkg/api"
	"github.com/systemstart/receiptflow/pkg/steps"
)

// ResolveDateRange returns the configured range, or the calendar month before
// now when none is configured.
func ResolveDateRange(now time.Time, cfg *api.DateRangeConfig) (steps.DateRange, error) {
	if cfg != nil {
		from, to, err := cfg.Parse()
		if err != nil {
			return steps.DateRange{}, fmt.Errorf("parsing date range: %w", err)
		}
		return steps.DateRange{From: from, To: to}, nil
	}

	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return steps.DateRange{
		From: firstOfMonth.AddDate(0, -1, 0),
		To:   firstOfMonth.AddDate(0, 0, -1),
	}, nil
}
