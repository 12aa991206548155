// Package times computes Shabbat time records for a location. The heavy
// lifting (astronomy, halachic rules) is delegated: Hebcal does it remotely,
// Weekly uses a fixed configured time.
package times

import (
	"context"
	"errors"

	"shabbatd/internal/model"
)

// ErrCalculation is wrapped by every Calculate failure.
var ErrCalculation = errors.New("shabbat time calculation failed")

// Calculator produces upcoming Shabbat time records.
type Calculator interface {
	Calculate(ctx context.Context, latitude, longitude float64, city string) ([]model.TimeRecord, error)
}
