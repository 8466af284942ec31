package ledger

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// maxNumberAttempts — сколько раз генерируем номер заново при коллизии.
const maxNumberAttempts = 10

// NewOrderNumber формирует номер вида MB{yyyymmdd}{4 цифры времени}{2 случайные цифры}.
func NewOrderNumber(now time.Time) string {
	return fmt.Sprintf("MB%s%04d%02d", now.Format("20060102"), now.UnixMilli()%10000, rand.IntN(100))
}
