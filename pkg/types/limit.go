package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// UnlimitedSentinel is how an unlimited Limit is persisted in integer columns.
const UnlimitedSentinel int64 = -1

const unlimitedJSON = "unlimited"

// Limit is either a finite non-negative ceiling or unlimited. The zero value is
// Finite(0), which blocks every creation.
type Limit struct {
	max       int64
	unlimited bool
}

func Finite(n int64) Limit {
	if n < 0 {
		n = 0
	}
	return Limit{max: n}
}

func Unlimited() Limit {
	return Limit{unlimited: true}
}

// LimitFromStored converts a persisted column value. Only the sentinel means
// unlimited; any other negative value is treated as a zero ceiling.
func LimitFromStored(v int64) Limit {
	if v == UnlimitedSentinel {
		return Unlimited()
	}
	return Finite(v)
}

// Stored returns the column representation.
func (l Limit) Stored() int64 {
	if l.unlimited {
		return UnlimitedSentinel
	}
	return l.max
}

func (l Limit) IsUnlimited() bool {
	return l.unlimited
}

// Max returns the finite ceiling and false when unlimited.
func (l Limit) Max() (int64, bool) {
	if l.unlimited {
		return 0, false
	}
	return l.max, true
}

// Allows reports whether one more resource may be created given current usage.
func (l Limit) Allows(current int64) bool {
	if l.unlimited {
		return true
	}
	return current < l.max
}

// Exceeded reports whether current usage is already above the ceiling.
func (l Limit) Exceeded(current int64) bool {
	if l.unlimited {
		return false
	}
	return current > l.max
}

// Percentage reports present utilization (current/limit*100) rounded to two
// decimals. It is undefined for unlimited limits. A zero ceiling reads as 100.
func (l Limit) Percentage(current int64) (float64, bool) {
	if l.unlimited {
		return 0, false
	}
	if l.max == 0 {
		return 100, true
	}
	pct := float64(current) / float64(l.max) * 100
	return math.Round(pct*100) / 100, true
}

func (l Limit) String() string {
	if l.unlimited {
		return unlimitedJSON
	}
	return fmt.Sprintf("%d", l.max)
}

// MarshalJSON renders finite limits as numbers and unlimited as "unlimited".
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.unlimited {
		return json.Marshal(unlimitedJSON)
	}
	return json.Marshal(l.max)
}

// UnmarshalJSON accepts a number, -1 or the string "unlimited".
func (l *Limit) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte(`"`+unlimitedJSON+`"`)) {
		*l = Unlimited()
		return nil
	}
	var n int64
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("limit must be a non-negative integer, -1 or %q", unlimitedJSON)
	}
	if n < UnlimitedSentinel {
		return fmt.Errorf("limit %d is invalid", n)
	}
	*l = LimitFromStored(n)
	return nil
}
