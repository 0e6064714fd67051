package exports

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/framecut/framecut-backend/internal/apperr"
)

// Progress is a percentage in fixed point hundredths: 2550 is 25.50%.
type Progress int64

const (
	ProgressZero     Progress = 0
	ProgressComplete Progress = 10000
)

// Percent builds a Progress from a whole percentage.
func Percent(n int) Progress {
	return Progress(n * 100)
}

// ParseProgress converts a float percentage, rounding half to even at the second
// decimal place. Values outside [0, 100] are rejected.
func ParseProgress(f float64) (Progress, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, apperr.Validation("progress must be a finite number")
	}
	p := Progress(math.RoundToEven(f * 100))
	if err := p.validate(); err != nil {
		return 0, err
	}
	return p, nil
}

func (p Progress) validate() error {
	if p < ProgressZero || p > ProgressComplete {
		return apperr.Validation("progress %s is outside 0.00..100.00", p)
	}
	return nil
}

func (p Progress) Float() float64 {
	return float64(p) / 100
}

func (p Progress) String() string {
	sign := ""
	v := int64(p)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

func (p Progress) MarshalJSON() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Progress) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return apperr.Validation("progress must be a number")
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return apperr.Validation("progress must be a number")
	}
	v, err := ParseProgress(f)
	if err != nil {
		return err
	}
	*p = v
	return nil
}
