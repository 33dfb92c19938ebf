package timing

import (
	"fmt"
	"math/big"
	"time"
)

// Rational is an immutable exact rational number.
// Every operation returns a new value; the zero value is 0.
type Rational struct {
	r *big.Rat
}

// NewRational creates a new rational number
func NewRational(num, den int64) Rational {
	if den == 0 {
		den = 1
	}
	return Rational{r: big.NewRat(num, den)}
}

// FromInt returns n as a rational
func FromInt(n int64) Rational {
	return Rational{r: new(big.Rat).SetInt64(n)}
}

// FromTime returns the exact number of seconds since the Unix epoch.
func FromTime(t time.Time) Rational {
	secs := new(big.Rat).SetInt64(t.Unix())
	nanos := big.NewRat(int64(t.Nanosecond()), int64(time.Second))
	return Rational{r: secs.Add(secs, nanos)}
}

// FromDuration returns d in seconds.
func FromDuration(d time.Duration) Rational {
	return Rational{r: big.NewRat(int64(d), int64(time.Second))}
}

// ParseRational accepts "a/b", integer and decimal notation.
func ParseRational(s string) (Rational, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return Rational{}, fmt.Errorf("invalid rational %q", s)
	}
	return Rational{r: r}, nil
}

func (a Rational) rat() *big.Rat {
	if a.r == nil {
		return new(big.Rat)
	}
	return a.r
}

// Add returns a+b
func (a Rational) Add(b Rational) Rational {
	return Rational{r: new(big.Rat).Add(a.rat(), b.rat())}
}

// Sub returns a-b
func (a Rational) Sub(b Rational) Rational {
	return Rational{r: new(big.Rat).Sub(a.rat(), b.rat())}
}

// Mul returns a*b
func (a Rational) Mul(b Rational) Rational {
	return Rational{r: new(big.Rat).Mul(a.rat(), b.rat())}
}

// Quo returns a/b. It panics if b is zero.
func (a Rational) Quo(b Rational) Rational {
	return Rational{r: new(big.Rat).Quo(a.rat(), b.rat())}
}

// Invert returns the inverted rational (den/num). It panics if a is zero.
func (a Rational) Invert() Rational {
	return Rational{r: new(big.Rat).Inv(a.rat())}
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a Rational) Cmp(b Rational) int {
	return a.rat().Cmp(b.rat())
}

// Sign returns -1, 0 or +1.
func (a Rational) Sign() int {
	return a.rat().Sign()
}

// IsInt reports whether the denominator is 1.
func (a Rational) IsInt() bool {
	return a.rat().IsInt()
}

// Floor returns the greatest integer not above a.
func (a Rational) Floor() Rational {
	// big.Rat keeps the denominator positive, so Euclidean division is floor division.
	q := new(big.Int).Div(a.rat().Num(), a.rat().Denom())
	return Rational{r: new(big.Rat).SetInt(q)}
}

// Ceil returns the least integer not below a.
func (a Rational) Ceil() Rational {
	q, m := new(big.Int).DivMod(a.rat().Num(), a.rat().Denom(), new(big.Int))
	if m.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return Rational{r: new(big.Rat).SetInt(q)}
}

// Round rounds to the nearest integer, halves away from negative infinity.
func (a Rational) Round() Rational {
	return a.Add(NewRational(1, 2)).Floor()
}

// Int64 returns the integer part of a truncated towards negative infinity.
// The result is undefined if it does not fit in an int64.
func (a Rational) Int64() int64 {
	return a.Floor().rat().Num().Int64()
}

// Float64 returns the nearest floating point value; for display only.
func (a Rational) Float64() float64 {
	f, _ := a.rat().Float64()
	return f
}

// FloatString returns a decimal string rounded to prec digits.
func (a Rational) FloatString(prec int) string {
	return a.rat().FloatString(prec)
}

// Duration converts seconds to a time.Duration, truncated to nanoseconds.
func (a Rational) Duration() time.Duration {
	return time.Duration(a.Mul(FromInt(int64(time.Second))).Int64())
}

// String returns "num/den", or "num" for integers.
func (a Rational) String() string {
	return a.rat().RatString()
}

// Common time bases
var (
	// RTPVideoClock is the 90 kHz RTP media clock used by video payloads.
	RTPVideoClock = FromInt(90000)

	FrameRate24 = NewRational(24, 1)
	FrameRate25 = NewRational(25, 1)
	FrameRate30 = NewRational(30, 1)
	FrameRate50 = NewRational(50, 1)
	FrameRate60 = NewRational(60, 1)

	// NTSC frame rates
	FrameRate23_976 = NewRational(24000, 1001)
	FrameRate29_97  = NewRational(30000, 1001)
	FrameRate59_94  = NewRational(60000, 1001)
)
