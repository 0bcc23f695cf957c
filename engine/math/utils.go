package math

import (
	m "math"

	"golang.org/x/exp/constraints"
)

const (
	/** @brief An approximate representation of PI. */
	K_PI float32 = 3.14159265358979323846
	/** @brief An approximate representation of PI divided by 2. */
	K_HALF_PI float32 = 0.5 * K_PI
	/** @brief A multiplier used to convert degrees to radians. */
	K_DEG2RAD_MULTIPLIER float32 = K_PI / 180.0
	/** @brief A multiplier used to convert radians to degrees. */
	K_RAD2DEG_MULTIPLIER float32 = 180.0 / K_PI
	/** @brief Smallest positive number where 1.0 + FLOAT_EPSILON != 0 */
	K_FLOAT_EPSILON float32 = 1.192092896e-07
)

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// Lerp linearly interpolates between a and b.
func Lerp[T constraints.Float](a, b, t T) T {
	return a + (b-a)*t
}

// Fract returns the fractional part of x, always in [0, 1).
func Fract(x float32) float32 {
	return x - Floor(x)
}

func Floor(x float32) float32 {
	return float32(m.Floor(float64(x)))
}

func Sqrt(x float32) float32 {
	return float32(m.Sqrt(float64(x)))
}

func Abs(x float32) float32 {
	return float32(m.Abs(float64(x)))
}

func Exp(x float32) float32 {
	return float32(m.Exp(float64(x)))
}

func Log(x float32) float32 {
	return float32(m.Log(float64(x)))
}

func Pow(x, y float32) float32 {
	return float32(m.Pow(float64(x), float64(y)))
}

func Sin(x float32) float32 {
	return float32(m.Sin(float64(x)))
}

func Cos(x float32) float32 {
	return float32(m.Cos(float64(x)))
}

func Tan(x float32) float32 {
	return float32(m.Tan(float64(x)))
}

/**
 * @brief Converts provided degrees to radians.
 *
 * @param degrees The degrees to be converted.
 * @return The amount in radians.
 */
func DegToRad(degrees float32) float32 {
	return degrees * K_DEG2RAD_MULTIPLIER
}
