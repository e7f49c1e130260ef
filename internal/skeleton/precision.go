package skeleton

import (
	"fmt"
	"strings"
)

// Precision is the numeric type placeholder tensors are declared with.
type Precision string

const (
	FP16 Precision = "fp16"
	BF16 Precision = "bf16"
	FP32 Precision = "fp32"
)

// ParsePrecision accepts the common spellings (fp16, float16, half, ...).
func ParsePrecision(s string) (Precision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fp16", "float16", "half":
		return FP16, nil
	case "bf16", "bfloat16":
		return BF16, nil
	case "fp32", "float32", "float":
		return FP32, nil
	default:
		return "", fmt.Errorf("unsupported precision: %q", s)
	}
}

// Bytes is the storage size of one element.
func (p Precision) Bytes() int64 {
	switch p {
	case FP32:
		return 4
	case FP16, BF16:
		return 2
	default:
		return 0
	}
}

func (p Precision) String() string { return string(p) }
