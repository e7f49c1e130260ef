package runtime

import (
	"os"
	"strconv"
	"strings"
)

// Tensor is a 2-D block of token ids (or mask bits) placed on a device.
type Tensor struct {
	Data   [][]int `json:"data"`
	Device string  `json:"device"`
}

// To returns the tensor placed on device. The data is shared.
func (t *Tensor) To(device string) *Tensor {
	if t == nil {
		return nil
	}
	return &Tensor{Data: t.Data, Device: device}
}

// Batch is a padded, tokenized batch ready for the runtime. InputIDs and
// AttentionMask are tensor-valued; the remaining fields describe the batch
// and never move.
type Batch struct {
	InputIDs      *Tensor
	AttentionMask *Tensor
	// Lengths holds the unpadded token count of each row.
	Lengths []int
	// PaddingSide is "left" or "right".
	PaddingSide string
}

// Size is the number of rows.
func (b Batch) Size() int {
	if b.InputIDs == nil {
		return 0
	}
	return len(b.InputIDs.Data)
}

// To moves every tensor field onto device; other fields pass through.
func (b Batch) To(device string) Batch {
	b.InputIDs = b.InputIDs.To(device)
	b.AttentionMask = b.AttentionMask.To(device)
	return b
}

// ActiveDevice is the device this process feeds inputs to. An explicit
// setting wins; otherwise the launcher's LOCAL_RANK picks the accelerator.
func ActiveDevice(configured string) string {
	if d := strings.TrimSpace(configured); d != "" {
		return d
	}
	rank := 0
	if v, err := strconv.Atoi(os.Getenv("LOCAL_RANK")); err == nil && v >= 0 {
		rank = v
	}
	return "cuda:" + strconv.Itoa(rank)
}
