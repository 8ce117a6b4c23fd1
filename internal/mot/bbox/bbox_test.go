package bbox

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversionsRoundTrip(t *testing.T) {
	t.Parallel()
	b := Box{X: 100, Y: 50, W: 40, H: 80}

	xyah := b.XYAH()
	assert.Equal(t, [4]float64{120, 90, 0.5, 80}, xyah)
	assert.Equal(t, b, FromXYAH(xyah))

	tlbr := b.TLBR()
	assert.Equal(t, [4]float64{100, 50, 140, 130}, tlbr)
	assert.Equal(t, b, FromTLBR(tlbr[0], tlbr[1], tlbr[2], tlbr[3]))

	cx, cy := b.Center()
	assert.Equal(t, 120.0, cx)
	assert.Equal(t, 90.0, cy)
	assert.Equal(t, 3200.0, b.Area())
}

func TestValid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		box  Box
		want bool
	}{
		{"normal", Box{0, 0, 10, 10}, true},
		{"negative origin ok", Box{-5, -5, 10, 10}, true},
		{"zero width", Box{0, 0, 0, 10}, false},
		{"negative height", Box{0, 0, 10, -1}, false},
		{"nan", Box{math.NaN(), 0, 10, 10}, false},
		{"inf", Box{0, 0, math.Inf(1), 10}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.box.Valid())
		})
	}
}

func TestIoU(t *testing.T) {
	t.Parallel()
	a := Box{0, 0, 10, 10}

	assert.InDelta(t, 1.0, IoU(a, a), 1e-12)
	assert.Equal(t, 0.0, IoU(a, Box{20, 20, 5, 5}))
	assert.Equal(t, 0.0, IoU(a, Box{10, 0, 10, 10}), "touching edges do not overlap")
	// Half overlap: inter 50, union 150.
	assert.InDelta(t, 1.0/3.0, IoU(a, Box{5, 0, 10, 10}), 1e-12)
	assert.Equal(t, IoU(a, Box{5, 0, 10, 10}), IoU(Box{5, 0, 10, 10}, a))
	assert.Equal(t, 0.0, IoU(Box{0, 0, 0, 0}, Box{0, 0, 0, 0}))
}
