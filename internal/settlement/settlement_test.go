package settlement

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShareOf(t *testing.T) {
	cases := []struct {
		name     string
		totalFee int64
		members  int64
		want     int64
	}{
		{"even split", 1000, 4, 250},
		{"rounds up", 1000, 3, 334},
		{"single member pays all", 1000, 1, 1000},
		{"zero fee", 0, 3, 0},
		{"fee smaller than members", 2, 5, 1},
		{"zero members", 1000, 0, 0},
		{"negative members", 1000, -2, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ShareOf(tc.totalFee, tc.members))
		})
	}
}

func TestRefundOf(t *testing.T) {
	cases := []struct {
		name    string
		fee     int64
		minimum int64
		actual  int64
		want    int64
	}{
		{"more members than minimum", 1000, 3, 5, 134}, // 334 - 200
		{"exactly minimum", 1000, 2, 2, 0},
		{"doubled membership", 800, 2, 4, 200}, // 400 - 200
		{"zero fee", 0, 2, 4, 0},
		{"never negative", 1000, 5, 3, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, RefundOf(tc.fee, tc.minimum, tc.actual))
		})
	}
}

// The invariant behind the refund: charging the initial share and
// refunding the difference leaves each member paying exactly the
// actual share.
func TestRefundReconciles(t *testing.T) {
	for fee := int64(0); fee <= 2000; fee += 137 {
		for minimum := int64(1); minimum <= 6; minimum++ {
			for actual := minimum; actual <= 8; actual++ {
				paid := ShareOf(fee, minimum) - RefundOf(fee, minimum, actual)
				require.Equal(t, ShareOf(fee, actual), paid,
					"fee=%d min=%d actual=%d", fee, minimum, actual)
			}
		}
	}
}
