package mcs51

import "github.com/xyproto/retarget/internal/ir"

// Direct-address internal RAM bounds (spec §4.5): 0x00-0x07 is bank 0's
// R0..R7 working registers, so VAR and BUFFER slots start at 0x08;
// anything at or past 0x80 belongs to the SFR/bit-addressable regions
// and is out of bounds for a flat byte allocator.
const (
	ramBase  = 0x08
	ramLimit = 0x80
)

// ramAllocator hands out consecutive direct-address RAM bytes for VAR
// and BUFFER slots. Both share the same allocation space on this
// backend (spec §4.5: "BUFFER name,n reserves n consecutive bytes" in
// the same direct-RAM region variables occupy).
type ramAllocator struct {
	next int
}

func newRAMAllocator() *ramAllocator { return &ramAllocator{next: ramBase} }

// alloc reserves n consecutive bytes and returns their starting direct
// address, failing once the allocator runs past ramLimit.
func (r *ramAllocator) alloc(n, line, col int) (int, error) {
	if r.next+n > ramLimit {
		return 0, ir.Fatalf(backendName, ir.KindRAMExhausted, line, col,
			"8051 direct RAM exhausted: need %d byte(s) at 0x%02X, limit 0x%02X", n, r.next, ramLimit)
	}
	addr := r.next
	r.next += n
	return addr, nil
}
