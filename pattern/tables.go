package pattern

// ModeCount is the number of pattern modes swept by the pattern test.
const ModeCount = 15

// InvertedTableLen is the number of entries in each of the two tables used
// by modes 9 and 10.
const InvertedTableLen = 128

// basePattern is the 64-bit pattern cycled through by the inverted tables.
var basePattern = [16]uint64{
	0x0000000000000000, 0x0000000000000000,
	0xFFFFFFFFFFFFFFFF, 0x0000000000000000,
	0x0000000000000000, 0xFFFFFFFFFFFFFFFF,
	0x0000000000000000, 0xFFFFFFFFFFFFFFFF,
	0xFFFFFFFFFFFFFFFF, 0xFFFFFFFFFFFFFFFF,
	0x0000000000000000, 0xFFFFFFFFFFFFFFFF,
	0xFFFFFFFFFFFFFFFF, 0x00000000FFFFFFFF,
	0xFFFFFFFFFFFFFFFF, 0x00000000FFFFFFFF,
}

// invertMask flips one bit lane of every byte in a basePattern entry.
var invertMask = [8]uint64{
	0x0101010101010101, 0x0202020202020202,
	0x0404040404040404, 0x0808080808080808,
	0x1010101010101010, 0x2020202020202020,
	0x4040404040404040, 0x8080808080808080,
}

// testPatterns are the simple memory test rows. Modes 1 through 8 select the
// row with the same index, rows 0, 9, 10 and 11 are not reachable from the
// mode sweep.
var testPatterns = [12][4]uint64{
	{0xFFFF0000FFFF0000, 0xFFFF0000FFFF0000, 0xFFFF0000FFFF0000, 0xFFFF0000FFFF0000},
	{0x0000FFFF0000FFFF, 0x0000FFFF0000FFFF, 0x0000FFFF0000FFFF, 0x0000FFFF0000FFFF},
	{0xAAAA5555AAAA5555, 0xAAAA5555AAAA5555, 0xAAAA5555AAAA5555, 0xAAAA5555AAAA5555},
	{0x5555AAAA5555AAAA, 0x5555AAAA5555AAAA, 0x5555AAAA5555AAAA, 0x5555AAAA5555AAAA},
	{0x0000000000000000, 0x0000000000000000, 0x0000000000000000, 0x0000000000000000},
	{0xFFFFFFFFFFFFFFFF, 0xFFFFFFFFFFFFFFFF, 0xFFFFFFFFFFFFFFFF, 0xFFFFFFFFFFFFFFFF},
	{0xAAAAAAAAAAAAAAAA, 0xAAAAAAAAAAAAAAAA, 0xAAAAAAAAAAAAAAAA, 0xAAAAAAAAAAAAAAAA},
	{0x5555555555555555, 0x5555555555555555, 0x5555555555555555, 0x5555555555555555},
	{0x0000000000000000, 0xFFFFFFFFFFFFFFFF, 0x0000000000000000, 0xFFFFFFFFFFFFFFFF},
	{0xFFFFFFFFFFFFFFFF, 0x0000000000000000, 0xFFFFFFFFFFFFFFFF, 0x0000000000000000},
	{0x5555555555555555, 0xAAAAAAAAAAAAAAAA, 0x5555555555555555, 0xAAAAAAAAAAAAAAAA},
	{0xAAAAAAAAAAAAAAAA, 0x5555555555555555, 0xAAAAAAAAAAAAAAAA, 0x5555555555555555},
}

// InvertedTables builds the two tables used by modes 9 and 10. Entry i of the
// first table is basePattern[i%16], the second table is the same entry XORed
// with invertMask[(i/16)%8].
func InvertedTables() [2][InvertedTableLen]uint64 {
	var t [2][InvertedTableLen]uint64
	for i := 0; i < InvertedTableLen; i++ {
		base := basePattern[i&15]
		t[0][i] = base
		t[1][i] = base ^ invertMask[(i>>4)&0x07]
	}
	return t
}
