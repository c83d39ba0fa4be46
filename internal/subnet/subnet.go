package subnet

import (
	"math/big"
	"net/netip"
	"sort"
)

// block is a normalized network: host bits cleared, address held as a
// big.Int so the same merge/contains logic works for both v4 (32 bits)
// and v6 (128 bits).
type block struct {
	addr   *big.Int
	prefix int
	bits   int
}

func (b block) version() int {
	if b.bits == 32 {
		return 4
	}
	return 6
}

func (b block) String() string {
	addr := bigToAddr(b.addr, b.bits)
	pfx := netip.PrefixFrom(addr, b.prefix)
	return pfx.String()
}

// ParseAndCollapse validates each candidate CIDR string and coalesces the
// valid ones into the minimal covering set. Invalid entries are reported
// separately and never fail the whole batch.
func ParseAndCollapse(raw []string) (normalized []string, invalid []string) {
	blocks := make([]block, 0, len(raw))
	for _, s := range raw {
		b, ok := parseNetwork(s)
		if !ok {
			invalid = append(invalid, s)
			continue
		}
		blocks = append(blocks, b)
	}

	collapsed := collapse(blocks)
	normalized = make([]string, 0, len(collapsed))
	for _, b := range collapsed {
		normalized = append(normalized, b.String())
	}
	return normalized, invalid
}

// parseNetwork parses s as an IP network. Set host bits are masked away
// rather than rejected (non-strict, matching Python's ipaddress.ip_network
// with strict=False).
func parseNetwork(s string) (block, bool) {
	pfx, err := netip.ParsePrefix(s)
	if err != nil {
		// Allow a bare IP address, treated as a host route.
		addr, addrErr := netip.ParseAddr(s)
		if addrErr != nil {
			return block{}, false
		}
		bits := addr.BitLen()
		pfx = netip.PrefixFrom(addr, bits)
	}
	masked := pfx.Masked()
	addr := masked.Addr()
	return block{
		addr:   addrToBig(addr),
		prefix: masked.Bits(),
		bits:   addr.BitLen(),
	}, true
}

// Prepare expands v4 networks wider than chunkPrefixV4 (shorter prefix) into
// chunkPrefixV4-sized pieces. v6 networks and chunking-disabled input pass
// through unchanged. hostCount is the sum of addresses across normalized
// (pre-chunk) input and is invariant under chunking.
func Prepare(normalized []string, chunkPrefixV4 int, chunkEnabled bool) (workItems []string, hostCount *big.Int) {
	hostCount = big.NewInt(0)
	for _, s := range normalized {
		b, ok := parseNetwork(s)
		if !ok {
			continue
		}
		hostCount.Add(hostCount, addressCount(b))

		if chunkEnabled && b.bits == 32 && b.prefix < chunkPrefixV4 {
			workItems = append(workItems, expand(b, chunkPrefixV4)...)
			continue
		}
		workItems = append(workItems, b.String())
	}
	return workItems, hostCount
}

// addressCount returns 2^(bits-prefix) as a big.Int.
func addressCount(b block) *big.Int {
	n := new(big.Int).Lsh(big.NewInt(1), uint(b.bits-b.prefix))
	return n
}

// expand subdivides b into equal new-prefix sized subnets.
func expand(b block, newPrefix int) []string {
	count := 1 << uint(newPrefix-b.prefix)
	step := new(big.Int).Lsh(big.NewInt(1), uint(b.bits-newPrefix))

	out := make([]string, 0, count)
	cur := new(big.Int).Set(b.addr)
	for i := 0; i < count; i++ {
		child := block{addr: new(big.Int).Set(cur), prefix: newPrefix, bits: b.bits}
		out = append(out, child.String())
		cur.Add(cur, step)
	}
	return out
}

// collapse removes contained networks and merges adjacent siblings until
// fixed point, mirroring Python's ipaddress.collapse_addresses.
func collapse(blocks []block) []block {
	blocks = dedupe(blocks)

	for {
		before := len(blocks)
		blocks = removeContained(blocks)
		var mergedAny bool
		blocks, mergedAny = mergeSiblings(blocks)
		if !mergedAny && len(blocks) == before {
			break
		}
	}

	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].bits != blocks[j].bits {
			return blocks[i].bits < blocks[j].bits
		}
		if c := blocks[i].addr.Cmp(blocks[j].addr); c != 0 {
			return c < 0
		}
		return blocks[i].prefix < blocks[j].prefix
	})
	return blocks
}

func dedupe(blocks []block) []block {
	seen := make(map[string]bool, len(blocks))
	out := make([]block, 0, len(blocks))
	for _, b := range blocks {
		key := keyOf(b)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, b)
	}
	return out
}

func keyOf(b block) string {
	return b.addr.String() + "/" + itoa(b.prefix) + "/" + itoa(b.bits)
}

func itoa(n int) string {
	return big.NewInt(int64(n)).String()
}

// removeContained drops any block that is covered by a broader block also
// present in the set.
func removeContained(blocks []block) []block {
	out := make([]block, 0, len(blocks))
	for i, b := range blocks {
		contained := false
		for j, other := range blocks {
			if i == j || other.bits != b.bits {
				continue
			}
			if other.prefix < b.prefix && maskTo(b.addr, b.bits, other.prefix).Cmp(other.addr) == 0 {
				contained = true
				break
			}
		}
		if !contained {
			out = append(out, b)
		}
	}
	return out
}

// mergeSiblings finds pairs of equal-prefix, address-adjacent blocks that
// together form their shared parent network, and replaces them with that
// parent. Returns the (possibly reduced) set and whether any merge occurred.
func mergeSiblings(blocks []block) ([]block, bool) {
	byGroup := make(map[string][]block)
	for _, b := range blocks {
		g := itoa(b.bits) + "/" + itoa(b.prefix)
		byGroup[g] = append(byGroup[g], b)
	}

	mergedAny := false
	result := make([]block, 0, len(blocks))
	for _, group := range byGroup {
		sort.Slice(group, func(i, j int) bool { return group[i].addr.Cmp(group[j].addr) < 0 })

		used := make([]bool, len(group))
		for i := 0; i < len(group); i++ {
			if used[i] {
				continue
			}
			if i+1 < len(group) && !used[i+1] && isBuddy(group[i], group[i+1]) {
				parent := block{
					addr:   new(big.Int).Set(group[i].addr),
					prefix: group[i].prefix - 1,
					bits:   group[i].bits,
				}
				result = append(result, parent)
				used[i] = true
				used[i+1] = true
				mergedAny = true
				continue
			}
			result = append(result, group[i])
		}
	}
	return result, mergedAny
}

// isBuddy reports whether a and b are the two halves of the same
// (prefix-1)-length parent network.
func isBuddy(a, b block) bool {
	if a.prefix != b.prefix || a.prefix == 0 {
		return false
	}
	step := new(big.Int).Lsh(big.NewInt(1), uint(a.bits-a.prefix))
	expected := new(big.Int).Add(a.addr, step)
	if expected.Cmp(b.addr) != 0 {
		return false
	}
	// a must be aligned on the parent's (prefix-1) boundary.
	return maskTo(a.addr, a.bits, a.prefix-1).Cmp(a.addr) == 0
}

// maskTo clears the host bits of x below the given prefix length.
func maskTo(x *big.Int, bits, prefix int) *big.Int {
	hostBits := uint(bits - prefix)
	out := new(big.Int).Rsh(x, hostBits)
	out.Lsh(out, hostBits)
	return out
}

func addrToBig(addr netip.Addr) *big.Int {
	return new(big.Int).SetBytes(addr.AsSlice())
}

func bigToAddr(x *big.Int, bits int) netip.Addr {
	buf := make([]byte, bits/8)
	x.FillBytes(buf)
	addr, _ := netip.AddrFromSlice(buf)
	return addr
}
