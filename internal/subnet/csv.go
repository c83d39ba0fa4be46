package subnet

import (
	"encoding/csv"
	"io"
	"math/big"
	"net/netip"
	"os"
	"strings"
)

// DefaultTargets returns the built-in seed subnets carried over from the
// original scanner's hardcoded default list. The control plane never
// applies this automatically (an empty subnet list is always a 400); it
// exists for callers that want an explicit "scan the usual suspects"
// starting point.
func DefaultTargets() []string {
	return []string{
		"103.112.60.0/24",
		"62.115.0.0/16",
		"206.148.24.0/22",
		"99.82.128.0/18",
		"99.83.64.0/18",
		"4.0.0.0/9",
	}
}

// LoadCSV reads a subnet list from a CSV file. Each row is either a bare
// CIDR (optionally under a "cidr"/"subnet" header), or a startIP,endIP
// pair (optionally under a "startip","endip" header) which is summarized
// into the minimal set of covering CIDRs.
func LoadCSV(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseCSV(f)
}

// ParseCSV parses subnet rows from r; see LoadCSV for the accepted shapes.
func ParseCSV(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var subnets []string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(row) == 0 {
			continue
		}

		first := strings.TrimSpace(row[0])
		if first == "" {
			continue
		}
		lower := strings.ToLower(first)
		if lower == "startip" || lower == "cidr" || lower == "subnet" {
			continue
		}

		if strings.Contains(first, "/") {
			subnets = append(subnets, first)
			continue
		}

		if len(row) < 2 {
			continue
		}
		second := strings.TrimSpace(row[1])
		if second == "" || strings.EqualFold(second, "endip") {
			continue
		}

		ranges, ok := summarizeRange(first, second)
		if !ok {
			continue
		}
		subnets = append(subnets, ranges...)
	}
	return subnets, nil
}

// summarizeRange converts a start/end IP pair into the minimal set of
// CIDRs that exactly cover [start, end], the same shape as Python's
// ipaddress.summarize_address_range.
func summarizeRange(startStr, endStr string) ([]string, bool) {
	start, err := netip.ParseAddr(startStr)
	if err != nil {
		return nil, false
	}
	end, err := netip.ParseAddr(endStr)
	if err != nil {
		return nil, false
	}
	if start.Is4() != end.Is4() {
		return nil, false
	}
	if start.Compare(end) > 0 {
		return nil, false
	}

	bits := start.BitLen()
	cur := addrToBig(start)
	last := addrToBig(end)

	var out []string
	for cur.Cmp(last) <= 0 {
		prefix := largestAlignedPrefix(cur, last, bits)
		b := block{addr: new(big.Int).Set(cur), prefix: prefix, bits: bits}
		out = append(out, b.String())

		size := new(big.Int).Lsh(big.NewInt(1), uint(bits-prefix))
		cur = cur.Add(cur, size)
	}
	return out, true
}

// largestAlignedPrefix finds the widest (smallest-number) prefix length p
// such that the 2^(bits-p)-sized block starting at cur is address-aligned
// and does not extend past last.
func largestAlignedPrefix(cur, last *big.Int, bits int) int {
	prefix := bits
	for p := bits - 1; p >= 0; p-- {
		if maskTo(cur, bits, p).Cmp(cur) != 0 {
			break
		}
		size := new(big.Int).Lsh(big.NewInt(1), uint(bits-p))
		blockEnd := new(big.Int).Sub(new(big.Int).Add(cur, size), big.NewInt(1))
		if blockEnd.Cmp(last) > 0 {
			break
		}
		prefix = p
	}
	return prefix
}
