// Package subnet normalizes operator-supplied CIDR ranges into the flat,
// de-overlapped work list the scan engine consumes.
//
// # Normalization
//
// ParseAndCollapse validates each input string as an IPv4 or IPv6 network
// (host bits may be set; they are masked away rather than rejected), then
// coalesces the result into the minimal covering set of networks, sorted by
// (version, network address, prefix length).
//
// # Chunking
//
// Prepare expands any IPv4 network wider than the configured chunk prefix
// into equal-sized constituent subnets, bounding the runtime of a single
// worker's scan. IPv6 networks and networks at or narrower than the chunk
// prefix pass through unchanged. Chunking never changes the total host
// count; it only changes how many work items that count is spread across.
package subnet
