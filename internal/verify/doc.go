// Package verify is an optional, disabled-by-default supplementary check
// on top of the core SLP probe. A raw open port on 25565-25577 is not
// proof of a Minecraft service — it could be anything bound to a port in
// that range — so Verifier runs an nmap service-detection scan against
// confirmed endpoints and flags ones where nmap's own service fingerprint
// disagrees with "minecraft".
//
// This is strictly supplementary: the core scan (internal/scanengine +
// internal/probe) already works without it, and nmap.org/nmap must be
// installed separately for it to do anything.
package verify
