// Package snapshot captures and restores point-in-time tablet metadata.
//
// A snapshot bundles the tablet metadata, the rowset metadata list and the
// per-segment delete vectors at one version, in a single binary file used
// by backup, restore and clone. Every variable section is length-prefixed
// and checksummed so a failing parse names the section that broke and
// readers can skip sections introduced by newer format versions.
package snapshot
