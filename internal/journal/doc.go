// Package journal records outbound actions and connection status
// transitions for each Limitimer in SQLite.
//
// The journal answers "who pressed what, and when did the timer drop off
// the network". It never stores field state and nothing is restored from
// it on restart; state always comes from the device on resync.
//
// Entries are written by a Recorder goroutine so that neither the device
// worker nor command callers wait on disk. Old entries are pruned on a
// timer according to the configured retention.
package journal
