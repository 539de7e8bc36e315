// Package gossip runs single epidemic dissemination trials.
//
// A trial models a population of nodes in synchronous rounds. Every aware
// node messages up to fanout distinct peers per round and each message is
// lost independently with the configured probability. Nodes reached during a
// round only start sending in the next round.
//
// Trials own all of their state, including the random stream, so any number
// of them can run concurrently without coordination.
package gossip
