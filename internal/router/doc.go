// Package router implements the core packet-processing engine of a software
// router: distance-vector routing over numbered ports, NAT between an
// internal and an external address realm, and a six-verb control plane.
//
// The engine is invoked packet-by-packet by a surrounding harness that owns
// the sockets. It is pure, synchronous and single-owner: no goroutine ever
// calls Handle concurrently on the same Router.
package router
