// Package netio binds internal/router engine ports to real UDP sockets.
//
// Each engine port is a plain net.UDPConn tuned via sockopt_linux.go
// (SO_REUSEADDR, SO_RCVBUF); there is no GTSM/TTL validation or PKTINFO
// ancillary-data parsing here, unlike the BFD transport this package is
// descended from — the engine has no equivalent RFC 5881 requirement.
package netio
