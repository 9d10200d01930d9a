// Package portalreq defines the request portal: the endpoint a UI
// process uses to drive network requests in the request-server
// process. Both the daemon and the CLI import this package so the wire
// types are defined once rather than mirrored.
package portalreq
