package relaypool

import "errors"

var (
	// ErrUnsafeRelayURL is returned by Add when the URL is not ws(s):// or
	// resolves to a private, link-local, or cloud-metadata address.
	ErrUnsafeRelayURL = errors.New("relaypool: unsafe relay url")
	// ErrAllRelaysFailed is raised by ConnectAll when every connection
	// attempt failed and the pool is non-empty.
	ErrAllRelaysFailed = errors.New("relaypool: all relays failed to connect")
	// ErrNoRelaysAccepted is raised by Subscribe when zero relays accepted
	// the REQ.
	ErrNoRelaysAccepted = errors.New("relaypool: no relay accepted subscription")
)
