package cfrealip

const (
	securityEventUntrustedProxy  = "untrusted_proxy"
	securityEventInvalidPeer     = "invalid_peer"
	securityEventInvalidHeaderIP = "invalid_header_ip"
	securityEventEmptyRanges     = "empty_ranges"
)
