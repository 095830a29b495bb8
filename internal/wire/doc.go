// Package wire defines the framed envelope protocol spoken between the
// daemon and its clients.
//
// Every unit of traffic is one self-delimiting frame: a fixed header carrying
// the protocol version, a message-type tag, and flags, followed by a
// length-prefixed JSON payload. The payload is a Request, Response, or Event,
// and a Codec pairs a buffered reader and writer over a single connection to
// move them in both directions. Payloads above a small threshold are
// optionally zlib-compressed when both ends negotiated it.
//
// Any malformed frame or undecodable payload is reported as ErrProtocol and
// is fatal to the connection; higher layers map every other failure to an
// in-band fault response instead.
package wire
