package wire

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

const (
	// frameHeaderSize is version(1) + type(1) + flags(1) + length(4).
	frameHeaderSize = 7

	// DefaultMaxFrameSize bounds a single payload to guard against memory
	// exhaustion from a misbehaving peer.
	DefaultMaxFrameSize = 4 * 1024 * 1024

	// compressThreshold is the payload size below which compression is not
	// worth the round trip even when negotiated.
	compressThreshold = 512

	flagCompressed byte = 1 << 0
)

// ErrProtocol marks malformed frames and undecodable payloads. It is the only
// failure class that terminates a connection.
var ErrProtocol = errors.New("protocol error")

// Codec frames envelopes onto a connection and decodes them back. Writes are
// serialized internally; reads must come from a single goroutine.
type Codec struct {
	br *bufio.Reader

	wmu sync.Mutex
	bw  *bufio.Writer

	compress bool
	maxFrame int
}

// Option adjusts codec construction.
type Option func(*Codec)

// WithCompression enables zlib compression of large payloads. Both ends must
// agree; the flag bit on each frame records whether it was applied.
func WithCompression(enabled bool) Option {
	return func(c *Codec) { c.compress = enabled }
}

// WithMaxFrameSize overrides the payload size limit.
func WithMaxFrameSize(limit int) Option {
	return func(c *Codec) {
		if limit > 0 {
			c.maxFrame = limit
		}
	}
}

// NewCodec wraps a connection in buffered framing.
func NewCodec(rw io.ReadWriter, opts ...Option) *Codec {
	c := &Codec{
		br:       bufio.NewReader(rw),
		bw:       bufio.NewWriter(rw),
		maxFrame: DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WriteRequest frames and flushes a request.
func (c *Codec) WriteRequest(req *Request) error {
	return c.writeFrame(TypeRequest, req)
}

// WriteResponse frames and flushes a response.
func (c *Codec) WriteResponse(resp *Response) error {
	return c.writeFrame(TypeResponse, resp)
}

// WriteEvent frames and flushes an event.
func (c *Codec) WriteEvent(ev *Event) error {
	return c.writeFrame(TypeEvent, ev)
}

func (c *Codec) writeFrame(msgType MessageType, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	if len(body) > c.maxFrame {
		return fmt.Errorf("%w: %s payload exceeds %d bytes", ErrProtocol, msgType, c.maxFrame)
	}

	var flags byte
	if c.compress && len(body) >= compressThreshold {
		compressed, err := deflate(body)
		if err != nil {
			return fmt.Errorf("compress %s payload: %w", msgType, err)
		}
		if len(compressed) < len(body) {
			body = compressed
			flags |= flagCompressed
		}
	}

	header := make([]byte, frameHeaderSize)
	header[0] = ProtocolVersion
	header[1] = byte(msgType)
	header[2] = flags
	binary.BigEndian.PutUint32(header[3:7], uint32(len(body)))

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.bw.Write(header); err != nil {
		return err
	}
	if _, err := c.bw.Write(body); err != nil {
		return err
	}
	return c.bw.Flush()
}

// ReadEnvelope blocks until one complete frame arrives and decodes it.
func (c *Codec) ReadEnvelope() (*Envelope, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(c.br, header); err != nil {
		return nil, err
	}
	if header[0] != ProtocolVersion {
		return nil, fmt.Errorf("%w: unsupported protocol version %d", ErrProtocol, header[0])
	}
	msgType := MessageType(header[1])
	flags := header[2]
	length := binary.BigEndian.Uint32(header[3:7])
	if int(length) > c.maxFrame {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds limit %d", ErrProtocol, length, c.maxFrame)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(c.br, body); err != nil {
		return nil, err
	}
	if flags&flagCompressed != 0 {
		inflated, err := inflate(body, c.maxFrame)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
		body = inflated
	}

	env := &Envelope{Type: msgType}
	var dst any
	switch msgType {
	case TypeRequest:
		env.Request = &Request{}
		dst = env.Request
	case TypeResponse:
		env.Response = &Response{}
		dst = env.Response
	case TypeEvent:
		env.Event = &Event{}
		dst = env.Event
	default:
		return nil, fmt.Errorf("%w: unknown message type %d", ErrProtocol, header[1])
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return nil, fmt.Errorf("%w: decode %s payload: %v", ErrProtocol, msgType, err)
	}
	return env, nil
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(data []byte, limit int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open compressed payload: %w", err)
	}
	defer zr.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(zr, int64(limit)+1)); err != nil {
		return nil, fmt.Errorf("inflate payload: %w", err)
	}
	if buf.Len() > limit {
		return nil, fmt.Errorf("inflated payload exceeds limit %d", limit)
	}
	return buf.Bytes(), nil
}
