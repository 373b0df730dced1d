// Package wsserver implements a hand-rolled RFC 6455 WebSocket server:
// HTTP upgrade handshake, masked-frame decode, and a small fixed-size
// client table. No gorilla/websocket or coder/websocket dependency —
// see the repository's design notes for why this one component is
// hand-rolled instead of library-backed.
package wsserver

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/corekind"
)

// websocketMagic is the RFC 6455 handshake GUID.
const websocketMagic = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// MaxClients bounds the fixed client table.
const MaxClients = 16

// MaxPayloadBytes is the largest accepted frame payload.
const MaxPayloadBytes = 64 * 1024

// pollTimeout is the readiness-multiplex budget per Poll call.
const pollTimeout = 10 * time.Millisecond

// State is a client connection's position in the RFC 6455 state
// machine: None -> Handshake -> Open -> Closing -> None.
type State int

const (
	StateNone State = iota
	StateHandshake
	StateOpen
	StateClosing
)

type client struct {
	conn  net.Conn
	state State
	peer  string
	convID int
	framesIn  int64
	framesOut int64
}

// Server accepts up to MaxClients WebSocket connections and bridges
// text frames to the bus's inbound/outbound paths.
type Server struct {
	listener net.Listener
	bus      *bus.Bus
	subID    string

	mu      sync.Mutex
	clients [MaxClients]*client
}

// New wraps an already-listening TCP listener and subscribes to the
// bus's event emitter so events broadcast there (the orchestration loop's
// agent events) are
// pushed to every connected client as a text frame, not just the
// explicit outbound-message path.
func New(ln net.Listener, msgBus *bus.Bus) *Server {
	s := &Server{listener: ln, bus: msgBus, subID: fmt.Sprintf("wsserver-%p", ln)}
	if msgBus != nil {
		msgBus.Subscribe(s.subID, s.forwardEvent)
	}
	return s
}

// Listen opens a TCP listener on addr and wraps it.
func Listen(addr string, msgBus *bus.Bus) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, corekind.Wrap(corekind.Io, "wsserver.Listen", err)
	}
	return New(ln, msgBus), nil
}

// forwardEvent JSON-encodes a bus.Event and broadcasts it to every Open
// client. Encoding failures are dropped silently — events are a
// best-effort push channel, not a guaranteed-delivery one.
func (s *Server) forwardEvent(event bus.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	s.Broadcast(payload)
}

// Close shuts down the listener and every open client connection.
func (s *Server) Close() error {
	if s.bus != nil {
		s.bus.Unsubscribe(s.subID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.clients {
		if c != nil {
			c.conn.Close()
			s.clients[i] = nil
		}
	}
	return s.listener.Close()
}

// Poll performs one readiness-multiplex iteration: it tries (with a
// short deadline) to accept a new connection, then attempts to read
// exactly one unit of progress (handshake bytes or one frame) from
// each open client. Returns Timeout when nothing progressed.
func (s *Server) Poll() error {
	progressed := false

	if tl, ok := s.listener.(*net.TCPListener); ok {
		tl.SetDeadline(time.Now().Add(pollTimeout))
	}
	conn, err := s.listener.Accept()
	if err == nil {
		if s.acceptInto(conn) {
			progressed = true
		} else {
			conn.Close()
		}
	}

	s.mu.Lock()
	snapshot := s.clients
	s.mu.Unlock()

	for i, c := range snapshot {
		if c == nil {
			continue
		}
		c.conn.SetReadDeadline(time.Now().Add(pollTimeout))
		switch c.state {
		case StateHandshake:
			if s.attemptHandshake(i, c) {
				progressed = true
			}
		case StateOpen:
			if s.readOneFrame(i, c) {
				progressed = true
			}
		}
	}

	if !progressed {
		return corekind.New(corekind.Timeout, "wsserver.Poll")
	}
	return nil
}

func (s *Server) acceptInto(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.clients {
		if c == nil {
			s.clients[i] = &client{
				conn:   conn,
				state:  StateHandshake,
				peer:   conn.RemoteAddr().String(),
				convID: i,
			}
			return true
		}
	}
	return false
}

func (s *Server) attemptHandshake(slot int, c *client) bool {
	reader := bufio.NewReader(c.conn)
	req, err := readHandshakeRequest(reader)
	if err != nil {
		s.closeSlot(slot)
		return false
	}

	key := req.Header.Get("Sec-Websocket-Key")
	if key == "" || !strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
		s.closeSlot(slot)
		return false
	}

	accept := AcceptKey(key)
	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
	if _, err := c.conn.Write([]byte(resp)); err != nil {
		s.closeSlot(slot)
		return false
	}

	s.mu.Lock()
	c.state = StateOpen
	s.mu.Unlock()
	return true
}

// AcceptKey computes the Sec-WebSocket-Accept value for a given
// Sec-WebSocket-Key, per RFC 6455 §1.3.
func AcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(websocketMagic))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func readHandshakeRequest(r *bufio.Reader) (*handshakeRequest, error) {
	tp := textproto.NewReader(r)
	line, err := tp.ReadLine()
	if err != nil {
		return nil, err
	}
	if !strings.Contains(line, "HTTP/1.1") && !strings.Contains(line, "HTTP/1.0") {
		return nil, fmt.Errorf("wsserver: malformed request line %q", line)
	}
	hdr, err := tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return nil, err
	}
	return &handshakeRequest{Header: hdr}, nil
}

type handshakeRequest struct {
	Header textproto.MIMEHeader
}

// readOneFrame reads a single WebSocket frame and dispatches it: text
// frames are published inbound, close frames transition to Closing,
// ping frames get a pong, everything else is dropped.
func (s *Server) readOneFrame(slot int, c *client) bool {
	frame, err := readFrame(c.conn)
	if err != nil {
		s.closeSlot(slot)
		return false
	}
	if frame == nil {
		return false
	}

	c.framesIn++
	switch frame.opcode {
	case opText:
		if s.bus != nil {
			_ = s.bus.PublishInbound("websocket", c.peer, fmt.Sprintf("%d", c.convID), frame.payload, 0)
		}
		return true
	case opClose:
		s.mu.Lock()
		c.state = StateClosing
		s.mu.Unlock()
		s.closeSlot(slot)
		return true
	case opPing:
		writeFrame(c.conn, opPong, nil)
		return true
	default:
		return true
	}
}

func (s *Server) closeSlot(slot int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.clients[slot]
	if c == nil {
		return
	}
	c.conn.Close()
	s.clients[slot] = nil
}

// Send writes content as one unmasked text frame to the client whose
// synthetic conversation id is convID. Returns NotFound if no such
// client is Open.
func (s *Server) Send(convID int, content []byte) error {
	s.mu.Lock()
	var c *client
	for _, cl := range s.clients {
		if cl != nil && cl.convID == convID && cl.state == StateOpen {
			c = cl
			break
		}
	}
	s.mu.Unlock()
	if c == nil {
		return corekind.New(corekind.NotFound, "wsserver.Send")
	}
	if err := writeFrame(c.conn, opText, content); err != nil {
		return corekind.Wrap(corekind.Io, "wsserver.Send", err)
	}
	c.framesOut++
	return nil
}

// Broadcast sends content to every Open client.
func (s *Server) Broadcast(content []byte) {
	s.mu.Lock()
	clients := s.clients
	s.mu.Unlock()
	for _, c := range clients {
		if c != nil && c.state == StateOpen {
			writeFrame(c.conn, opText, content)
		}
	}
}

const (
	opText  = 0x1
	opClose = 0x8
	opPing  = 0x9
	opPong  = 0xA
)

type wireFrame struct {
	opcode  byte
	payload []byte
}

// readFrame parses one RFC 6455 frame, enforcing masking and the
// MaxPayloadBytes limit.
func readFrame(r io.Reader) (*wireFrame, error) {
	var head [2]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}

	opcode := head[0] & 0x0f
	masked := head[1]&0x80 != 0
	length := uint64(head[1] & 0x7f)

	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, err
		}
		length = uint64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, err
		}
		length = binary.BigEndian.Uint64(ext[:])
	}

	if length > MaxPayloadBytes {
		return nil, fmt.Errorf("wsserver: frame payload %d exceeds limit", length)
	}
	if !masked {
		return nil, fmt.Errorf("wsserver: unmasked client frame is a protocol error")
	}

	var maskKey [4]byte
	if _, err := io.ReadFull(r, maskKey[:]); err != nil {
		return nil, err
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	for i := range payload {
		payload[i] ^= maskKey[i%4]
	}

	return &wireFrame{opcode: opcode, payload: payload}, nil
}

// writeFrame writes a single unmasked, FIN-set frame to w.
func writeFrame(w io.Writer, opcode byte, payload []byte) error {
	var head []byte
	head = append(head, 0x80|opcode)

	n := len(payload)
	switch {
	case n <= 125:
		head = append(head, byte(n))
	case n <= 0xFFFF:
		ext := make([]byte, 2)
		binary.BigEndian.PutUint16(ext, uint16(n))
		head = append(head, 126)
		head = append(head, ext...)
	default:
		ext := make([]byte, 8)
		binary.BigEndian.PutUint64(ext, uint64(n))
		head = append(head, 127)
		head = append(head, ext...)
	}

	if _, err := w.Write(head); err != nil {
		return err
	}
	if len(payload) > 0 {
		_, err := w.Write(payload)
		return err
	}
	return nil
}
