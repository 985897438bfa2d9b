package transport

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/USC-NSL/DDB/internal/cmdflow"
)

// SessionConn adapts a raw net.Conn carrying the line-oriented MI text
// protocol (spec.md §2) into the cmdflow router's SessionWriter
// interface, and pumps every inbound line into the Tracker. Whether
// the conn came from dialing a discovered debuggee directly or from
// accepting a connection relayed through the chisel reverse tunnel
// (internal/transport/tunnel), the bridging logic is identical — only
// how the conn was obtained differs, which is the adaptation of the
// teacher's tunnel/bridge.go TCP-to-pipe relay to this domain's
// line-oriented protocol instead of raw HTTP bytes.
type SessionConn struct {
	sid     uint64
	conn    net.Conn
	tracker *cmdflow.Tracker
	router  *cmdflow.Router
	log     *slog.Logger

	writeMu sync.Mutex
}

// NewSessionConn wraps conn for session sid, registers it with router
// so outbound commands can reach it, and starts the read pump. Call
// Close (or let the read pump's EOF detach it) to tear down.
func NewSessionConn(sid uint64, conn net.Conn, tracker *cmdflow.Tracker, router *cmdflow.Router) *SessionConn {
	sc := &SessionConn{
		sid:     sid,
		conn:    conn,
		tracker: tracker,
		router:  router,
		log:     slog.Default().With("component", "session-conn", "sid", sid),
	}
	router.Attach(sid, sc)
	go sc.readPump()
	return sc
}

// WriteLine implements cmdflow.SessionWriter: it writes line followed
// by a newline, the framing the backend's MI reader expects.
func (sc *SessionConn) WriteLine(line string) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	_, err := io.WriteString(sc.conn, line+"\n")
	return err
}

// Close detaches the session from the router and closes the
// underlying connection.
func (sc *SessionConn) Close() error {
	sc.router.Detach(sc.sid)
	return sc.conn.Close()
}

// readPump feeds every line read from the backend into the tracker,
// tagged with this connection's session id, until the connection is
// closed or an I/O error occurs.
func (sc *SessionConn) readPump() {
	defer sc.Close()

	r := bufio.NewReaderSize(sc.conn, 64*1024)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			sc.tracker.HandleBytes(sc.sid, line)
		}
		if err != nil {
			if err != io.EOF {
				sc.log.Warn("read error, closing session", "error", err)
			}
			return
		}
	}
}
