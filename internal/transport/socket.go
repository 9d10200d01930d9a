package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

const (
	// lengthPrefixSize is the u32 frame length prefix.
	lengthPrefixSize = 4

	// DefaultMaxFrameBytes bounds a single frame's payload.
	DefaultMaxFrameBytes = 8 * 1024 * 1024

	oobChunkSize = 4096
)

var (
	// ErrPeerClosed reports a clean peer shutdown (zero-length read),
	// distinct from an I/O failure.
	ErrPeerClosed = errors.New("transport: peer closed")

	ErrFrameTooLarge = errors.New("transport: frame exceeds size limit")
	ErrSocketClosed  = errors.New("transport: socket closed")
)

// Socket is a bidirectional framed channel over a connected unix stream
// socket. Send and Receive may run concurrently, but each must have a
// single caller at a time: frames are byte-stream state.
type Socket struct {
	conn     *net.UnixConn
	maxFrame uint32

	// pending holds descriptors received while assembling the current
	// frame. Reads are capped at the frame's remaining bytes, so a
	// recvmsg never consumes data from a following frame and the
	// kernel never hands over a following frame's SCM_RIGHTS: every
	// descriptor collected here belongs to the frame being assembled.
	pending []*os.File

	closeOnce sync.Once
	closeErr  error
}

// New wraps an already-connected unix socket.
func New(conn *net.UnixConn) *Socket {
	return &Socket{conn: conn, maxFrame: DefaultMaxFrameBytes}
}

// Dial connects to the unix socket at path.
func Dial(path string) (*Socket, error) {
	conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("transport: dialing %s: %w", path, err)
	}
	return New(conn), nil
}

// Pair returns two connected sockets, one per end of a socketpair. Used
// by tests and by parents handing one end to a spawned child.
func Pair() (*Socket, *Socket, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: socketpair: %w", err)
	}
	a, err := adopt(fds[0])
	if err != nil {
		unix.Close(fds[1])
		return nil, nil, err
	}
	b, err := adopt(fds[1])
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, b, nil
}

func adopt(fd int) (*Socket, error) {
	f := os.NewFile(uintptr(fd), "portal-socket")
	conn, err := net.FileConn(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("transport: adopting fd %d: %w", fd, err)
	}
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("transport: fd %d is not a unix stream socket", fd)
	}
	return New(uc), nil
}

// SetMaxFrameBytes overrides the frame size limit. Zero restores the
// default.
func (s *Socket) SetMaxFrameBytes(n uint32) {
	if n == 0 {
		n = DefaultMaxFrameBytes
	}
	s.maxFrame = n
}

// Send writes one frame: a u32 length prefix, the payload, and any
// descriptors as ancillary data on the same write so they arrive with
// this frame, never an adjacent one.
func (s *Socket) Send(payload []byte, files []*os.File) error {
	if uint32(len(payload)) > s.maxFrame {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), s.maxFrame)
	}
	frame := make([]byte, lengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[lengthPrefixSize:], payload)

	var oob []byte
	if len(files) > 0 {
		fds := make([]int, len(files))
		for i, f := range files {
			fds[i] = int(f.Fd())
		}
		oob = unix.UnixRights(fds...)
	}

	n, _, err := s.conn.WriteMsgUnix(frame, oob, nil)
	if err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	// WriteMsgUnix on a stream socket reports a short write as an
	// error; anything else here is a kernel contract violation.
	if n != len(frame) {
		return fmt.Errorf("transport: short frame write: %d of %d bytes", n, len(frame))
	}
	return nil
}

// Receive blocks until one complete frame is available and returns its
// payload plus the descriptors that arrived with it. Reads never cross
// a frame boundary, so descriptors are attached to the frame whose
// bytes delivered them. A peer shutdown at a frame boundary reports
// ErrPeerClosed; one mid-frame is an I/O error.
func (s *Socket) Receive() ([]byte, []*os.File, error) {
	header, err := s.readFrameBytes(lengthPrefixSize, true)
	if err != nil {
		return nil, nil, err
	}
	n := binary.BigEndian.Uint32(header)
	if n > s.maxFrame {
		return nil, nil, fmt.Errorf("%w: peer declared %d byte frame", ErrFrameTooLarge, n)
	}
	payload, err := s.readFrameBytes(int(n), false)
	if err != nil {
		return nil, nil, err
	}
	files := s.pending
	s.pending = nil
	return payload, files, nil
}

// readFrameBytes reads exactly n bytes of the current frame, collecting
// descriptors delivered with them into the pending queue. The buffer
// never exceeds the frame section being read, which is what keeps a
// recvmsg from consuming the next frame's bytes or its SCM_RIGHTS.
// atBoundary marks reads that may legitimately hit a clean shutdown.
func (s *Socket) readFrameBytes(n int, atBoundary bool) ([]byte, error) {
	buf := make([]byte, n)
	oob := make([]byte, oobChunkSize)
	off := 0
	for off < n {
		nr, oobn, _, _, err := s.conn.ReadMsgUnix(buf[off:], oob)
		if nr > 0 {
			off += nr
		}
		if oobn > 0 {
			if perr := s.parseRights(oob[:oobn]); perr != nil {
				return nil, perr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if atBoundary && off == 0 {
					return nil, ErrPeerClosed
				}
				return nil, fmt.Errorf("transport: receive: frame truncated at %d of %d bytes: %w", off, n, io.ErrUnexpectedEOF)
			}
			if errors.Is(err, net.ErrClosed) {
				return nil, ErrSocketClosed
			}
			return nil, fmt.Errorf("transport: receive: %w", err)
		}
		if nr == 0 && oobn == 0 {
			if atBoundary && off == 0 {
				return nil, ErrPeerClosed
			}
			return nil, fmt.Errorf("transport: receive: frame truncated at %d of %d bytes: %w", off, n, io.ErrUnexpectedEOF)
		}
	}
	return buf, nil
}

func (s *Socket) parseRights(oob []byte) error {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return fmt.Errorf("transport: parsing control messages: %w", err)
	}
	for i := range msgs {
		fds, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			// Not SCM_RIGHTS (e.g. credentials); nothing to adopt.
			continue
		}
		for _, fd := range fds {
			unix.CloseOnExec(fd)
			s.pending = append(s.pending, os.NewFile(uintptr(fd), "portal-passed-fd"))
		}
	}
	return nil
}

// Close shuts the channel down. Safe to call more than once and from a
// goroutine other than the reader; the reader unblocks with
// ErrSocketClosed.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
		for _, f := range s.pending {
			f.Close()
		}
		s.pending = nil
	})
	return s.closeErr
}
