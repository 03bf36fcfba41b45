package serial

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Port is an open serial channel. Read returns (0, nil) once the
// configured read timeout elapses without data, as go.bug.st/serial does.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Props describe how a port should be opened.
type Props struct {
	Name        string
	Baudrate    int
	ReadTimeout time.Duration
}

// ID returns the platform identifier of the port.
func (p Props) ID() string {
	return p.Name
}

func (p Props) String() string {
	return fmt.Sprintf("%s@%d", p.Name, p.Baudrate)
}

// Is used to open ports with given
// properties or list accessible ports.
type ConnectionFactory interface {
	Open(Props) (Port, error)
	ListAccessible() ([]string, error)
}

// IsTimeout reports whether the result of a Read means
// "no data within the read timeout" rather than a failure.
func IsTimeout(n int, err error) bool {
	if err == nil {
		return n == 0
	}
	return os.IsTimeout(err)
}
