package serial

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// SerialConnectionFactory opens hardware ports with go.bug.st/serial.
// Opens are serialized so that two components never race for a device.
type SerialConnectionFactory struct {
	// When non-empty, Ports replaces enumeration of the platform ports.
	Ports []string
	Log   logrus.FieldLogger

	mu sync.Mutex
}

func (sf *SerialConnectionFactory) Open(p Props) (Port, error) {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	com, err := serial.Open(p.Name, &serial.Mode{
		// some properties are default but can be configured later
		BaudRate: p.Baudrate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
		InitialStatusBits: &serial.ModemOutputBits{
			RTS: false,
			DTR: false,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	if p.ReadTimeout > 0 {
		if err := com.SetReadTimeout(p.ReadTimeout); err != nil {
			_ = com.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", p, err)
		}
	}
	sf.logger().WithField("port", p.Name).Debug("opened serial connection")
	return com, nil
}

// Query serial library for the list of available ports.
// The order is the platform's enumeration order.
func (sf *SerialConnectionFactory) ListAccessible() ([]string, error) {
	if len(sf.Ports) > 0 {
		return append([]string(nil), sf.Ports...), nil
	}
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}

func (sf *SerialConnectionFactory) logger() logrus.FieldLogger {
	if sf.Log == nil {
		return logrus.StandardLogger()
	}
	return sf.Log
}
