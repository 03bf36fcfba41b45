// Package sim provides an in-memory scope device and a serial.ConnectionFactory
// serving it, for development without hardware and for tests.
package sim

import (
	"context"
	"errors"
	"sync"

	"github.com/sudotouchwoman/golang-serial-scope/pkg/serial"
)

var (
	ErrClosed       = errors.New("sim: port closed")
	ErrNoSuchPort   = errors.New("sim: no such port")
	ErrDisconnected = errors.New("sim: device disconnected")
)

// TickerFactory serves named simulated devices. Ports are listed
// in the order they were added.
type TickerFactory struct {
	Lock    *sync.RWMutex
	Ctx     context.Context
	Devices map[string]Device
	Error   error

	order  []string
	opened []string
}

func NewTickerFactory(ctx context.Context) *TickerFactory {
	return &TickerFactory{
		Lock:    &sync.RWMutex{},
		Ctx:     ctx,
		Devices: map[string]Device{},
	}
}

// Add registers a device under name.
func (tf *TickerFactory) Add(name string, dev Device) *TickerFactory {
	tf.Lock.Lock()
	defer tf.Lock.Unlock()
	if _, exists := tf.Devices[name]; !exists {
		tf.order = append(tf.order, name)
	}
	tf.Devices[name] = dev
	return tf
}

func (tf *TickerFactory) ListAccessible() ([]string, error) {
	tf.Lock.RLock()
	defer tf.Lock.RUnlock()
	if tf.Error != nil {
		return nil, tf.Error
	}
	return append([]string(nil), tf.order...), nil
}

// Opened returns every port name passed to Open, in call order.
func (tf *TickerFactory) Opened() []string {
	tf.Lock.RLock()
	defer tf.Lock.RUnlock()
	return append([]string(nil), tf.opened...)
}

func (tf *TickerFactory) Open(p serial.Props) (serial.Port, error) {
	tf.Lock.Lock()
	defer tf.Lock.Unlock()

	tf.opened = append(tf.opened, p.Name)
	dev, ok := tf.Devices[p.Name]
	if !ok {
		return nil, ErrNoSuchPort
	}
	if dev.OpenErr != nil {
		return nil, dev.OpenErr
	}
	return newPort(tf.Ctx, p, dev), nil
}
