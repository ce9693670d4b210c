//go:build !linux

package ambient

import "errors"

var errNoI2C = errors.New("ambient: i2c-dev is only available on Linux")

// I2CDev is unavailable on this platform.
type I2CDev struct{}

func OpenI2C(bus int) (*I2CDev, error) { return nil, errNoI2C }

func (d *I2CDev) Close() error                                          { return nil }
func (d *I2CDev) Tx(addr uint16, w, r []byte) error                     { return errNoI2C }
func (d *I2CDev) ReadRegister(addr uint8, reg uint8, buf []byte) error  { return errNoI2C }
func (d *I2CDev) WriteRegister(addr uint8, reg uint8, buf []byte) error { return errNoI2C }
