//go:build linux

package ambient

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// ioctl request selecting the target address on an i2c-dev file.
const i2cSlave = 0x0703

// I2CDev is a Linux i2c-dev bus usable by the tinygo sensor drivers.
type I2CDev struct {
	mu   sync.Mutex
	f    *os.File
	addr uint16
}

// OpenI2C opens /dev/i2c-<bus>.
func OpenI2C(bus int) (*I2CDev, error) {
	path := fmt.Sprintf("/dev/i2c-%d", bus)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("ambient: open %s: %w", path, err)
	}
	return &I2CDev{f: f}, nil
}

func (d *I2CDev) Close() error {
	return d.f.Close()
}

func (d *I2CDev) selectAddr(addr uint16) error {
	if d.addr == addr {
		return nil
	}
	if err := unix.IoctlSetInt(int(d.f.Fd()), i2cSlave, int(addr)); err != nil {
		return fmt.Errorf("ambient: select 0x%02X: %w", addr, err)
	}
	d.addr = addr
	return nil
}

// Tx writes w then reads len(r) bytes from the device at addr.
func (d *I2CDev) Tx(addr uint16, w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.selectAddr(addr); err != nil {
		return err
	}
	if len(w) > 0 {
		if _, err := d.f.Write(w); err != nil {
			return fmt.Errorf("ambient: write 0x%02X: %w", addr, err)
		}
	}
	if len(r) > 0 {
		if _, err := d.f.Read(r); err != nil {
			return fmt.Errorf("ambient: read 0x%02X: %w", addr, err)
		}
	}
	return nil
}

func (d *I2CDev) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return d.Tx(uint16(addr), []byte{reg}, buf)
}

func (d *I2CDev) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	return d.Tx(uint16(addr), append([]byte{reg}, buf...), nil)
}
