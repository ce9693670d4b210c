package kline

// Diagnostic trouble code services.
const (
	modeStoredDTC  = 0x03
	modeClearDTC   = 0x04
	modePendingDTC = 0x07
)

func (c *Client) readCodes(mode byte) (int, error) {
	n, err := c.RequestVar([]byte{0x68, 0x6A, 0xF1, mode})
	if err != nil {
		return 0, err
	}
	if n < 4 {
		return 0, nil
	}
	// Four header bytes, then two bytes per code.
	return (n - 4) / 2, nil
}

// ReadTroubleCodes requests the stored trouble codes and returns how many
// the reply holds; fetch them with TroubleCode.
func (c *Client) ReadTroubleCodes() (int, error) {
	return c.readCodes(modeStoredDTC)
}

// ReadPendingTroubleCodes is ReadTroubleCodes for codes detected during the
// current or last driving cycle.
func (c *Client) ReadPendingTroubleCodes() (int, error) {
	return c.readCodes(modePendingDTC)
}

// ClearTroubleCodes clears stored codes and turns off the malfunction lamp.
// The ECU answers with a bare four byte header.
func (c *Client) ClearTroubleCodes() error {
	return c.Request([]byte{0x68, 0x6A, 0xF1, modeClearDTC}, 4)
}

// TroubleCode returns code i of the last trouble code reply, first byte high.
func (c *Client) TroubleCode(i int) uint16 {
	off := 4 + 2*i
	return uint16(c.buf[off])<<8 | uint16(c.buf[off+1])
}

// DecodeDTC formats a two byte trouble code as e.g. "P0133". Zero, which
// pads unused slots, decodes to "".
func DecodeDTC(code uint16) string {
	if code == 0 {
		return ""
	}
	a, b := byte(code>>8), byte(code)
	const hex = "0123456789ABCDEF"
	system := [4]byte{'P', 'C', 'B', 'U'}
	return string([]byte{
		system[a>>6],
		hex[(a>>4)&0x03],
		hex[a&0x0F],
		hex[b>>4],
		hex[b&0x0F],
	})
}
