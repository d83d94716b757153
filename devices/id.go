package devices

import "fmt"

// ID identifies a device by manufacturer and serial number. Unlike a
// single packed integer, the two components stay as separate fields:
// there's no encoding to get backwards, and the zero value obviously
// isn't a valid device id (manufacturer 0 never appears in practice).
type ID struct {
	Manufacturer uint16
	Serial       uint16
}

// NewID builds an ID from a manufacturer and serial number, truncating
// either to 16 bits.
func NewID(manufacturer, serial int) ID {
	return ID{Manufacturer: uint16(manufacturer), Serial: uint16(serial)}
}

func (id ID) String() string {
	return fmt.Sprintf("%04x:%04x", id.Manufacturer, id.Serial)
}
