package traci

// Command identifiers.
const (
	cmdGetVersion = 0x00
	cmdSimStep    = 0x02
	cmdClose      = 0x7f

	cmdGetVehicleVariable      = 0xa4
	cmdResponseVehicleVariable = 0xb4
	cmdSetVehicleVariable      = 0xc4
)

// Variable identifiers.
const (
	varIDList   = 0x00
	varSpeed    = 0x40
	varPosition = 0x42
	varAngle    = 0x43
)

// Data type tags.
const (
	typePosition2D = 0x01
	typeDouble     = 0x0b
	typeStringList = 0x0e
)

// Status codes of a command response.
const (
	rtypeOK             = 0x00
	rtypeNotImplemented = 0x01
	rtypeErr            = 0xff
)
