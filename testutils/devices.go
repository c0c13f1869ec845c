package testutils

import (
	"testing"

	"github.com/nachfs/nachfs/common"
	"github.com/nachfs/nachfs/device"
)

// NewTestDevice returns a zeroed ramdisk with the given number of
// sectors, closed when the test finishes.
func NewTestDevice(test *testing.T, sectors int) common.BlockDevice {
	dev := device.NewRamdiskDevice(sectors)
	test.Cleanup(func() { dev.Close() })
	return dev
}

// NewPatternDevice returns a ramdisk where every byte of sector i holds
// the value i, so reads can be checked against a known pattern.
func NewPatternDevice(test *testing.T, sectors int) common.BlockDevice {
	data := make([]byte, sectors*common.SECTOR_SIZE)
	for i := 0; i < sectors; i++ {
		for j := 0; j < common.SECTOR_SIZE; j++ {
			data[(i*common.SECTOR_SIZE)+j] = byte(i)
		}
	}
	dev := device.NewRamdiskDeviceData(data)
	test.Cleanup(func() { dev.Close() })
	return dev
}
