package device

import (
	"github.com/nachfs/nachfs/common"
)

// A ramdisk device, backed by a byte slice. Like the file device, all
// requests are serialized through a single goroutine so that at most one
// sector transfer is in flight at a time; callers block until their
// transfer completes.
type ramdiskDevice struct {
	data []byte
	in   chan m_dev_req
	out  chan m_dev_res
}

// NewRamdiskDevice creates an in-memory block device with the given
// number of sectors, all zeroed.
func NewRamdiskDevice(sectors int) common.BlockDevice {
	return NewRamdiskDeviceData(make([]byte, sectors*common.SECTOR_SIZE))
}

// NewRamdiskDeviceData creates an in-memory block device over an existing
// image. The image length must be a whole number of sectors.
func NewRamdiskDeviceData(data []byte) common.BlockDevice {
	dev := &ramdiskDevice{
		data: data,
		in:   make(chan m_dev_req),
		out:  make(chan m_dev_res),
	}

	go dev.loop()
	return dev
}

func (dev *ramdiskDevice) loop() {
	for req := range dev.in {
		switch req.call {
		case DEV_READ:
			if err := dev.check(req); err != nil {
				dev.out <- m_dev_res{err}
				continue
			}
			pos := req.sector * common.SECTOR_SIZE
			copy(req.buf, dev.data[pos:pos+common.SECTOR_SIZE])
			dev.out <- m_dev_res{nil}
		case DEV_WRITE:
			if err := dev.check(req); err != nil {
				dev.out <- m_dev_res{err}
				continue
			}
			pos := req.sector * common.SECTOR_SIZE
			copy(dev.data[pos:pos+common.SECTOR_SIZE], req.buf)
			dev.out <- m_dev_res{nil}
		case DEV_CLOSE:
			dev.out <- m_dev_res{nil}
			close(dev.in)
			close(dev.out)
			return
		default:
			dev.out <- m_dev_res{ERR_BADCALL}
		}
	}
}

func (dev *ramdiskDevice) check(req m_dev_req) error {
	if req.sector < 0 || (req.sector+1)*common.SECTOR_SIZE > len(dev.data) {
		return ERR_BADSECTOR
	}
	if len(req.buf) != common.SECTOR_SIZE {
		return ERR_BADBUF
	}
	return nil
}

func (dev *ramdiskDevice) ReadSector(sector int, buf []byte) error {
	dev.in <- m_dev_req{DEV_READ, sector, buf}
	res := <-dev.out
	return res.err
}

func (dev *ramdiskDevice) WriteSector(sector int, buf []byte) error {
	dev.in <- m_dev_req{DEV_WRITE, sector, buf}
	res := <-dev.out
	return res.err
}

func (dev *ramdiskDevice) Close() error {
	dev.in <- m_dev_req{DEV_CLOSE, 0, nil}
	res := <-dev.out
	return res.err
}
