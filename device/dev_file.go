package device

import (
	"os"

	"github.com/nachfs/nachfs/common"
)

type fileDevice struct {
	file     *os.File
	filename string
	sectors  int
	in       chan m_dev_req
	out      chan m_dev_res
}

// OpenFileDevice opens an existing disk image as a block device. The
// image length must be a whole number of sectors.
func OpenFileDevice(filename string) (common.BlockDevice, error) {
	file, err := os.OpenFile(filename, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if fi.Size()%common.SECTOR_SIZE != 0 {
		file.Close()
		return nil, common.EINVAL
	}

	return newFileDevice(file, filename, int(fi.Size()/common.SECTOR_SIZE)), nil
}

// CreateFileDevice creates (or truncates) a disk image of the given
// number of sectors and opens it as a block device.
func CreateFileDevice(filename string, sectors int) (common.BlockDevice, error) {
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	if err := file.Truncate(int64(sectors) * common.SECTOR_SIZE); err != nil {
		file.Close()
		return nil, err
	}

	return newFileDevice(file, filename, sectors), nil
}

func newFileDevice(file *os.File, filename string, sectors int) *fileDevice {
	dev := &fileDevice{
		file,
		filename,
		sectors,
		make(chan m_dev_req),
		make(chan m_dev_res),
	}

	go dev.loop()
	return dev
}

func (dev *fileDevice) loop() {
	for req := range dev.in {
		switch req.call {
		case DEV_READ:
			if err := dev.check(req); err != nil {
				dev.out <- m_dev_res{err}
				continue
			}
			_, err := dev.file.ReadAt(req.buf, int64(req.sector)*common.SECTOR_SIZE)
			dev.out <- m_dev_res{err}
		case DEV_WRITE:
			if err := dev.check(req); err != nil {
				dev.out <- m_dev_res{err}
				continue
			}
			_, err := dev.file.WriteAt(req.buf, int64(req.sector)*common.SECTOR_SIZE)
			dev.out <- m_dev_res{err}
		case DEV_CLOSE:
			err := dev.file.Close()
			dev.out <- m_dev_res{err}
			close(dev.in)
			close(dev.out)
			return
		default:
			dev.out <- m_dev_res{ERR_BADCALL}
		}
	}
}

func (dev *fileDevice) check(req m_dev_req) error {
	if req.sector < 0 || req.sector >= dev.sectors {
		return ERR_BADSECTOR
	}
	if len(req.buf) != common.SECTOR_SIZE {
		return ERR_BADBUF
	}
	return nil
}

func (dev *fileDevice) ReadSector(sector int, buf []byte) error {
	dev.in <- m_dev_req{DEV_READ, sector, buf}
	res := <-dev.out
	return res.err
}

func (dev *fileDevice) WriteSector(sector int, buf []byte) error {
	dev.in <- m_dev_req{DEV_WRITE, sector, buf}
	res := <-dev.out
	return res.err
}

func (dev *fileDevice) Close() error {
	dev.in <- m_dev_req{DEV_CLOSE, 0, nil}
	res := <-dev.out
	return res.err
}
