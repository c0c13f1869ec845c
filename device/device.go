package device

import "errors"

var (
	ERR_BADCALL   = errors.New("bad device call")
	ERR_BADSECTOR = errors.New("sector number out of range")
	ERR_BADBUF    = errors.New("buffer is not exactly one sector")
	ERR_CLOSED    = errors.New("device is closed")
)

type CallNumber int

const (
	DEV_READ CallNumber = iota
	DEV_WRITE
	DEV_CLOSE
)

type m_dev_req struct {
	call   CallNumber
	sector int
	buf    []byte
}

type m_dev_res struct {
	err error
}
