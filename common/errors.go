package common

import "errors"

// Recoverable failures are reported through these sentinel values and
// compared by identity. Invariant violations (double frees, reservation
// failures after a passing capacity check) panic instead; continuing
// would desynchronize the free map from the disk.

var (
	EEXIST       = errors.New("File exists")
	EFBIG        = errors.New("File too large")
	EINVAL       = errors.New("Invalid argument")
	ENAMETOOLONG = errors.New("File name too long")
	ENFILE       = errors.New("Directory table full")
	ENOENT       = errors.New("No such file or directory")
	ENOSPC       = errors.New("No space left on device")
	ENOTDIR      = errors.New("Not a directory")
)
