package core

import (
	"errors"
)

var (
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	ErrFrameFailed      = errors.New("frame failed")
	ErrUniformConflict  = errors.New("uniform section already written by another pass")
	ErrDeviceLost       = errors.New("device lost")
	ErrUnknown          = errors.New("unknown")
)
