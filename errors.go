// Copyright © 2019-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package icsseth

import "errors"

// Ring operation results. ErrBusy and ErrNoBufferSpace are expected
// backpressure, not faults; the caller decides whether to retry or
// drop, and neither is worth logging in steady state.
var (
	ErrBusy          = errors.New("queue busy")
	ErrNoBufferSpace = errors.New("no buffer space")
	ErrInvalidPort   = errors.New("invalid port")
	ErrLinkDown      = errors.New("link down")
	ErrFrameTooLong  = errors.New("frame too long")
)
