// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package transport

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// pending returns the number of bytes queued in the socket receive buffer.
func pending(ch *tcpChannel) (int, error) {
	sc, ok := ch.conn.(syscall.Conn)
	if !ok {
		return peek(ch)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("could not access raw socket: %w", err)
	}
	var (
		n    int
		ierr error
	)
	err = raw.Control(func(fd uintptr) {
		n, ierr = unix.IoctlGetInt(int(fd), unix.TIOCINQ)
	})
	if err != nil {
		return 0, fmt.Errorf("could not access raw socket: %w", err)
	}
	if ierr != nil {
		return 0, fmt.Errorf("could not get socket queue length: %w", ierr)
	}
	return n, nil
}
