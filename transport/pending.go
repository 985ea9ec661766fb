// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import "time"

const peekTimeout = 100 * time.Microsecond

// peek moves whatever the socket holds into the channel buffer.
// Bytes moved to the buffer are not reported as pending on the socket.
func peek(ch *tcpChannel) (int, error) {
	var buf [4096]byte
	n, err := ch.readTimeout(buf[:], peekTimeout)
	ch.buf = append(ch.buf, buf[:n]...)
	return 0, err
}
