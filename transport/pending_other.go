// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package transport

func pending(ch *tcpChannel) (int, error) {
	return peek(ch)
}
