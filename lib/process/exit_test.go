// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestReport(t *testing.T) {
	var buffer bytes.Buffer
	report(&buffer, fmt.Errorf("joining session: %w", errors.New("signal dir missing")))
	if got, want := buffer.String(), "error: joining session: signal dir missing\n"; got != want {
		t.Errorf("report wrote %q, want %q", got, want)
	}
}
