// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers. It holds the one
// raw stderr write that happens outside the structured logger: fatal
// errors from main(), which may occur before the logger is configured
// (a bad config file, an unknown log level).
package process
