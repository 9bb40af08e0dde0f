// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"testing"
)

func TestNewICEConfig_None(t *testing.T) {
	config := NewICEConfig()
	if len(config.Servers) != 0 {
		t.Errorf("expected no ICE servers, got %d", len(config.Servers))
	}
}

func TestNewICEConfig_SkipsEmptyURLs(t *testing.T) {
	config := NewICEConfig(ICEServer{Username: "user", Credential: "pass"})
	if len(config.Servers) != 0 {
		t.Errorf("expected no ICE servers for empty URLs, got %d", len(config.Servers))
	}
}

func TestNewICEConfig_STUNAndTURN(t *testing.T) {
	config := NewICEConfig(
		ICEServer{URLs: []string{"stun:stun.example.net:3478"}},
		ICEServer{
			URLs:       []string{"turn:turn.example.net:3478?transport=udp", "turn:turn.example.net:3478?transport=tcp"},
			Username:   "1234:user",
			Credential: "secret",
		},
	)
	if len(config.Servers) != 2 {
		t.Fatalf("expected 2 ICE server entries, got %d", len(config.Servers))
	}
	if config.Servers[0].Username != "" {
		t.Errorf("STUN entry carries credentials: %+v", config.Servers[0])
	}
	turn := config.Servers[1]
	if len(turn.URLs) != 2 {
		t.Errorf("expected 2 URLs, got %d", len(turn.URLs))
	}
	if turn.Username != "1234:user" {
		t.Errorf("username = %q, want %q", turn.Username, "1234:user")
	}
	if turn.Credential != "secret" {
		t.Errorf("credential = %v, want %q", turn.Credential, "secret")
	}
}
