// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/bureau-foundation/sharedscene/lib/clock"
	"github.com/bureau-foundation/sharedscene/lib/participant"
)

// signalerImplementations returns a fresh instance of every Signaler
// so the shared behavior tests run against each.
func signalerImplementations(t *testing.T) map[string]Signaler {
	t.Helper()
	directory, err := NewDirectorySignaler(t.TempDir(), 0, nil)
	if err != nil {
		t.Fatalf("NewDirectorySignaler: %v", err)
	}
	return map[string]Signaler{
		"memory":    NewMemorySignaler(),
		"directory": directory,
	}
}

func TestSignalerPresence(t *testing.T) {
	ctx := context.Background()
	for name, signaler := range signalerImplementations(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []participant.ID{"bbb", "aaa", "ccc"} {
				if err := signaler.Announce(ctx, id); err != nil {
					t.Fatalf("Announce(%s): %v", id, err)
				}
			}
			if err := signaler.Withdraw(ctx, "ccc"); err != nil {
				t.Fatalf("Withdraw: %v", err)
			}
			if err := signaler.Withdraw(ctx, "ccc"); err != nil {
				t.Fatalf("second Withdraw: %v", err)
			}

			ids, err := signaler.Participants(ctx)
			if err != nil {
				t.Fatalf("Participants: %v", err)
			}
			if want := []participant.ID{"aaa", "bbb"}; !slices.Equal(ids, want) {
				t.Errorf("Participants = %v, want %v", ids, want)
			}
		})
	}
}

func TestSignalerOfferAnswerRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, signaler := range signalerImplementations(t) {
		t.Run(name, func(t *testing.T) {
			if err := signaler.PublishOffer(ctx, "aaa", "bbb", "offer-sdp"); err != nil {
				t.Fatalf("PublishOffer: %v", err)
			}

			// The offer is only visible to its target.
			others, err := signaler.PollOffers(ctx, "ccc")
			if err != nil {
				t.Fatalf("PollOffers(ccc): %v", err)
			}
			if len(others) != 0 {
				t.Errorf("ccc saw %d offers, want 0", len(others))
			}

			offers, err := signaler.PollOffers(ctx, "bbb")
			if err != nil {
				t.Fatalf("PollOffers: %v", err)
			}
			if len(offers) != 1 || offers[0].Peer != "aaa" || offers[0].SDP != "offer-sdp" {
				t.Fatalf("offers = %+v, want one from aaa", offers)
			}

			// A second poll sees nothing new.
			offers, _ = signaler.PollOffers(ctx, "bbb")
			if len(offers) != 0 {
				t.Errorf("repeated poll returned %d offers", len(offers))
			}

			if err := signaler.PublishAnswer(ctx, "aaa", "bbb", "answer-sdp"); err != nil {
				t.Fatalf("PublishAnswer: %v", err)
			}
			answers, err := signaler.PollAnswers(ctx, "aaa")
			if err != nil {
				t.Fatalf("PollAnswers: %v", err)
			}
			if len(answers) != 1 || answers[0].Peer != "bbb" || answers[0].SDP != "answer-sdp" {
				t.Fatalf("answers = %+v, want one from bbb", answers)
			}
		})
	}
}

func TestSignalerReplacedOfferIsRedelivered(t *testing.T) {
	ctx := context.Background()
	for name, signaler := range signalerImplementations(t) {
		t.Run(name, func(t *testing.T) {
			signaler.PublishOffer(ctx, "aaa", "bbb", "first")
			if offers, _ := signaler.PollOffers(ctx, "bbb"); len(offers) != 1 {
				t.Fatalf("first poll returned %d offers", len(offers))
			}
			signaler.PublishOffer(ctx, "aaa", "bbb", "second")
			offers, _ := signaler.PollOffers(ctx, "bbb")
			if len(offers) != 1 || offers[0].SDP != "second" {
				t.Fatalf("offers after replace = %+v, want the second SDP", offers)
			}
		})
	}
}

func TestDirectorySignalerPresenceExpires(t *testing.T) {
	ctx := context.Background()
	fake := clock.Fake(time.Unix(1_700_000_000, 0))
	signaler, err := NewDirectorySignaler(t.TempDir(), 5*time.Second, fake)
	if err != nil {
		t.Fatalf("NewDirectorySignaler: %v", err)
	}

	signaler.Announce(ctx, "aaa")
	fake.Advance(3 * time.Second)
	signaler.Announce(ctx, "bbb")
	fake.Advance(3 * time.Second)

	ids, err := signaler.Participants(ctx)
	if err != nil {
		t.Fatalf("Participants: %v", err)
	}
	if want := []participant.ID{"bbb"}; !slices.Equal(ids, want) {
		t.Errorf("Participants = %v, want %v (aaa expired)", ids, want)
	}
}

func TestDirectorySignalerSkipsCorruptFiles(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	signaler, err := NewDirectorySignaler(root, 0, nil)
	if err != nil {
		t.Fatalf("NewDirectorySignaler: %v", err)
	}
	signaler.Announce(ctx, "aaa")
	if err := os.WriteFile(filepath.Join(root, "presence", "zzz.cbor"), []byte{0xff, 0x00}, 0o644); err != nil {
		t.Fatal(err)
	}

	ids, err := signaler.Participants(ctx)
	if err != nil {
		t.Fatalf("Participants: %v", err)
	}
	if want := []participant.ID{"aaa"}; !slices.Equal(ids, want) {
		t.Errorf("Participants = %v, want %v", ids, want)
	}
}

func TestDirectorySignalerRejectsPathIDs(t *testing.T) {
	signaler, err := NewDirectorySignaler(t.TempDir(), 0, nil)
	if err != nil {
		t.Fatalf("NewDirectorySignaler: %v", err)
	}
	for _, id := range []participant.ID{"", "..", "a/b", ".hidden"} {
		if err := signaler.Announce(context.Background(), id); err == nil {
			t.Errorf("Announce(%q) succeeded", id)
		}
	}
}
