// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/bureau-foundation/sharedscene/coordinator"
	"github.com/bureau-foundation/sharedscene/lib/message"
	"github.com/bureau-foundation/sharedscene/lib/sessionstate"
)

// errQuit ends the shell loop without an error.
var errQuit = errors.New("quit")

const usage = `commands:
  add <type> [x y z]        add a model, optionally positioned
  move <id> <x> <y> <z>     live transform (rate limited)
  done <id> [x y z]         final transform, sent reliably
  grab <id>                 claim ownership as a manipulation starts
  release <id>              release ownership
  select <id>               announce a selection
  remove <id>               remove a model
  anchor <id> [world-map]   share a reference anchor, with world-map data from a file
  list                      print the scene
  peers                     print the session members
  help                      print this list
  quit                      leave the session
<id> may be any unique prefix of an instance ID.
`

type command struct {
	// minArgs and maxArgs bound len(args); maxArgs < 0 is unbounded.
	minArgs, maxArgs int
	run              func(ctx context.Context, args []string) error
}

// shell executes commands against a coordinator.
type shell struct {
	coordinator *coordinator.Coordinator
	out         *console
	commands    map[string]command
}

func newShell(c *coordinator.Coordinator, out *console) *shell {
	s := &shell{coordinator: c, out: out}
	s.commands = map[string]command{
		"add":     {1, 4, s.add},
		"move":    {4, 4, s.move},
		"done":    {1, 4, s.done},
		"grab":    {1, 1, s.grab},
		"release": {1, 1, s.release},
		"select":  {1, 1, s.selectModel},
		"remove":  {1, 1, s.remove},
		"anchor":  {1, 2, s.anchor},
		"list":    {0, 0, s.list},
		"peers":   {0, 0, s.peers},
		"help":    {0, 0, s.help},
		"quit":    {0, 0, func(context.Context, []string) error { return errQuit }},
	}
	return s
}

// serve reads commands from r until EOF, quit, ctx ends or the
// coordinator stops. Command errors are printed and do not end the
// loop.
func (s *shell) serve(ctx context.Context, r io.Reader, interactive bool) error {
	lines := readLines(r)
	for {
		if interactive {
			s.out.printf("> ")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.coordinator.Done():
			return errors.New("session ended")
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := s.execute(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				s.out.printf("error: %v\n", err)
			}
		}
	}
}

// execute runs one command line. Blank lines and # comments are
// ignored.
func (s *shell) execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}
	name, args := fields[0], fields[1:]
	cmd, ok := s.commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q (try help)", name)
	}
	if len(args) < cmd.minArgs || (cmd.maxArgs >= 0 && len(args) > cmd.maxArgs) {
		return fmt.Errorf("%s: wrong number of arguments (try help)", name)
	}
	return cmd.run(ctx, args)
}

func (s *shell) add(ctx context.Context, args []string) error {
	transform := message.IdentityTransform("")
	if reference, err := s.coordinator.ReferenceAnchor(ctx); err == nil {
		transform.ReferenceAnchorID = reference
	}
	if len(args) > 1 {
		position, err := parseVector(args[1:])
		if err != nil {
			return err
		}
		transform.Position = position
	}
	id, err := s.coordinator.AddModel(ctx, args[0], transform)
	if err != nil {
		return err
	}
	s.out.printf("added %s %s\n", args[0], id)
	return nil
}

func (s *shell) move(ctx context.Context, args []string) error {
	model, err := s.resolve(ctx, args[0])
	if err != nil {
		return err
	}
	position, err := parseVector(args[1:])
	if err != nil {
		return err
	}
	transform := model.Transform
	transform.Position = position
	sent, err := s.coordinator.UpdateTransform(ctx, model.InstanceID, transform)
	if err != nil {
		return err
	}
	if !sent {
		s.out.printf("moved %s locally; send suppressed by the rate limit\n", model.InstanceID)
	}
	return nil
}

func (s *shell) done(ctx context.Context, args []string) error {
	model, err := s.resolve(ctx, args[0])
	if err != nil {
		return err
	}
	transform := model.Transform
	if len(args) > 1 {
		position, err := parseVector(args[1:])
		if err != nil {
			return err
		}
		transform.Position = position
	}
	return s.coordinator.FinishTransform(ctx, model.InstanceID, transform)
}

func (s *shell) grab(ctx context.Context, args []string) error {
	model, err := s.resolve(ctx, args[0])
	if err != nil {
		return err
	}
	return s.coordinator.BeginManipulation(ctx, model.InstanceID)
}

func (s *shell) release(ctx context.Context, args []string) error {
	model, err := s.resolve(ctx, args[0])
	if err != nil {
		return err
	}
	return s.coordinator.ReleaseOwnership(ctx, model.InstanceID)
}

func (s *shell) selectModel(ctx context.Context, args []string) error {
	model, err := s.resolve(ctx, args[0])
	if err != nil {
		return err
	}
	return s.coordinator.SelectModel(ctx, model.InstanceID)
}

func (s *shell) remove(ctx context.Context, args []string) error {
	model, err := s.resolve(ctx, args[0])
	if err != nil {
		return err
	}
	if err := s.coordinator.RemoveModel(ctx, model.InstanceID); err != nil {
		return err
	}
	s.out.printf("removed %s\n", model.InstanceID)
	return nil
}

func (s *shell) anchor(ctx context.Context, args []string) error {
	anchor := message.Anchor{AnchorID: args[0], AnchorType: message.AnchorTypeWorldAnchor}
	if len(args) == 2 {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading world map: %w", err)
		}
		anchor.AnchorType = message.AnchorTypeWorldMap
		anchor.AnchorData = data
	}
	if err := s.coordinator.BroadcastAnchor(ctx, anchor); err != nil {
		return err
	}
	s.out.printf("shared anchor %s\n", anchor.AnchorID)
	return nil
}

func (s *shell) list(ctx context.Context, _ []string) error {
	models, err := s.coordinator.Snapshot(ctx)
	if err != nil {
		return err
	}
	reference, err := s.coordinator.ReferenceAnchor(ctx)
	if err != nil {
		return err
	}
	s.out.printf("%d models, reference anchor %q\n", len(models), reference)
	for _, model := range models {
		owner := "-"
		if model.Owner != nil {
			owner = string(*model.Owner)
		}
		stale := ""
		if model.Stale {
			stale = " (stale)"
		}
		s.out.printf("  %s %s at %s owner %s%s\n",
			model.InstanceID, model.ModelType, formatVector(model.Transform.Position), owner, stale)
	}
	return nil
}

func (s *shell) peers(ctx context.Context, _ []string) error {
	host, err := s.coordinator.IsHost(ctx)
	if err != nil {
		return err
	}
	members, err := s.coordinator.Members(ctx)
	if err != nil {
		return err
	}
	role := "member"
	if host {
		role = "host"
	}
	s.out.printf("%s (local, %s)\n", s.coordinator.LocalParticipant(), role)
	for _, member := range members {
		capabilities, known, err := s.coordinator.PeerCapabilities(ctx, member.ID)
		if err != nil {
			return err
		}
		detail := "no handshake yet"
		if known {
			detail = fmt.Sprintf("%s on %s, protocol %d", capabilities.AppName, capabilities.Platform, capabilities.ProtocolVersion)
		}
		location := "remote"
		if member.Near {
			location = "near"
		}
		s.out.printf("%s (%s, %s)\n", member.ID, location, detail)
	}
	return nil
}

func (s *shell) help(context.Context, []string) error {
	s.out.printf("%s", usage)
	return nil
}

// resolve finds the model whose instance ID equals or uniquely starts
// with prefix.
func (s *shell) resolve(ctx context.Context, prefix string) (sessionstate.ModelInstance, error) {
	models, err := s.coordinator.Snapshot(ctx)
	if err != nil {
		return sessionstate.ModelInstance{}, err
	}
	var matches []sessionstate.ModelInstance
	for _, model := range models {
		if string(model.InstanceID) == prefix {
			return model, nil
		}
		if strings.HasPrefix(string(model.InstanceID), prefix) {
			matches = append(matches, model)
		}
	}
	switch len(matches) {
	case 0:
		return sessionstate.ModelInstance{}, fmt.Errorf("no model matches %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return sessionstate.ModelInstance{}, fmt.Errorf("%q is ambiguous: matches %d models", prefix, len(matches))
	}
}

// parseVector parses exactly three coordinates.
func parseVector(args []string) (message.Vector3, error) {
	var v message.Vector3
	if len(args) != len(v) {
		return v, fmt.Errorf("expected 3 coordinates, got %d", len(args))
	}
	for index, arg := range args {
		value, err := strconv.ParseFloat(arg, 32)
		if err != nil {
			return v, fmt.Errorf("coordinate %q: %w", arg, err)
		}
		v[index] = float32(value)
	}
	return v, nil
}
