// Package authority arbitrates which client simulates each cube.
//
// Ownership changes bump the ownership sequence; every tick a held cube is
// simulated by its owner bumps the authority sequence. Remote claims are
// compared on those two counters, in that order, and exact ties are settled
// by who sent the claim.
package authority

import (
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/quant"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/seq"
)

// HostIndex is the slot of the relaying host.
const HostIndex = 0

// Free marks a cube with no owner.
const Free = -1

// Record is the arbitration state of one cube.
type Record struct {
	Owner             int
	AuthoritySequence uint16
	OwnershipSequence uint16
	LastInteraction   uint32
	Interacted        bool
}

// Claim is a remote view of a cube's authority, as carried by a state update.
type Claim struct {
	AuthorityIndex    uint8
	AuthoritySequence uint16
	OwnershipSequence uint16
	Epoch             uint16
}

// Owner returns the claimed owner, or Free.
func (c Claim) Owner() int {
	return int(c.AuthorityIndex) - 1
}

// Decision is the outcome of comparing a claim with the local record.
type Decision int

const (
	Reject Decision = iota
	Accept
)

// Reason explains a Decision.
type Reason string

const (
	ReasonStaleEpoch     Reason = "stale_epoch"
	ReasonNewerOwnership Reason = "newer_ownership"
	ReasonOlderOwnership Reason = "older_ownership"
	ReasonNewerAuthority Reason = "newer_authority"
	ReasonOlderAuthority Reason = "older_authority"
	ReasonTieAccepted    Reason = "tie_accepted"
	ReasonTieIgnored     Reason = "tie_ignored"
	ReasonForeignClaim   Reason = "foreign_claim"
	ReasonInvalidCube    Reason = "invalid_cube"
)

// Arbitrator holds the records of every cube as seen by one participant.
type Arbitrator struct {
	local int
	epoch uint16
	frame uint32
	cubes [quant.NumCubes]Record
}

// New creates an arbitrator for the participant in slot local.
func New(local int) *Arbitrator {
	a := &Arbitrator{local: local}
	a.Reset(0)
	return a
}

// Local returns the slot of the participant that owns this arbitrator.
func (a *Arbitrator) Local() int {
	return a.local
}

// SetLocal changes the local slot, used once a client learns its slot.
func (a *Arbitrator) SetLocal(local int) {
	a.local = local
}

// IsHost reports whether the arbitrator runs on the host.
func (a *Arbitrator) IsHost() bool {
	return a.local == HostIndex
}

// Epoch returns the current reset epoch.
func (a *Arbitrator) Epoch() uint16 {
	return a.epoch
}

// SetFrame records the current simulation frame for interaction tracking.
func (a *Arbitrator) SetFrame(frame uint32) {
	a.frame = frame
}

// Record returns the record of cube.
func (a *Arbitrator) Record(cube int) Record {
	if !valid(cube) {
		return Record{Owner: Free}
	}
	return a.cubes[cube]
}

// Owned returns the cubes currently owned by client.
func (a *Arbitrator) Owned(client int) []int {
	var ids []int
	for id, r := range a.cubes {
		if r.Owner == client {
			ids = append(ids, id)
		}
	}
	return ids
}

// RecentlyInteracted reports whether cube was grabbed, released or changed
// hands within window frames of the current frame.
func (a *Arbitrator) RecentlyInteracted(cube int, window uint32) bool {
	if !valid(cube) {
		return false
	}
	r := a.cubes[cube]
	return r.Interacted && a.frame-r.LastInteraction <= window
}

// Grab gives client ownership of cube. It fails when client already owns it.
func (a *Arbitrator) Grab(cube, client int) bool {
	if !valid(cube) || client < 0 {
		return false
	}
	r := &a.cubes[cube]
	if r.Owner == client {
		return false
	}
	r.Owner = client
	r.OwnershipSequence++
	r.AuthoritySequence = 0
	a.touch(r)
	return true
}

// Advance bumps the authority sequence of every cube held by client. It is
// called once per simulation tick for the local participant.
func (a *Arbitrator) Advance(client int) {
	for i := range a.cubes {
		if a.cubes[i].Owner == client {
			a.cubes[i].AuthoritySequence++
		}
	}
}

// Release frees cube if client owns it. The authority sequence moves forward
// so the release supersedes the last held update.
func (a *Arbitrator) Release(cube, client int) bool {
	if !valid(cube) {
		return false
	}
	r := &a.cubes[cube]
	if r.Owner != client {
		return false
	}
	r.Owner = Free
	r.AuthoritySequence++
	a.touch(r)
	return true
}

// ShouldApply decides whether a claim about cube sent by fromClient replaces
// the local record.
func (a *Arbitrator) ShouldApply(cube int, claim Claim, fromClient int) (Decision, Reason) {
	if !valid(cube) {
		return Reject, ReasonInvalidCube
	}
	if claim.Epoch != a.epoch {
		return Reject, ReasonStaleEpoch
	}
	r := a.cubes[cube]
	claimOwner := claim.Owner()
	if a.IsHost() && claimOwner != Free && claimOwner != fromClient {
		return Reject, ReasonForeignClaim
	}

	switch {
	case seq.GreaterThan(claim.OwnershipSequence, r.OwnershipSequence):
		return Accept, ReasonNewerOwnership
	case seq.LessThan(claim.OwnershipSequence, r.OwnershipSequence):
		return Reject, ReasonOlderOwnership
	case seq.GreaterThan(claim.AuthoritySequence, r.AuthoritySequence):
		return Accept, ReasonNewerAuthority
	case seq.LessThan(claim.AuthoritySequence, r.AuthoritySequence):
		return Reject, ReasonOlderAuthority
	}

	if a.IsHost() {
		if claimOwner == fromClient && r.Owner == fromClient {
			return Accept, ReasonTieAccepted
		}
		return Reject, ReasonTieIgnored
	}
	switch {
	case claimOwner == a.local:
		return Reject, ReasonTieIgnored
	case claimOwner != Free:
		return Accept, ReasonTieAccepted
	case r.Owner == a.local:
		return Reject, ReasonTieIgnored
	default:
		return Accept, ReasonTieAccepted
	}
}

// Accept adopts claim as the record of cube.
func (a *Arbitrator) Accept(cube int, claim Claim) {
	if !valid(cube) {
		return
	}
	r := &a.cubes[cube]
	if r.Owner != claim.Owner() {
		a.touch(r)
	}
	r.Owner = claim.Owner()
	r.AuthoritySequence = claim.AuthoritySequence
	r.OwnershipSequence = claim.OwnershipSequence
}

// Apply runs ShouldApply and adopts the claim when accepted.
func (a *Arbitrator) Apply(cube int, claim Claim, fromClient int) (Decision, Reason) {
	decision, reason := a.ShouldApply(cube, claim, fromClient)
	if decision == Accept {
		a.Accept(cube, claim)
	}
	return decision, reason
}

// ReleaseClient frees every cube owned by client and returns their ids.
func (a *Arbitrator) ReleaseClient(client int) []int {
	var released []int
	for id := range a.cubes {
		if a.Release(id, client) {
			released = append(released, id)
		}
	}
	return released
}

// Reset clears every record and moves to epoch.
func (a *Arbitrator) Reset(epoch uint16) {
	a.epoch = epoch
	for i := range a.cubes {
		a.cubes[i] = Record{Owner: Free}
	}
}

func (a *Arbitrator) touch(r *Record) {
	r.LastInteraction = a.frame
	r.Interacted = true
}

func valid(cube int) bool {
	return cube >= 0 && cube < quant.NumCubes
}
