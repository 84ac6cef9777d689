// ABOUTME: Package model holds the core domain types for yotei.
// ABOUTME: Users, friendships, schedules, and events are pure data plus query methods.

// Package model defines the domain types shared across the scheduler, relay,
// and coordination engine.
//
// The most important property of this package is the privacy partition on
// FriendRelationship: shareable fields may cross the agent boundary, private
// fields must never be serialized into anything that leaves this process.
// Every type that crosses the wire exposes an explicit Shareable projection;
// code elsewhere serializes those projections, never the full structs.
package model
