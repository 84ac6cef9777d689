// Package agent runs event coordination on behalf of one user.
//
// # Overview
//
// The Engine owns the coordination flow: it gathers schedules, finds common
// free time, asks the social intelligence layer to draft a proposal, collects
// responses from the other participants' agents, and checks for consensus.
//
// # Privacy
//
// The engine sits on the privacy boundary. Everything read from the store may
// be private (notes on friends, busy reasons, communication styles). Only
// shareable projections leave the process: proposals carry shareable
// reasoning, availability answers carry bare time slots, and private
// reasoning from the model is recorded as private audit notes only.
//
// # Oracles
//
// Participant responses come through the Oracle interface. RelayOracle asks
// real peer agents over the relay and waits for answers; HeuristicOracle
// predicts responses from local relationship context when peers are offline.
package agent
