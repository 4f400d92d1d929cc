// Package hvac defines the domain model for DKN/Airzone cloud HVAC units.
//
// This package provides:
//   - Device snapshots as returned by the cloud snapshot endpoint
//   - The mode-support bitmask decoder and per-mode routing rules
//   - Machine parameter codes for the command endpoint (P1..P8)
//   - Numeric clamping helpers shared by the command layer
//
// # Mode codes and channels
//
// Units report supported operating modes through a fixed 8-character
// bitmask: bit i (0-indexed) set means mode code i+1 is supported.
//
//	1 cool        cold channel   temperature + fan
//	2 heat        heat channel   temperature + fan
//	3 ventilate   cold channel   fan only
//	4 heat-cool   cold channel   temperature + fan (dual setpoint, unvalidated)
//	5 dry         cold channel   no controls
//	6 cool-air    cold channel   alias, unvalidated
//	7 heat-air    heat channel   alias, unvalidated
//	8 ventilate   heat channel   fan only (heat-type duplicate of 3)
//
// Setpoints and fan speeds exist as parallel cold/heat field pairs; the
// active mode's channel decides which member of the pair a write targets.
//
// All functions in this package are pure and deterministic; decoding the
// same bitmask always yields the same capability set.
package hvac
