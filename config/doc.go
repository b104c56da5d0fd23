// Package config loads and validates the swarmroute configuration.
//
// Configuration is a single Config tree with one section per subsystem,
// loaded through a builder with fixed precedence: compiled defaults, then
// an optional YAML file, then environment variables. A missing config file
// is not an error; the defaults stand. Environment keys follow the nesting
// of the tree, e.g. SWARMROUTE_TRUST_MIN_TRUST_THRESHOLD.
//
// The package stays a leaf: sections mirror the option structs of the
// subsystems they configure, and the mapping onto those structs happens at
// wiring time, not here.
package config
