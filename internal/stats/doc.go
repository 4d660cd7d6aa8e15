// Package stats collects configuration statistics for batches of feature
// models through a command loop session: the estimated and exact number of
// configurations of each model, and optionally the share of a set of
// configuration files each model accepts.
package stats
