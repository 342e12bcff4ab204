// Package pushlog provides push.NotificationLog sinks.
//
// RedisStream appends one stream entry per dispatch, trimmed to a maximum
// length, which suits short-lived operational history. Mongo stores one
// document per dispatch for longer retention and ad-hoc queries.
//
// Both sinks are best-effort: the dispatcher logs their errors and never lets
// them change a DispatchResult.
package pushlog
