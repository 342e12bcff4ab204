// Package mongo connects to MongoDB with the v2 driver, retrying until the
// server answers a ping, and exposes a health probe for readiness checks.
package mongo
