// Package event provides a small typed publish/subscribe bus with a fixed set
// of event kinds. Backends and the pool each own one bus and deliver
// healthy, unhealthy and remove notifications through it.
package event
