// Package handler serves the admin API over a backend registry: listing
// backends and their health, registering new ones and removing them.
package handler
