// Package store is the shared persistence boundary: two logical
// collections (notification_devices, global_notifications) plus a
// change-signal feed, with sqlite and in-memory drivers.
package store
