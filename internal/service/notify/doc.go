// Package notify delivers upgrade and rollback notifications. Delivery is
// fire-and-forget: failures are logged and never reach the caller.
package notify
