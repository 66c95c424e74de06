// Package lockout limits failed password attempts per project and client.
// After Max failures inside Window the key is locked for Lockout.
package lockout

import "time"

// Options are the shared limiter settings.
type Options struct {
	Max     int
	Window  time.Duration
	Lockout time.Duration
}

// Key scopes attempts to one project as seen from one client address.
func Key(projectID, remoteAddr string) string {
	return projectID + "|" + remoteAddr
}
