package techmate

import "log"

// logf reports internal failures that have no caller to return to, such as
// a session store write failing on a background path.
func logf(format string, args ...any) {
	log.Printf("techmate: "+format, args...)
}
