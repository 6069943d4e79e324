package translation

import (
	"github.com/leonelquinteros/gotext"
)

// Translate resolves a user-facing string through the configured
// locale catalog, falling back to the message id itself.
func Translate(msgID string, vars ...interface{}) string {
	return gotext.Get(msgID, vars...)
}
