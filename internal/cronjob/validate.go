package cronjob

import (
	"fmt"

	"github.com/nextlevelbuilder/goclaw/internal/channels"
	"github.com/nextlevelbuilder/goclaw/internal/cronerr"
)

// ValidatePayload checks a Payload is well-formed for its declared
// kind: an agentTurn with deliver=true must carry both channel and
// to, a named channel must be one of the closed set, and
// timeoutSeconds, if given, must fall in [1,600].
func ValidatePayload(p Payload) error {
	switch p.Kind {
	case PayloadSystemEvent:
		return nil
	case PayloadAgentTurn:
		if p.Deliver && (p.Channel == "" || p.To == "") {
			return fmt.Errorf("%w: deliver=true requires channel and to", cronerr.ErrInvalidPayload)
		}
		if p.Channel != "" && p.Channel != channels.IDLast && !channels.KnownIDs[p.Channel] {
			return fmt.Errorf("%w: unknown channel %q", cronerr.ErrInvalidPayload, p.Channel)
		}
		if p.TimeoutSeconds != 0 && (p.TimeoutSeconds < 1 || p.TimeoutSeconds > 600) {
			return fmt.Errorf("%w: timeoutSeconds must be in [1,600], got %d", cronerr.ErrInvalidPayload, p.TimeoutSeconds)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown payload kind %q", cronerr.ErrInvalidPayload, p.Kind)
	}
}
