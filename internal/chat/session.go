package chat

import (
	"encoding/binary"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session identifies one conversation to the remote responder.
type Session struct {
	id        string
	startedAt time.Time
}

// NewSession generates a fresh session id.
func NewSession() Session {
	now := time.Now()
	return Session{id: newSessionID(now), startedAt: now}
}

// ResumeSession wraps an id that was generated earlier, e.g. one carried by a cookie.
func ResumeSession(id string) Session {
	return Session{id: id, startedAt: time.Now()}
}

var sessionIDPattern = regexp.MustCompile(`^sess-[0-9a-z]{9}-[0-9a-z]+$`)

// ValidSessionID reports whether id has the shape NewSession produces.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func (s Session) ID() string           { return s.id }
func (s Session) StartedAt() time.Time { return s.startedAt }

// newSessionID returns "sess-" + nine random base36 characters + "-" + the unix
// millisecond timestamp in base36.
func newSessionID(now time.Time) string {
	u := uuid.New()
	random := strconv.FormatUint(binary.BigEndian.Uint64(u[:8]), 36)
	if len(random) < 9 {
		random = strings.Repeat("0", 9-len(random)) + random
	}
	return "sess-" + random[:9] + "-" + strconv.FormatInt(now.UnixMilli(), 36)
}
