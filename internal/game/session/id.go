package session

import "math/rand/v2"

// Session ids are short and human-relayable: players read them out loud or
// type them from a phone screen, so the alphabet drops the lookalike
// characters I, O, 0, and 1.
const (
	idPrefix    = "MUNCH-"
	idAlphabet  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	idSuffixLen = 4
)

// maxIDAttempts bounds the collision retry loop in Create. With a 32^4 id
// space a handful of attempts is plenty for any realistic session count.
const maxIDAttempts = 8

func newSessionID() string {
	buf := make([]byte, idSuffixLen)
	for i := range buf {
		buf[i] = idAlphabet[rand.IntN(len(idAlphabet))]
	}
	return idPrefix + string(buf)
}
