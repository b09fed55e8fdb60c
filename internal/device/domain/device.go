package domain

import (
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidID is returned for identifiers that could not have been produced by NewID.
var ErrInvalidID = errors.New("invalid device id")

// randomHexLen is the hex length of the random part (16 bytes).
const randomHexLen = 32

// NewID returns a fresh installation identifier: 16 random bytes as hex followed by the
// base-36 millisecond timestamp of now.
func NewID(now time.Time) (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(u[:]) + strconv.FormatInt(now.UnixMilli(), 36), nil
}

// ValidateID checks the shape of a persisted identifier so a corrupted value is not reused.
func ValidateID(id string) error {
	if len(id) <= randomHexLen {
		return ErrInvalidID
	}
	if _, err := hex.DecodeString(id[:randomHexLen]); err != nil {
		return ErrInvalidID
	}
	if _, err := strconv.ParseInt(id[randomHexLen:], 36, 64); err != nil {
		return ErrInvalidID
	}
	if strings.ToLower(id) != id {
		return ErrInvalidID
	}
	return nil
}
