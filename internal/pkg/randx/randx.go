/*
Package randx provides functions for generating cryptographically secure random identifiers.

It generates fixed-length Base62 encoded room identifiers and standard UUID
identifiers for messages and sessions.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// RoomIDLength is the fixed length of generated room identifiers.
	RoomIDLength = 8
)

// RoomID generates a Base62 encoded room identifier using crypto/rand.
func RoomID() (string, error) {
	result := make([]byte, RoomIDLength)

	for i := range RoomIDLength {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number for room id: %v", err)
		}

		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// MessageID generates a UUID v4 string to serve as a unique message identifier.
func MessageID() string {
	return uuid.New().String()
}

// SessionID generates a UUID v4 string to serve as a unique session identifier.
func SessionID() string {
	return uuid.New().String()
}

// IsValidRoomID reports whether the given string is a well-formed room identifier:
// the seeded default rooms use short lowercase slugs, generated rooms use
// fixed-length Base62 strings.
func IsValidRoomID(id string) bool {
	if len(id) == 0 || len(id) > 32 {
		return false
	}

	for _, char := range id {
		if !strings.ContainsRune(Base62Chars, char) && char != '-' && char != '_' {
			return false
		}
	}

	return true
}
