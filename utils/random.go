package utils

import (
	"crypto/rand"
)

// GenerateOTP returns length random decimal digits.
func GenerateOTP(length int) (string, error) {
	const charset = "0123456789"
	// bytes at or above this bound would skew the digits
	const bound = 256 - 256%len(charset)

	code := make([]byte, 0, length)
	buf := make([]byte, length)

	for len(code) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= bound {
				continue
			}
			code = append(code, charset[int(b)%len(charset)])
			if len(code) == length {
				break
			}
		}
	}

	return string(code), nil
}
