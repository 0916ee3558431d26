// nolint: gochecknoglobals
package idgenerator

import gonanoid "github.com/matoous/go-nanoid/v2"

const (
	ClaimantIDLength   = 10
	TaskRunIDLength    = 15
	TransitionIDLength = 15
)

// alphabet used in ID generation.
var alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func ClaimantID() string {
	return gonanoid.MustGenerate(alphabet, ClaimantIDLength)
}

func TaskRunID() string {
	return gonanoid.MustGenerate(alphabet, TaskRunIDLength)
}

func TransitionID() string {
	return gonanoid.MustGenerate(alphabet, TransitionIDLength)
}

func Random(length int) string {
	return gonanoid.MustGenerate(alphabet, length)
}
