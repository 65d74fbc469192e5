package pipeline

import (
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/docchat/internal/domain"
)

// MaxLevel is the highest expertise level a caller may declare. Level 0 means unspecified.
const MaxLevel = 5

// Levels holds the prompt prefixes for each expertise band.
type Levels struct {
	Beginner     string
	Intermediate string
	Expert       string
}

func DefaultLevels() Levels {
	return Levels{
		Beginner:     "I am a beginner user with little to no prior knowledge of the subject.",
		Intermediate: "I am an intermediate user with some knowledge of the subject.",
		Expert:       "I am an expert user with extensive knowledge of the subject.",
	}
}

func (l Levels) prefix(level int) string {
	switch {
	case level <= 0:
		return ""
	case level <= 2:
		return l.Beginner
	case level <= 4:
		return l.Intermediate
	default:
		return l.Expert
	}
}

// Apply prepends the level prefix to the question. The result is only ever sent to the model.
func (l Levels) Apply(level int, question string) string {
	p := strings.TrimSpace(l.prefix(level))
	if p == "" {
		return question
	}
	return p + ", " + question
}

func validateLevel(level int) error {
	if level < 0 || level > MaxLevel {
		return fmt.Errorf("%w: level must be between 1 and %d", domain.ErrInvalidInput, MaxLevel)
	}
	return nil
}
