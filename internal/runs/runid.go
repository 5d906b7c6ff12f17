package runs

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/fiscalops/apbots/constants"
)

const runIDTimeLayout = "20060102-150405"

// FormatRunID renders "[test-]<Identifier>-YYYYMMDD-HHMMSS" in UTC.
// The identifier is canonicalized and each word capitalized, so
// "grainger, inc." becomes "GraingerInc".
func FormatRunID(identifier string, testMode bool, at time.Time) string {
	var b strings.Builder
	if testMode {
		b.WriteString("test-")
	}
	words := strings.Fields(constants.CanonicalVendorKey(identifier))
	if len(words) == 0 {
		words = []string{"run"}
	}
	for _, word := range words {
		r := []rune(word)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	b.WriteByte('-')
	b.WriteString(at.UTC().Format(runIDTimeLayout))
	return b.String()
}

// withCollisionSuffix appends four hex characters of a fresh uuid.
func withCollisionSuffix(runID string) string {
	return runID + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
}
