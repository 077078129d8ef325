package health

import (
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// LoadGitVersion resolves the running build's git identifier. A version
// file written at image build time takes precedence; a development run
// falls back to asking git directly. Returns "" when neither works.
func LoadGitVersion(path string) string {
	if data, err := os.ReadFile(path); err == nil {
		if v := firstLine(string(data)); v != "" {
			log.Info().Str("git_version", v).Msg("Git version loaded from file")
			return v
		}
	}

	out, err := exec.Command("git", "describe", "--always", "--dirty").Output()
	if err != nil {
		log.Warn().Err(err).Msg("Git version could not be determined")
		return ""
	}
	v := firstLine(string(out))
	log.Info().Str("git_version", v).Msg("Git version from git describe")
	return v
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
