package tool

import (
	"strings"

	"github.com/Strob0t/CrewForge/internal/domain/policy"
)

// destructiveVerbs are shell commands that delete or irreversibly rewrite state.
var destructiveVerbs = map[string]bool{
	"rm":    true,
	"del":   true,
	"rmdir": true,
	"rd":    true,
}

// IsDestructiveCommand flags shell commands whose first verb deletes data,
// plus hard git resets and clean sweeps. sudo is stripped before matching.
func IsDestructiveCommand(command string) bool {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(command)))
	if len(fields) == 0 {
		return false
	}
	if fields[0] == "sudo" {
		fields = fields[1:]
		if len(fields) == 0 {
			return false
		}
	}
	if destructiveVerbs[fields[0]] {
		return true
	}
	if fields[0] == "git" && len(fields) >= 2 {
		switch fields[1] {
		case "reset":
			for _, f := range fields[2:] {
				if f == "--hard" {
					return true
				}
			}
		case "clean":
			for _, f := range fields[2:] {
				if strings.HasPrefix(f, "-") && strings.ContainsAny(f, "fd") {
					return true
				}
			}
		}
	}
	return false
}

// ClassifyShell returns the risk level for a system.run command: critical for
// destructive commands, low otherwise.
func ClassifyShell(command string) policy.RiskLevel {
	if IsDestructiveCommand(command) {
		return policy.RiskCritical
	}
	return policy.RiskLow
}
