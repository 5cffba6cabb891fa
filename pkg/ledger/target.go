// Package ledger reads and writes milestone records on the stage contracts.
// Two independent deployments are supported; every operation is addressed to
// one of them by Target. Deployed contract versions differ in which methods
// they expose, so extension reads report capability, not hard errors.
package ledger

import "strings"

// Target names one of the two configured chain deployments.
type Target string

const (
	Primary   Target = "primary"
	Secondary Target = "secondary"
)

// Historical network names accepted anywhere a chain can be requested.
var targetAliases = map[string]Target{
	"primary":         Primary,
	"l1":              Primary,
	"sepolia":         Primary,
	"secondary":       Secondary,
	"l2":              Secondary,
	"optimism":        Secondary,
	"optimismsepolia": Secondary,
}

// ResolveTarget maps a caller-supplied chain name to a Target. Unknown or
// empty values fall back to def.
func ResolveTarget(raw string, def Target) Target {
	if t, ok := targetAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return t
	}
	return def
}
