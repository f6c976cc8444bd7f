package rules

import (
	"net/mail"
	"strings"
)

// commonTLDs help reassemble the domain hidden inside an Apple Private Relay
// local part, where "peloton_at_mail_onepeloton_com_k6myg754kg" encodes
// "peloton@mail.onepeloton.com".
var commonTLDs = map[string]bool{
	"com": true, "org": true, "net": true, "edu": true, "gov": true,
	"co": true, "io": true, "me": true, "tv": true, "info": true,
}

// AddressOf extracts the bare, lowercased email address from a From header.
// Falls back to the trimmed input when the header cannot be parsed.
func AddressOf(from string) string {
	if addr, err := mail.ParseAddress(from); err == nil {
		return strings.ToLower(addr.Address)
	}
	return strings.ToLower(strings.TrimSpace(from))
}

// NormalizeFrom rewrites Apple Private Relay sender addresses back to the
// merchant's real address so rules keyed on the merchant domain still apply.
// Anything else passes through unchanged.
func NormalizeFrom(rawFrom string) string {
	if rawFrom == "" {
		return ""
	}

	addr, err := mail.ParseAddress(rawFrom)
	name := ""
	address := strings.ToLower(strings.TrimSpace(rawFrom))
	if err == nil {
		name = addr.Name
		address = strings.ToLower(addr.Address)
	}

	if !strings.Contains(address, "@privaterelay.appleid.com") {
		return rawFrom
	}

	localPart := strings.SplitN(address, "@", 2)[0]
	prefix, remainder, found := strings.Cut(localPart, "_at_")
	if !found {
		return rawFrom
	}

	parts := strings.Split(remainder, "_")
	tldIndex := -1
	for i, part := range parts {
		if commonTLDs[part] {
			tldIndex = i
		}
	}

	var clean string
	if tldIndex >= 0 {
		clean = prefix + "@" + strings.Join(parts[:tldIndex+1], ".")
	} else {
		clean = prefix + "@" + parts[0]
	}

	if name != "" {
		return name + " <" + clean + ">"
	}
	return clean
}
