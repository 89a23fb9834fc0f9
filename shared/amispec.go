package shared

import (
	"fmt"
	"strings"
)

// AMISpec is one parsed USER@AMI_ID argument.
type AMISpec struct {
	User  string
	AMIID string
}

// ParseAMISpecs parses USER@AMI_ID tokens. A token without an "@" gets the
// default user; a token with one is split on its first "@" so AMI ids are
// never split further.
func ParseAMISpecs(tokens []string, defaultUser string) ([]AMISpec, error) {
	specs := make([]AMISpec, 0, len(tokens))
	for _, token := range tokens {
		user, amiID, found := strings.Cut(token, "@")
		if !found {
			amiID = token
			user = defaultUser
		}

		if amiID == "" {
			return nil, fmt.Errorf("invalid USER@AMI_ID argument %q: missing AMI id", token)
		}
		if user == "" {
			return nil, fmt.Errorf("invalid USER@AMI_ID argument %q: missing user", token)
		}

		specs = append(specs, AMISpec{User: user, AMIID: amiID})
	}

	return specs, nil
}
