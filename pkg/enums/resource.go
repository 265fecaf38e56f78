package enums

import "fmt"

// Resource names a plan-limited, countable resource.
type Resource string

const (
	ResourceAccounts     Resource = "accounts"
	ResourceTransactions Resource = "transactions"
)

// Resources lists limited resources in the order they are checked.
var Resources = []Resource{ResourceAccounts, ResourceTransactions}

// IsValid reports whether the value is a known Resource.
func (r Resource) IsValid() bool {
	return r == ResourceAccounts || r == ResourceTransactions
}

// ParseResource converts raw input into a Resource.
func ParseResource(value string) (Resource, error) {
	r := Resource(value)
	if !r.IsValid() {
		return "", fmt.Errorf("invalid resource %q", value)
	}
	return r, nil
}
