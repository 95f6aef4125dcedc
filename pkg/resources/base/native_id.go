package base

import (
	"fmt"
	"strings"
)

// NativeIDFormat defines the format of native IDs
type NativeIDFormat string

const (
	RegionalFormat       NativeIDFormat = "regional"        // account/region (one data lake per region)
	RegionalNestedFormat NativeIDFormat = "regional_nested" // account/region/name (sources, subscribers)
)

// NativeID is the parsed form of a Security Lake native ID
type NativeID struct {
	Account string
	Region  string
	Name    string
}

// String renders the ID in its native form
func (n NativeID) String() string {
	if n.Name == "" {
		return fmt.Sprintf("%s/%s", n.Account, n.Region)
	}
	return fmt.Sprintf("%s/%s/%s", n.Account, n.Region, n.Name)
}

// Parent returns the data lake ID the resource belongs to
func (n NativeID) Parent() NativeID {
	return NativeID{Account: n.Account, Region: n.Region}
}

// ParseNativeID parses a native ID of the given format
func ParseNativeID(format NativeIDFormat, nativeID string) (NativeID, error) {
	switch format {
	case RegionalFormat:
		// Expect "account/region" format
		parts := strings.Split(nativeID, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return NativeID{}, fmt.Errorf("invalid regional ID: %s", nativeID)
		}
		return NativeID{Account: parts[0], Region: parts[1]}, nil
	case RegionalNestedFormat:
		// Expect "account/region/name" format
		parts := strings.SplitN(nativeID, "/", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return NativeID{}, fmt.Errorf("invalid regional nested ID: %s", nativeID)
		}
		return NativeID{Account: parts[0], Region: parts[1], Name: parts[2]}, nil
	default:
		return NativeID{}, fmt.Errorf("unknown native ID format: %s", format)
	}
}
