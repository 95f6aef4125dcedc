// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package base

import "regexp"

// regionPattern matches AWS region codes.
// Examples: "us-east-1", "ap-southeast-2", "us-gov-west-1", "cn-north-1"
var regionPattern = regexp.MustCompile(`^[a-z]{2}(-gov|-iso[a-z]?)?-[a-z]+-\d+$`)

// ValidRegion reports whether region looks like an AWS region code.
func ValidRegion(region string) bool {
	return regionPattern.MatchString(region)
}
