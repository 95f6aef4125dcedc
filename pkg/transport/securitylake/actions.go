// pkg/transport/securitylake/actions.go
package securitylake

// RequiredActions lists the IAM actions the plugin calls, per resource type.
// The lists are derived from the ControlPlane methods each provisioner uses.
var RequiredActions = map[string][]string{
	"DataLake": {
		"securitylake:CreateDataLake",
		"securitylake:UpdateDataLake",
		"securitylake:DeleteDataLake",
		"securitylake:ListDataLakes",
	},
	"AwsLogSources": {
		"securitylake:CreateAwsLogSource",
		"securitylake:DeleteAwsLogSource",
		"securitylake:ListLogSources",
	},
	"Subscriber": {
		"securitylake:CreateSubscriber",
		"securitylake:GetSubscriber",
		"securitylake:DeleteSubscriber",
		"securitylake:ListSubscribers",
	},
}

// AllRequiredActions returns every action in RequiredActions, without duplicates,
// in a stable order.
func AllRequiredActions() []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range []string{"DataLake", "AwsLogSources", "Subscriber"} {
		for _, a := range RequiredActions[group] {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	return out
}
