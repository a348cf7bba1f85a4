package provision

import (
	"fmt"
	"strings"
)

// FunctionNameFromARN extracts the callable function name from a
// colon-delimited Lambda ARN, e.g.
// "arn:aws:lambda:us-east-1:123:function:my-func" -> "my-func".
func FunctionNameFromARN(arn string) (string, error) {
	if !strings.Contains(arn, ":") {
		return "", fmt.Errorf("malformed function ARN %q: missing ':' delimiter", arn)
	}

	segments := strings.Split(arn, ":")
	name := segments[len(segments)-1]
	if name == "" {
		return "", fmt.Errorf("malformed function ARN %q: empty function name", arn)
	}
	return name, nil
}
