package provision

import "fmt"

// MissingOutputError reports a stack output key that the deployed stack did
// not produce. It is a configuration error rather than a provisioning
// failure: the stack itself may have deployed fine.
type MissingOutputError struct {
	Stack string
	Key   string
}

func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("stack %s has no output %q; check the template's Outputs section", e.Stack, e.Key)
}

// LookupOutput returns the value of an expected stack output key.
func LookupOutput(stack string, outputs map[string]string, key string) (string, error) {
	value, ok := outputs[key]
	if !ok || value == "" {
		return "", &MissingOutputError{Stack: stack, Key: key}
	}
	return value, nil
}
