package node

import (
	"errors"
	"fmt"
)

// ErrOracle matches every oracle failure raised by a node.
var ErrOracle = errors.New("oracle failure")

// OracleError reports that the completion call of a role failed.
// The state handed to the node is left untouched.
type OracleError struct {
	Role string
	Err  error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("%s: oracle failure: %v", e.Role, e.Err)
}

// Unwrap exposes both ErrOracle and the underlying cause.
func (e *OracleError) Unwrap() []error {
	return []error{ErrOracle, e.Err}
}
