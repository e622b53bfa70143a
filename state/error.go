package state

import (
	"fmt"
	"strings"
)

// ConflictError reports two or more nodes writing the same overwrite channel
// in one round. The outcome would depend on completion order, so the merge is
// rejected instead of picking a winner.
type ConflictError struct {
	Channel string
	Nodes   []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting writes to overwrite channel %s from nodes [%s]",
		e.Channel, strings.Join(e.Nodes, ", "))
}

// UnknownChannelError reports a key that resolves to no declared channel.
type UnknownChannelError struct {
	Channel string
	Node    string
}

func (e *UnknownChannelError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("unknown channel %s", e.Channel)
	}
	return fmt.Sprintf("node %s wrote unknown channel %s", e.Node, e.Channel)
}

// TypeMismatchError reports a value that does not fit its channel.
type TypeMismatchError struct {
	Channel string
	Want    string
	Got     string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("channel %s expects %s, got %s", e.Channel, e.Want, e.Got)
}
