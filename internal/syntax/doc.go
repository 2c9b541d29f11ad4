// Package syntax builds container operations from declarative pipelines.
//
// A Pipeline is a named intent made of stages drawn from a closed set of
// kinds:
//
//	Transform       map the input to a new value off the reduction path
//	Reduce          fold the input into the state
//	PostSideEffect  derive a one-off effect from state and input
//	LoopBack        dispatch another intent with a new input
//
// An Interpreter compiles a pipeline plus an input into a
// container.Operation. Each Kind is executed by an entry in the
// interpreter's stage table; the table is fixed when the interpreter is
// built, so there is no global registration.
package syntax
