package compiler

import "github.com/chazu/jsbc/vm"

// ObjectModel allocates the runtime descriptors that bytecode refers to by
// object index. A host engine supplies its own; DescriptorModel builds plain
// vm.Object values.
type ObjectModel interface {
	// NewBlockScope allocates a block scope binding names in slot order.
	NewBlockScope(names []string) (*vm.Object, error)
	// NewFunction allocates a function object for a compiled body.
	NewFunction(fn *FunctionNode, script *vm.Script) (*vm.Object, error)
	// NewRegExp allocates a regular expression literal.
	NewRegExp(source, flags string) (*vm.Object, error)
}

// DescriptorModel is the default ObjectModel.
type DescriptorModel struct{}

// NewBlockScope implements ObjectModel.
func (DescriptorModel) NewBlockScope(names []string) (*vm.Object, error) {
	return &vm.Object{Kind: vm.ObjectBlock, Names: append([]string(nil), names...)}, nil
}

// NewFunction implements ObjectModel.
func (DescriptorModel) NewFunction(fn *FunctionNode, script *vm.Script) (*vm.Object, error) {
	return &vm.Object{
		Kind:   vm.ObjectFunction,
		Name:   fn.Name,
		Params: append([]string(nil), fn.Params...),
		Script: script,
	}, nil
}

// NewRegExp implements ObjectModel.
func (DescriptorModel) NewRegExp(source, flags string) (*vm.Object, error) {
	return &vm.Object{Kind: vm.ObjectRegExp, Source: source, RegFlags: flags}, nil
}
